// Package status defines the internal thread status lattice and the fixed
// translation tables between platform lifecycle vocabularies and that lattice.
package status

// Status is the internal lifecycle state of a thread.
type Status int

const (
	Open       Status = 0
	InProgress Status = 1
	Resolved   Status = 2
	Closed     Status = 3
	Duplicate  Status = 4
)

// labels are the human-readable names used in update metadata and relayed
// platform messages.
var labels = map[Status]string{
	Open:       "Open",
	InProgress: "In Progress",
	Resolved:   "Resolved",
	Closed:     "Closed",
	Duplicate:  "Duplicate",
}

// Label returns the display name for a status.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return "Unknown"
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

// Parse maps a display label back to its status value.
func Parse(label string) (Status, bool) {
	for s, l := range labels {
		if l == label {
			return s, true
		}
	}
	return Open, false
}

// githubTransitions maps GitHub lifecycle events to the internal status an
// affected thread should move to.
var githubTransitions = map[string]Status{
	"issues.closed":       Resolved,
	"pull_request.closed": Resolved,
	"pull_request.merged": Resolved,
}

// ForGitHubEvent returns the target status for a GitHub event name, if the
// event drives a transition at all.
func ForGitHubEvent(event string) (Status, bool) {
	s, ok := githubTransitions[event]
	return s, ok
}

// TransitionOnExternalClose applies an external closed/merged event to the
// current status. External events only ever drive Open or InProgress to
// Resolved; Closed and Duplicate are user-only transitions, and re-applying
// the event to a thread that is already Resolved or beyond is a no-op.
func TransitionOnExternalClose(current Status) (Status, bool) {
	switch current {
	case Open, InProgress:
		return Resolved, true
	default:
		return current, false
	}
}
