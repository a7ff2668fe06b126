// Package ingest turns inbound platform events into thread, message, and
// update mutations. Events are dispatched through an explicit table keyed by
// (platform, event type), independent of any SDK's handler registration API.
// No failure escapes the dispatch boundary: platforms suspend webhooks that
// see repeated delivery errors, so everything is caught and logged here.
package ingest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/threadline/threadline/internal/bus"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/identity"
	"gorm.io/gorm"
)

// EventType names an inbound platform event.
type EventType string

const (
	EventIssueClosed       EventType = "issues.closed"
	EventPullRequestClosed EventType = "pull_request.closed"
	EventMessage           EventType = "message"
)

// GitHubEvent carries the fields the handlers need from a GitHub delivery.
type GitHubEvent struct {
	Action  string
	IssueID string
	PRID    string
	Number  int
	Title   string
	Merged  bool
}

// SlackMessage carries the fields the handlers need from a Slack message
// event. The acknowledgement callback is the transport's responsibility and
// has already been invoked by the time a handler runs.
type SlackMessage struct {
	TeamID          string
	ChannelID       string
	UserID          string
	UserName        string
	BotID           string
	Text            string
	Timestamp       string
	ThreadTimestamp string
}

// Event is a normalized inbound platform event.
type Event struct {
	Platform database.Platform
	Type     EventType
	GitHub   *GitHubEvent
	Slack    *SlackMessage
}

// HandlerFunc processes one event. Returned errors are logged by the
// dispatcher, never propagated.
type HandlerFunc func(ctx context.Context, ev Event) error

type dispatchKey struct {
	platform  database.Platform
	eventType EventType
}

// Notifier posts a short informational reply into a platform thread. Used for
// the best-effort "tracked" notice when a thread is imported.
type Notifier interface {
	PostThreadNotice(channelID, threadTS, text string) error
}

// Dispatcher routes events to their handlers.
type Dispatcher struct {
	db       *gorm.DB
	resolver *identity.Resolver
	bus      *bus.Bus
	notifier Notifier
	log      zerolog.Logger

	table map[dispatchKey]HandlerFunc
}

// NewDispatcher builds a dispatcher with all handlers registered. notifier
// may be nil when no Slack client is available.
func NewDispatcher(db *gorm.DB, resolver *identity.Resolver, b *bus.Bus, notifier Notifier, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		db:       db,
		resolver: resolver,
		bus:      b,
		notifier: notifier,
		log:      logger.With().Str("component", "ingest").Logger(),
		table:    make(map[dispatchKey]HandlerFunc),
	}

	d.register(database.PlatformGitHub, EventIssueClosed, d.handleIssueClosed)
	d.register(database.PlatformGitHub, EventPullRequestClosed, d.handlePullRequestClosed)
	d.register(database.PlatformSlack, EventMessage, d.handleSlackMessage)

	return d
}

func (d *Dispatcher) register(platform database.Platform, eventType EventType, h HandlerFunc) {
	d.table[dispatchKey{platform, eventType}] = h
}

// Dispatch runs the handler for the event. Unroutable events are logged and
// dropped; handler errors and panics are contained here.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("platform", string(ev.Platform)).
				Str("event", string(ev.Type)).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	handler, ok := d.table[dispatchKey{ev.Platform, ev.Type}]
	if !ok {
		d.log.Debug().
			Str("platform", string(ev.Platform)).
			Str("event", string(ev.Type)).
			Msg("no handler registered, ignoring event")
		return
	}

	if err := handler(ctx, ev); err != nil {
		d.log.Error().Err(err).
			Str("platform", string(ev.Platform)).
			Str("event", string(ev.Type)).
			Msg("event handling failed")
	}
}

// threadName truncates on runes so multi-byte text never gets split
// mid-character.
func threadName(text string) string {
	const maxLen = 80
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return fmt.Sprintf("%s…", string(runes[:maxLen]))
}
