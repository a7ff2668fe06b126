package relay

import (
	"fmt"

	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/status"
)

// FormatUpdate renders an audit update as the short human-readable line
// posted into the platform thread.
func FormatUpdate(update *database.Update) string {
	actor := metaString(update.Metadata, "userName")
	if actor == "" {
		actor = "Someone"
	}

	switch update.Type {
	case database.UpdateTypeStatusChanged:
		label := metaString(update.Metadata, "newStatusLabel")
		if label == "" {
			if n, ok := metaInt(update.Metadata, "newStatus"); ok {
				label = status.Status(n).Label()
			} else {
				label = "Unknown"
			}
		}
		return fmt.Sprintf("%s changed status to %s", actor, label)

	case database.UpdateTypePriorityChanged:
		label := metaString(update.Metadata, "newPriorityLabel")
		if label == "" {
			if n, ok := metaInt(update.Metadata, "newPriority"); ok {
				label = fmt.Sprintf("P%d", n)
			} else {
				label = "Unknown"
			}
		}
		return fmt.Sprintf("%s changed priority to %s", actor, label)

	case database.UpdateTypeAssignedChanged:
		assignee := metaString(update.Metadata, "assignedName")
		if assignee == "" {
			return fmt.Sprintf("%s changed the assignee", actor)
		}
		return fmt.Sprintf("%s assigned this thread to %s", actor, assignee)

	case database.UpdateTypeMarkedDuplicate:
		return fmt.Sprintf("%s marked this thread as a duplicate", actor)

	default:
		return fmt.Sprintf("%s updated this thread", actor)
	}
}

func metaString(meta database.JSONB, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

// metaInt reads a numeric metadata value. JSON round-trips numbers as
// float64, but freshly built updates may still hold Go ints.
func metaInt(meta database.JSONB, key string) (int, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
