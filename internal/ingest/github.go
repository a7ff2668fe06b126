package ingest

import (
	"context"

	"github.com/threadline/threadline/internal/bus"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/status"
)

// handleIssueClosed resolves the issue id to candidate threads and moves each
// one forward to Resolved. Safe against redelivery: threads that already
// moved produce no further writes.
func (d *Dispatcher) handleIssueClosed(ctx context.Context, ev Event) error {
	if ev.GitHub == nil || ev.GitHub.IssueID == "" {
		return nil
	}
	target, ok := status.ForGitHubEvent(string(ev.Type))
	if !ok {
		return nil
	}

	threads, err := d.resolver.ThreadsByIssueID(ev.GitHub.IssueID)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		d.log.Debug().Str("issue_id", ev.GitHub.IssueID).Msg("no thread linked to closed issue")
		return nil
	}
	return d.resolveExternally(threads, target)
}

// handlePullRequestClosed mirrors handleIssueClosed for pull requests. Merged
// and unmerged closes both drive the same transition.
func (d *Dispatcher) handlePullRequestClosed(ctx context.Context, ev Event) error {
	if ev.GitHub == nil || ev.GitHub.PRID == "" {
		return nil
	}
	target, ok := status.ForGitHubEvent(string(ev.Type))
	if !ok {
		return nil
	}

	threads, err := d.resolver.ThreadsByPRID(ev.GitHub.PRID)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		d.log.Debug().Str("pr_id", ev.GitHub.PRID).Msg("no thread linked to closed pull request")
		return nil
	}
	return d.resolveExternally(threads, target)
}

// resolveExternally moves each candidate thread to the target status from the
// translation table and appends the audit update. The update is self-marked
// as replicated to GitHub so the relay never echoes the change back to the
// platform it came from.
func (d *Dispatcher) resolveExternally(threads []database.Thread, target status.Status) error {
	for i := range threads {
		thread := &threads[i]

		oldStatus := thread.Status
		if _, applied := status.TransitionOnExternalClose(oldStatus); !applied {
			d.log.Debug().
				Uint("thread_id", thread.ID).
				Str("status", oldStatus.Label()).
				Msg("thread already settled, skipping external close")
			continue
		}
		newStatus := target

		if err := database.SetThreadStatus(d.db, thread.ID, newStatus); err != nil {
			return err
		}

		update := database.Update{
			ThreadID: thread.ID,
			Type:     database.UpdateTypeStatusChanged,
			UserID:   nil,
			Metadata: database.JSONB{
				"oldStatus":      int(oldStatus),
				"newStatus":      int(newStatus),
				"oldStatusLabel": oldStatus.Label(),
				"newStatusLabel": newStatus.Label(),
				"source":         string(database.PlatformGitHub),
			},
			Replicated: database.JSONB{
				string(database.PlatformGitHub): true,
			},
		}
		if err := database.AppendUpdate(d.db, &update); err != nil {
			return err
		}

		d.bus.Publish(bus.Event{
			Kind:           bus.KindThreadChanged,
			OrganizationID: thread.OrganizationID,
			ThreadID:       thread.ID,
		})
		d.bus.Publish(bus.Event{
			Kind:           bus.KindUpdateCreated,
			OrganizationID: thread.OrganizationID,
			ThreadID:       thread.ID,
			UpdateID:       update.ID,
		})

		d.log.Info().
			Uint("thread_id", thread.ID).
			Str("old_status", oldStatus.Label()).
			Str("new_status", newStatus.Label()).
			Msg("thread resolved by external close")
	}
	return nil
}
