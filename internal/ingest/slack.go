package ingest

import (
	"context"
	"errors"

	"github.com/threadline/threadline/internal/bus"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/richtext"
	"github.com/threadline/threadline/internal/status"
)

const trackedNotice = "This conversation is now tracked in the support portal."

// handleSlackMessage processes one inbound Slack message. The transport has
// already acked the delivery; everything past this point is best effort and
// replay safe.
func (d *Dispatcher) handleSlackMessage(ctx context.Context, ev Event) error {
	msg := ev.Slack
	if msg == nil {
		return nil
	}

	// Bot messages include our own "tracked" notices; relaying them back in
	// would loop.
	if msg.BotID != "" {
		d.log.Debug().Str("channel", msg.ChannelID).Msg("skipping bot message")
		return nil
	}

	integration, err := d.resolver.IntegrationByTeamID(msg.TeamID)
	if errors.Is(err, database.ErrIntegrationNotFound) {
		d.log.Debug().Str("team_id", msg.TeamID).Msg("no enabled slack integration for team")
		return nil
	}
	if err != nil {
		return err
	}

	if !integration.ChannelSelected(msg.ChannelID) {
		d.log.Debug().
			Str("channel", msg.ChannelID).
			Str("team_id", msg.TeamID).
			Msg("channel not selected, ignoring message")
		return nil
	}

	author, err := d.resolver.EnsureAuthor(integration.OrganizationID, msg.UserID, msg.UserName)
	if err != nil {
		return err
	}

	if msg.ThreadTimestamp == "" {
		return d.startThreadFromSlack(integration, author, msg)
	}
	return d.appendSlackReply(integration, author, msg)
}

// startThreadFromSlack imports a channel message as a new thread plus its
// root message. The message timestamp becomes the thread's external id, so a
// redelivered event resolves to the existing thread instead of duplicating
// it.
func (d *Dispatcher) startThreadFromSlack(integration *database.Integration, author *database.Author, msg *SlackMessage) error {
	existing, err := d.resolver.ThreadBySlackTimestamp(integration.OrganizationID, msg.Timestamp)
	if err != nil {
		return err
	}
	if existing != nil {
		// Redelivery, or a crash between the thread and message inserts:
		// make sure the root message is recorded, then stop.
		d.log.Debug().Uint("thread_id", existing.ID).Msg("thread already imported")
		return d.recordSlackMessage(existing, author, msg)
	}

	origin := database.PlatformSlack
	thread := database.Thread{
		OrganizationID:   integration.OrganizationID,
		Name:             threadName(msg.Text),
		Status:           status.Open,
		AuthorID:         author.ID,
		ExternalID:       &msg.Timestamp,
		ExternalOrigin:   &origin,
		ExternalMetadata: database.JSONB{"channelId": msg.ChannelID},
	}
	if err := database.CreateThread(d.db, &thread); err != nil {
		// Lost a concurrent insert race on the unique external link; the
		// winner's row is queryable now.
		winner, lookupErr := d.resolver.ThreadBySlackTimestamp(integration.OrganizationID, msg.Timestamp)
		if lookupErr == nil && winner != nil {
			return d.recordSlackMessage(winner, author, msg)
		}
		return err
	}

	d.bus.Publish(bus.Event{
		Kind:           bus.KindThreadChanged,
		OrganizationID: thread.OrganizationID,
		ThreadID:       thread.ID,
	})

	d.log.Info().
		Uint("thread_id", thread.ID).
		Str("channel", msg.ChannelID).
		Msg("thread imported from slack")

	if err := d.recordSlackMessage(&thread, author, msg); err != nil {
		return err
	}

	// Best-effort notice back into the platform thread; failure only logs.
	if d.notifier != nil {
		go func(channelID, ts string) {
			if err := d.notifier.PostThreadNotice(channelID, ts, trackedNotice); err != nil {
				d.log.Warn().Err(err).
					Str("channel", channelID).
					Msg("failed to post tracked notice")
			}
		}(msg.ChannelID, msg.Timestamp)
	}
	return nil
}

// appendSlackReply records a reply under an already imported thread. Unknown
// parent threads are a silent no-op; a redelivered reply is deduplicated by
// its platform message id.
func (d *Dispatcher) appendSlackReply(integration *database.Integration, author *database.Author, msg *SlackMessage) error {
	thread, err := d.resolver.ThreadBySlackTimestamp(integration.OrganizationID, msg.ThreadTimestamp)
	if err != nil {
		return err
	}
	if thread == nil {
		d.log.Debug().
			Str("thread_ts", msg.ThreadTimestamp).
			Msg("reply to untracked slack thread, ignoring")
		return nil
	}
	return d.recordSlackMessage(thread, author, msg)
}

// recordSlackMessage inserts the platform message under the thread. A
// redelivered message resolves to the existing row by its platform id and
// no-ops.
func (d *Dispatcher) recordSlackMessage(thread *database.Thread, author *database.Author, msg *SlackMessage) error {
	existing, err := database.MessageByExternalID(d.db, thread.ID, msg.Timestamp)
	if err != nil {
		return err
	}
	if existing != nil {
		d.log.Debug().Uint("message_id", existing.ID).Msg("message already recorded, skipping")
		return nil
	}

	origin := database.PlatformSlack
	message := database.Message{
		ThreadID:          thread.ID,
		AuthorID:          author.ID,
		Content:           richtext.FromPlainText(msg.Text),
		Origin:            &origin,
		ExternalMessageID: &msg.Timestamp,
	}
	if err := database.CreateMessage(d.db, &message); err != nil {
		return err
	}

	d.bus.Publish(bus.Event{
		Kind:           bus.KindMessageCreated,
		OrganizationID: thread.OrganizationID,
		ThreadID:       thread.ID,
		MessageID:      message.ID,
	})
	return nil
}
