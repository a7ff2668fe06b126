package slack

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/ingest"
)

// EventBridge feeds socket mode events into the ingest dispatcher. Every
// Events API delivery is acked before any work happens; Slack redelivers
// events that are not acked promptly, and redeliveries are the ingestor's
// problem, not the transport's.
type EventBridge struct {
	dispatcher *ingest.Dispatcher
	log        zerolog.Logger

	userCache *ttlcache.Cache[string, *slack.User]
}

// NewEventBridge creates an event bridge for the given dispatcher.
func NewEventBridge(dispatcher *ingest.Dispatcher, logger zerolog.Logger) *EventBridge {
	b := &EventBridge{
		dispatcher: dispatcher,
		log:        logger.With().Str("component", "slack-events").Logger(),
		userCache:  ttlcache.New(ttlcache.WithTTL[string, *slack.User](24 * time.Hour)),
	}
	go b.userCache.Start()
	return b
}

// HandleSocketMode starts the socket mode event loop. Registered as the
// manager's event handler.
func (b *EventBridge) HandleSocketMode(socketClient *socketmode.Client, client *slack.Client) {
	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					b.log.Debug().Interface("event", evt).Msg("ignored unparseable event")
					continue
				}

				// Ack immediately to avoid Slack retries
				socketClient.Ack(*evt.Request)

				go b.handleEventsAPI(client, eventsAPIEvent)

			case socketmode.EventTypeInteractive:
				socketClient.Ack(*evt.Request)

			case socketmode.EventTypeSlashCommand:
				socketClient.Ack(*evt.Request)

			default:
				b.log.Debug().Str("type", string(evt.Type)).Msg("unhandled socket mode event")
			}
		}
	}()
}

func (b *EventBridge) handleEventsAPI(client *slack.Client, ev slackevents.EventsAPIEvent) {
	if ev.Type != slackevents.CallbackEvent {
		return
	}

	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Edits, deletes, joins etc. carry a subtype and are not new content.
		if inner.SubType != "" {
			return
		}

		msg := ingest.SlackMessage{
			TeamID:          ev.TeamID,
			ChannelID:       inner.Channel,
			UserID:          inner.User,
			UserName:        b.userName(client, inner.User),
			BotID:           inner.BotID,
			Text:            inner.Text,
			Timestamp:       inner.TimeStamp,
			ThreadTimestamp: inner.ThreadTimeStamp,
		}
		b.dispatcher.Dispatch(context.Background(), ingest.Event{
			Platform: database.PlatformSlack,
			Type:     ingest.EventMessage,
			Slack:    &msg,
		})
	}
}

// userName resolves a display name for the platform user, cached because
// busy channels repeat authors constantly.
func (b *EventBridge) userName(client *slack.Client, userID string) string {
	if userID == "" || client == nil {
		return ""
	}
	if item := b.userCache.Get(userID); item != nil {
		return preferredName(item.Value())
	}

	user, err := client.GetUserInfo(userID)
	if err != nil {
		b.log.Debug().Err(err).Str("user_id", userID).Msg("failed to fetch user info")
		return ""
	}
	b.userCache.Set(userID, user, ttlcache.DefaultTTL)
	return preferredName(user)
}

func preferredName(user *slack.User) string {
	if user == nil {
		return ""
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	if user.RealName != "" {
		return user.RealName
	}
	return user.Name
}
