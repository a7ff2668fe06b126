package slack

import (
	"context"
	"errors"

	"github.com/slack-go/slack"
	"github.com/threadline/threadline/internal/database"
)

// ErrNotConnected is returned when a post is attempted without an active
// Slack client.
var ErrNotConnected = errors.New("slack client not connected")

// Poster posts messages into Slack threads via the managed client. It
// implements relay.Poster and ingest.Notifier.
type Poster struct {
	manager *Manager
}

// NewPoster creates a poster over the manager's client.
func NewPoster(manager *Manager) *Poster {
	return &Poster{manager: manager}
}

// Platform returns the platform tag this poster serves.
func (p *Poster) Platform() database.Platform {
	return database.PlatformSlack
}

// PostThreadReply posts text into the given channel thread, impersonating
// username when provided, and returns the posted message's timestamp.
func (p *Poster) PostThreadReply(ctx context.Context, channelID, threadTS, username, text string) (string, error) {
	client := p.manager.GetClient()
	if client == nil {
		return "", ErrNotConnected
	}

	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(threadTS),
	}
	if username != "" {
		opts = append(opts, slack.MsgOptionUsername(username))
	}

	_, timestamp, err := client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", err
	}
	return timestamp, nil
}

// PostThreadNotice posts a short informational reply, used for the
// best-effort "tracked" notice on thread import.
func (p *Poster) PostThreadNotice(channelID, threadTS, text string) error {
	_, err := p.PostThreadReply(context.Background(), channelID, threadTS, "", text)
	return err
}
