// Package discord posts relayed messages into Discord channels.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/threadline/threadline/internal/database"
)

// Poster posts thread replies to Discord. Discord has no per-message
// username impersonation on plain bot messages, so the author name is
// prefixed into the content instead.
type Poster struct {
	session *discordgo.Session
}

// NewPoster creates a poster authenticated with the bot token.
func NewPoster(botToken string) (*Poster, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Poster{session: session}, nil
}

// Platform returns the platform tag this poster serves.
func (p *Poster) Platform() database.Platform {
	return database.PlatformDiscord
}

// PostThreadReply posts text as a reply to the message identified by
// threadTS in the given channel, returning the posted message id.
func (p *Poster) PostThreadReply(ctx context.Context, channelID, threadTS, username, text string) (string, error) {
	content := text
	if username != "" {
		content = fmt.Sprintf("**%s**: %s", username, text)
	}

	msg, err := p.session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		MessageID: threadTS,
		ChannelID: channelID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}
