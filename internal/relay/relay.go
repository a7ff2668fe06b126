// Package relay mirrors internal activity out to the platform a thread is
// linked to. It consumes the mutation bus plus a periodic catch-up query;
// both paths converge on the same idempotent writes (the write-once external
// message id for messages, the per-platform replicated marker for updates),
// so replays and concurrent passes cannot double-post.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/threadline/threadline/internal/bus"
	"github.com/threadline/threadline/internal/database"
	"github.com/threadline/threadline/internal/richtext"
	"gorm.io/gorm"
)

// Poster pushes a message into a platform thread and returns the
// platform-native id of the posted message.
type Poster interface {
	Platform() database.Platform
	PostThreadReply(ctx context.Context, channelID, threadTS, username, text string) (string, error)
}

const defaultCatchUpInterval = 30 * time.Second

// Relay watches for unsent messages and unreplicated updates on
// externally-linked threads and pushes them out.
type Relay struct {
	db      *gorm.DB
	bus     *bus.Bus
	posters map[database.Platform]Poster
	log     zerolog.Logger

	// inflight guards against the catch-up pass and a live bus delivery
	// posting the same update concurrently. Process-local on purpose: running
	// more than one relay worker needs a distributed lease instead.
	mu       sync.Mutex
	inflight map[uint]struct{}

	catchUpInterval time.Duration
}

// New creates a relay. Posters are registered per platform; threads linked to
// a platform without a poster are left alone.
func New(db *gorm.DB, b *bus.Bus, logger zerolog.Logger, posters ...Poster) *Relay {
	r := &Relay{
		db:              db,
		bus:             b,
		posters:         make(map[database.Platform]Poster),
		log:             logger.With().Str("component", "relay").Logger(),
		inflight:        make(map[uint]struct{}),
		catchUpInterval: defaultCatchUpInterval,
	}
	for _, p := range posters {
		r.posters[p.Platform()] = p
	}
	return r
}

// Run blocks until the context is cancelled, processing an initial catch-up
// snapshot, live bus events, and periodic catch-up ticks. Platform failures
// leave the item unmarked so the next pass retries it.
func (r *Relay) Run(ctx context.Context) {
	events, cancel := r.bus.Subscribe()
	defer cancel()

	r.CatchUp(ctx)

	ticker := time.NewTicker(r.catchUpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CatchUp(ctx)
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handleEvent(ctx, ev)
		}
	}
}

// CatchUp runs one full pass over everything still pending.
func (r *Relay) CatchUp(ctx context.Context) {
	messages, err := database.UnsentMessages(r.db)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to query unsent messages")
	} else {
		for i := range messages {
			r.relayMessage(ctx, &messages[i])
		}
	}

	for platform := range r.posters {
		updates, err := database.UnreplicatedUpdates(r.db, platform)
		if err != nil {
			r.log.Error().Err(err).Str("platform", string(platform)).Msg("failed to query unreplicated updates")
			continue
		}
		for i := range updates {
			r.relayUpdate(ctx, &updates[i])
		}
	}
}

func (r *Relay) handleEvent(ctx context.Context, ev bus.Event) {
	switch ev.Kind {
	case bus.KindMessageCreated:
		var msg database.Message
		if err := r.db.Preload("Thread").First(&msg, ev.MessageID).Error; err != nil {
			r.log.Warn().Err(err).Uint("message_id", ev.MessageID).Msg("message from bus not loadable")
			return
		}
		r.relayMessage(ctx, &msg)
	case bus.KindUpdateCreated:
		var update database.Update
		if err := r.db.Preload("Thread").First(&update, ev.UpdateID).Error; err != nil {
			r.log.Warn().Err(err).Uint("update_id", ev.UpdateID).Msg("update from bus not loadable")
			return
		}
		r.relayUpdate(ctx, &update)
	}
}

// relayMessage posts a native message into the platform thread it belongs to
// and records the resulting external message id. Messages that already carry
// an external id (posted earlier, or imported from the platform) are skipped.
func (r *Relay) relayMessage(ctx context.Context, msg *database.Message) {
	if msg.ExternalMessageID != nil {
		return
	}

	thread := msg.Thread
	if !thread.Linked() {
		return
	}
	origin := *thread.ExternalOrigin

	poster, ok := r.posters[origin]
	if !ok {
		return
	}

	channelID := thread.ChannelID()
	if channelID == "" {
		r.log.Warn().Uint("thread_id", thread.ID).Msg("linked thread has no channel metadata")
		return
	}

	// Confirm the platform link is still active before posting.
	if _, err := database.EnabledIntegration(r.db, thread.OrganizationID, origin); err != nil {
		r.log.Debug().
			Uint("thread_id", thread.ID).
			Str("platform", string(origin)).
			Msg("integration inactive, not relaying message")
		return
	}

	username := ""
	if msg.AuthorID != 0 {
		if author, err := database.AuthorByID(r.db, msg.AuthorID); err == nil {
			username = author.Name
		}
	}

	text := richtext.ToMrkdwn(msg.Content)
	externalID, err := poster.PostThreadReply(ctx, channelID, *thread.ExternalID, username, text)
	if err != nil {
		r.log.Warn().Err(err).
			Uint("message_id", msg.ID).
			Str("platform", string(origin)).
			Msg("message relay failed, will retry on next pass")
		return
	}

	wrote, err := database.SetMessageExternalID(r.db, msg.ID, externalID)
	if err != nil {
		r.log.Error().Err(err).Uint("message_id", msg.ID).Msg("failed to record external message id")
		return
	}
	if wrote {
		r.log.Info().
			Uint("message_id", msg.ID).
			Str("external_id", externalID).
			Str("platform", string(origin)).
			Msg("message relayed")
	}
}

// relayUpdate posts a human-readable rendering of an audit update into the
// platform thread and sets the replicated marker. Updates already marked for
// the platform, including self-marked platform-originated ones, never reach
// the poster.
func (r *Relay) relayUpdate(ctx context.Context, update *database.Update) {
	thread := update.Thread
	if !thread.Linked() {
		return
	}
	origin := *thread.ExternalOrigin

	poster, ok := r.posters[origin]
	if !ok {
		return
	}

	if update.ReplicatedTo(origin) {
		return
	}

	r.mu.Lock()
	if _, busy := r.inflight[update.ID]; busy {
		r.mu.Unlock()
		return
	}
	r.inflight[update.ID] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, update.ID)
		r.mu.Unlock()
	}()

	text := FormatUpdate(update)
	ack, err := poster.PostThreadReply(ctx, thread.ChannelID(), *thread.ExternalID, "", text)
	if err != nil {
		r.log.Warn().Err(err).
			Uint("update_id", update.ID).
			Str("platform", string(origin)).
			Msg("update relay failed, will retry on next pass")
		return
	}

	if err := database.MarkUpdateReplicated(r.db, update.ID, origin, ack); err != nil {
		r.log.Error().Err(err).Uint("update_id", update.ID).Msg("failed to set replicated marker")
		return
	}
	r.log.Info().
		Uint("update_id", update.ID).
		Str("platform", string(origin)).
		Msg("update relayed")
}
