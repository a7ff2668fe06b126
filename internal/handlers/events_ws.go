package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/threadline/threadline/internal/bus"
)

const (
	eventWriteWait = 10 * time.Second
	eventPingEvery = 30 * time.Second
)

// EventStreamHandler pushes bus events to websocket clients so a frontend
// can refresh threads as inbound syncs land.
type EventStreamHandler struct {
	bus           *bus.Bus
	handoffSecret string
	upgrader      websocket.Upgrader
	log           zerolog.Logger
}

// NewEventStreamHandler creates the stream handler. When handoffSecret is
// set, clients must present a valid handoff token and only see events for
// the token's organization.
func NewEventStreamHandler(b *bus.Bus, handoffSecret string, logger zerolog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		bus:           b,
		handoffSecret: handoffSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.With().Str("component", "event-stream").Logger(),
	}
}

// HandleEvents upgrades the connection and streams events until the client
// disconnects.
func (h *EventStreamHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	orgID := ""
	if h.handoffSecret != "" {
		var err error
		orgID, err = VerifyHandoffToken(h.handoffSecret, r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.bus.Subscribe()
	defer cancel()

	// Reader goroutine: we never expect client frames, but reading is what
	// surfaces the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingEvery)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-events:
			if orgID != "" && ev.OrganizationID != "" && ev.OrganizationID != orgID {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
