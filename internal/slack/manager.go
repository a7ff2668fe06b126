// Package slack holds the Slack-facing pieces: the socket mode connection
// manager, the event bridge into the ingest dispatcher, the outbound poster,
// and the installation store over the integration config.
package slack

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// Credentials are the app-level Slack tokens from configuration.
type Credentials struct {
	BotToken string
	AppToken string
}

// Configured reports whether both tokens are present.
func (c Credentials) Configured() bool {
	return c.BotToken != "" && c.AppToken != ""
}

// Manager manages the Slack client lifecycle with hot-reload support
type Manager struct {
	mu sync.RWMutex

	creds Credentials
	log   zerolog.Logger

	// Current active clients
	client       *slack.Client
	socketClient *socketmode.Client

	// Control channels
	stopChan   chan struct{}
	doneChan   chan struct{}
	reloadChan chan struct{}

	// Event handler - receives both socket client and regular client
	eventHandler func(*socketmode.Client, *slack.Client)

	// State
	running bool
}

// NewManager creates a new Slack manager
func NewManager(creds Credentials, logger zerolog.Logger) *Manager {
	return &Manager{
		creds:      creds,
		log:        logger.With().Str("component", "slack-manager").Logger(),
		reloadChan: make(chan struct{}, 1),
	}
}

// GetClient returns the current Slack client (may be nil if not configured)
func (m *Manager) GetClient() *slack.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// IsRunning returns true if Socket Mode is currently active
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// SetEventHandler sets the function that will handle socket mode events.
// The handler receives both the socket mode client and the regular client.
func (m *Manager) SetEventHandler(handler func(*socketmode.Client, *slack.Client)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHandler = handler
}

// Start initializes and starts the Slack connection if tokens are configured.
func (m *Manager) Start(ctx context.Context) error {
	if !m.creds.Configured() {
		m.log.Info().Msg("slack tokens not configured, socket mode disabled")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Stop existing connection if running
	if m.running {
		m.stopLocked()
	}

	m.client = slack.New(
		m.creds.BotToken,
		slack.OptionDebug(false),
		slack.OptionAppLevelToken(m.creds.AppToken),
	)
	m.socketClient = socketmode.New(
		m.client,
		socketmode.OptionDebug(false),
	)

	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})

	// Start the event handler if set - pass both clients to avoid deadlock
	if m.eventHandler != nil {
		m.eventHandler(m.socketClient, m.client)
	}

	go func() {
		defer close(m.doneChan)
		m.log.Info().Msg("starting socket mode connection")

		if err := m.socketClient.RunContext(ctx); err != nil {
			select {
			case <-m.stopChan:
				m.log.Info().Msg("socket mode stopped gracefully")
			default:
				m.log.Error().Err(err).Msg("socket mode error")
			}
		}
	}()

	m.running = true
	m.log.Info().Msg("slack integration active")
	return nil
}

// Stop gracefully stops the Slack connection
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

// stopLocked stops the connection (caller must hold the lock)
func (m *Manager) stopLocked() {
	if !m.running {
		return
	}

	m.log.Info().Msg("stopping slack connection")
	close(m.stopChan)

	select {
	case <-m.doneChan:
	default:
	}

	m.running = false
	m.client = nil
	m.socketClient = nil
}

// Reload restarts the connection, picking up integration changes.
func (m *Manager) Reload(ctx context.Context) error {
	m.log.Info().Msg("reloading slack connection")
	return m.Start(ctx)
}

// TriggerReload signals that a reload is needed (non-blocking)
func (m *Manager) TriggerReload() {
	select {
	case m.reloadChan <- struct{}{}:
	default:
		m.log.Debug().Msg("reload already pending")
	}
}

// WatchForReloads runs a loop that watches for reload signals
func (m *Manager) WatchForReloads(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reloadChan:
			if err := m.Reload(ctx); err != nil {
				m.log.Error().Err(err).Msg("slack reload failed")
			}
		}
	}
}
