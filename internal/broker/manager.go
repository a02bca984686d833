package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/identity"
	"CapIot.telemetry/internal/models"
)

const defaultInboxSize = 64

// Manager owns the sessions of every configured credential.
type Manager struct {
	dialer   Dialer
	topic    string
	resolver identity.Resolver
	ingester Ingester
	syncer   AccountSyncer
	logger   zerolog.Logger

	inboxSize int

	mu       sync.RWMutex
	sessions map[string]*Session
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager creates a new Manager. syncer may be nil.
func NewManager(dialer Dialer, topic string, resolver identity.Resolver, ingester Ingester, syncer AccountSyncer, logger zerolog.Logger) *Manager {
	return &Manager{
		dialer:    dialer,
		topic:     topic,
		resolver:  resolver,
		ingester:  ingester,
		syncer:    syncer,
		logger:    logger.With().Str("component", "broker").Logger(),
		inboxSize: defaultInboxSize,
		sessions:  make(map[string]*Session),
	}
}

// Start opens one session per distinct, non-empty credential. Dial failures
// are logged and the credential is skipped; Start itself never fails on them.
func (m *Manager) Start(ctx context.Context, credentials []string) {
	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	started := 0
	for _, credential := range credentials {
		if credential == "" {
			continue
		}
		m.mu.RLock()
		_, dup := m.sessions[credential]
		m.mu.RUnlock()
		if dup {
			continue
		}

		s := newSession(credential, m.topic, m.inboxSize, m.resolver, m.ingester, m.syncer, &m.wg, m.logger)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			s.run(runCtx)
		}()

		if _, err := m.dialer.Dial(runCtx, credential, s.handlers()); err != nil {
			s.logger.Error().Err(err).Msg("Failed to start MQTT session")
			close(s.done)
			continue
		}

		m.mu.Lock()
		m.sessions[credential] = s
		m.mu.Unlock()
		started++
	}

	if started == 0 {
		m.logger.Warn().Msg("No device credentials configured, no MQTT sessions started")
		return
	}
	m.logger.Info().Int("sessions", started).Str("topic", m.topic).Msg("MQTT sessions started")
}

// Stop disconnects every session and waits for their actors, and any control
// sync they started, to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	cancel := m.cancel
	m.mu.Unlock()

	for _, s := range sessions {
		if conn := s.currentConn(); conn != nil {
			conn.Disconnect()
		}
		close(s.done)
	}
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info().Int("sessions", len(sessions)).Msg("MQTT sessions stopped")
}

// Session returns the session for credential.
func (m *Manager) Session(credential string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[credential]
	return s, ok
}

// Len returns the number of running sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// PushAttribute publishes {key: value} through the credential's session.
func (m *Manager) PushAttribute(_ context.Context, credential string, key models.Attribute, value any) error {
	s, ok := m.Session(credential)
	if !ok {
		return fmt.Errorf("push %s: no session for credential", key)
	}
	payload, err := json.Marshal(map[string]any{string(key): value})
	if err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	if err := s.Publish(payload); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}
