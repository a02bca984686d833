package broker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/identity"
	"CapIot.telemetry/internal/logging"
	"CapIot.telemetry/internal/models"
)

// Ingester stores the readings of one message for a resolved account.
type Ingester interface {
	IngestForAccount(ctx context.Context, accountID uint, payload models.Payload, receivedAt time.Time) error
}

// AccountSyncer is told when a session resolves its account, so the control
// state can be seeded from what the device reports.
type AccountSyncer interface {
	SyncFromDevice(ctx context.Context, credential string, accountID uint) error
}

// firstConnectRequest asks the device to report its current readings.
var firstConnectRequest = func() []byte {
	keys := make([]string, 0, len(models.ReadingTypes))
	for _, r := range models.ReadingTypes {
		keys = append(keys, string(r))
	}
	b, _ := json.Marshal(map[string]string{"First_connect": strings.Join(keys, ",")})
	return b
}()

type inbound struct {
	payload    []byte
	receivedAt time.Time
	reset      bool
}

// Session is the actor owning one credential's broker connection. Messages
// are handled one at a time in arrival order by the goroutine started in run.
// The account id resolved for the credential is cached by that goroutine and
// dropped whenever the connection is re-established, together with any entry
// a caching resolver holds for the credential.
type Session struct {
	credential string
	topic      string
	resolver   identity.Resolver
	ingester   Ingester
	syncer     AccountSyncer
	logger     zerolog.Logger
	now        func() time.Time

	inbox chan inbound
	done  chan struct{}
	// tracks background work started by the actor, shared with the Manager
	wg *sync.WaitGroup

	mu   sync.Mutex
	conn Conn

	// owned by the run goroutine
	accountID uint
	resolved  bool
}

func newSession(credential, topic string, buffer int, resolver identity.Resolver, ingester Ingester, syncer AccountSyncer, wg *sync.WaitGroup, logger zerolog.Logger) *Session {
	return &Session{
		credential: credential,
		topic:      topic,
		resolver:   resolver,
		ingester:   ingester,
		syncer:     syncer,
		logger:     logger.With().Str("credential", logging.MaskCredential(credential)).Logger(),
		now:        time.Now,
		inbox:      make(chan inbound, buffer),
		done:       make(chan struct{}),
		wg:         wg,
	}
}

// Credential returns the device credential the session authenticates with.
func (s *Session) Credential() string { return s.credential }

func (s *Session) handlers() ConnHandlers {
	return ConnHandlers{
		OnConnect: s.onConnect,
		OnConnectionLost: func(err error) {
			s.logger.Warn().Err(err).Msg("MQTT connection lost")
		},
		OnReconnecting: func() {
			s.logger.Info().Msg("MQTT reconnecting")
		},
	}
}

func (s *Session) onConnect(conn Conn) {
	s.setConn(conn)
	s.logger.Info().Msg("MQTT connected")
	s.enqueue(inbound{reset: true})

	if err := conn.Subscribe(s.topic, s.onMessage); err != nil {
		s.logger.Error().Err(err).Str("topic", s.topic).Msg("Failed to subscribe to MQTT topic")
		return
	}
	s.logger.Info().Str("topic", s.topic).Msg("Subscribed to MQTT topic")

	if err := conn.Publish(s.topic, firstConnectRequest); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to request current attributes")
	}
}

func (s *Session) onMessage(payload []byte) {
	s.enqueue(inbound{payload: payload, receivedAt: s.now()})
}

// enqueue blocks while the inbox is full so no message is lost or reordered.
func (s *Session) enqueue(m inbound) {
	select {
	case s.inbox <- m:
	case <-s.done:
		s.logger.Debug().Msg("Session stopped, message dropped")
	}
}

func (s *Session) setConn(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) currentConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Publish sends payload on the session topic.
func (s *Session) Publish(payload []byte) error {
	conn := s.currentConn()
	if conn == nil {
		return errNotConnected
	}
	return conn.Publish(s.topic, payload)
}

var errNotConnected = errors.New("session not connected")

func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.inbox:
			s.process(ctx, m)
		}
	}
}

func (s *Session) process(ctx context.Context, m inbound) {
	if m.reset {
		s.accountID, s.resolved = 0, false
		if inv, ok := s.resolver.(identity.Invalidator); ok {
			if err := inv.Invalidate(ctx, s.credential); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to invalidate cached account")
			}
		}
		return
	}

	payload, err := models.ParsePayload(m.payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed payload")
		return
	}

	if !s.resolved {
		id, err := s.resolver.Resolve(ctx, s.credential)
		if errors.Is(err, identity.ErrAccountNotFound) {
			s.logger.Warn().Str("tag", "security").Msg("Dropping message for unregistered credential")
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to resolve credential")
			return
		}
		s.accountID, s.resolved = id, true
		s.logger.Info().Uint("account_id", id).Msg("Resolved account for session")
		if s.syncer != nil {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if err := s.syncer.SyncFromDevice(ctx, s.credential, id); err != nil {
					s.logger.Warn().Err(err).Uint("account_id", id).Msg("Initial control sync failed")
				}
			}()
		}
	}

	if err := s.ingester.IngestForAccount(ctx, s.accountID, payload, m.receivedAt); err != nil {
		s.logger.Error().Err(err).Uint("account_id", s.accountID).Msg("Failed to ingest message")
	}
}
