// Package broker keeps one MQTT session per device credential and feeds the
// messages each session receives into the ingestion pipeline.
package broker

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/logging"
)

// Conn is an established broker connection.
type Conn interface {
	Subscribe(topic string, handler func(payload []byte)) error
	Publish(topic string, payload []byte) error
	Disconnect()
}

// ConnHandlers are the lifecycle callbacks a Dialer wires into a connection.
// OnConnect runs after the first connect and after every reconnect.
type ConnHandlers struct {
	OnConnect        func(Conn)
	OnConnectionLost func(error)
	OnReconnecting   func()
}

// Dialer opens a connection authenticated by a device credential.
type Dialer interface {
	Dial(ctx context.Context, credential string, handlers ConnHandlers) (Conn, error)
}

// PahoDialer dials an MQTT broker with the Eclipse Paho client. The
// credential is sent as the MQTT username; the client reconnects on its own.
type PahoDialer struct {
	brokerURL      string
	connectTimeout time.Duration
	opTimeout      time.Duration
	logger         zerolog.Logger
}

// NewPahoDialer creates a new PahoDialer for brokerURL (e.g. tcp://host:1883).
func NewPahoDialer(brokerURL string, connectTimeout time.Duration, logger zerolog.Logger) *PahoDialer {
	return &PahoDialer{
		brokerURL:      brokerURL,
		connectTimeout: connectTimeout,
		opTimeout:      connectTimeout,
		logger:         logger.With().Str("component", "mqtt").Logger(),
	}
}

// Dial starts connecting and returns immediately. The first connect is
// retried in the background; its outcome is reported through handlers.
func (d *PahoDialer) Dial(_ context.Context, credential string, handlers ConnHandlers) (Conn, error) {
	masked := logging.MaskCredential(credential)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(d.brokerURL)
	opts.SetClientID(fmt.Sprintf("capiot-%s", uuid.NewString()))
	opts.SetUsername(credential)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectTimeout(d.connectTimeout)
	opts.SetKeepAlive(30 * time.Second)

	var conn *pahoConn
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if handlers.OnConnect != nil {
			handlers.OnConnect(conn)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if handlers.OnConnectionLost != nil {
			handlers.OnConnectionLost(err)
		}
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		if handlers.OnReconnecting != nil {
			handlers.OnReconnecting()
		}
	})

	client := mqtt.NewClient(opts)
	conn = &pahoConn{client: client, timeout: d.opTimeout}

	d.logger.Info().Str("broker", d.brokerURL).Str("credential", masked).Msg("Connecting to MQTT broker")
	token := client.Connect()
	go func() {
		if !token.WaitTimeout(d.connectTimeout) {
			d.logger.Warn().Str("credential", masked).Msg("MQTT connect still pending, retrying in background")
			return
		}
		if err := token.Error(); err != nil {
			d.logger.Error().Err(err).Str("credential", masked).Msg("MQTT connect failed")
		}
	}()
	return conn, nil
}

type pahoConn struct {
	client  mqtt.Client
	timeout time.Duration
}

func (c *pahoConn) Subscribe(topic string, handler func(payload []byte)) error {
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	return token.Error()
}

func (c *pahoConn) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return token.Error()
}

func (c *pahoConn) Disconnect() {
	c.client.Disconnect(250)
}
