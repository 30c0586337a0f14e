package bus

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"vmnotify/internal/config"
	"vmnotify/internal/types"
)

// AMQPDialer implements Dialer over an AMQP 0-9-1 broker. Each Dial opens a
// fresh connection and channel, declares the durable queue, binds it to the
// notification exchange under every configured routing key, and starts an
// auto-acknowledging consumer.
type AMQPDialer struct {
	cfg    config.BusConfig
	logger types.Logger
}

// NewAMQPDialer creates an AMQPDialer.
func NewAMQPDialer(cfg config.BusConfig, logger types.Logger) *AMQPDialer {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &AMQPDialer{cfg: cfg, logger: logger}
}

// Dial performs the full connect/declare/bind/consume sequence. Any failure
// tears down whatever was opened and is reported to the caller for the
// reconnect loop to retry.
func (d *AMQPDialer) Dial(ctx context.Context) (Session, error) {
	conn, err := amqp.DialConfig(d.uri(), d.connConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Durable, non-auto-deleting queue so bound messages survive broker
	// restarts and relay downtime.
	if _, err := ch.QueueDeclare(d.cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", d.cfg.Queue, err)
	}

	for _, key := range d.cfg.RoutingKeys {
		if err := ch.QueueBind(d.cfg.Queue, key, d.cfg.Exchange, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind queue %q to %q with key %q: %w", d.cfg.Queue, d.cfg.Exchange, key, err)
		}
		d.logger.Info("queue bound",
			"queue", d.cfg.Queue,
			"exchange", d.cfg.Exchange,
			"routing_key", key,
		)
	}

	tag := "vmnotify-" + uuid.NewString()
	// Auto-ack: the broker considers the message delivered the moment it
	// is handed over. A crash mid-handler loses that message.
	deliveries, err := ch.Consume(d.cfg.Queue, tag, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("start consumer: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for msg := range deliveries {
			select {
			case out <- Delivery{Body: msg.Body, RoutingKey: msg.RoutingKey}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &amqpSession{conn: conn, deliveries: out}, nil
}

// uri builds the broker URI from the configured endpoint and credentials.
func (d *AMQPDialer) uri() string {
	scheme := "amqp"
	if d.cfg.TLS {
		scheme = "amqps"
	}

	u := amqp.URI{
		Scheme:   scheme,
		Host:     d.cfg.Host,
		Port:     d.cfg.Port,
		Username: d.cfg.Username,
		Password: d.cfg.Password.Unmask(),
		Vhost:    d.cfg.VHost,
	}
	return u.String()
}

func (d *AMQPDialer) connConfig() amqp.Config {
	cfg := amqp.Config{
		Heartbeat:  d.cfg.Heartbeat,
		Properties: amqp.NewConnectionProperties(),
	}
	cfg.Properties.SetClientConnectionName("vmnotify")

	if d.cfg.TLS {
		cfg.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: d.cfg.TLSSkipVerify,
		}
	}

	return cfg
}

// amqpSession adapts an open AMQP connection to the Session interface. The
// delivery channel closes when the broker connection drops, which the
// consumer loop treats as the reconnect signal.
type amqpSession struct {
	conn       *amqp.Connection
	deliveries <-chan Delivery
}

func (s *amqpSession) Deliveries() <-chan Delivery {
	return s.deliveries
}

func (s *amqpSession) Close() error {
	return s.conn.Close()
}
