// Package bus owns the event-bus connection lifecycle: connect, declare and
// bind the durable subscription, consume with immediate acknowledgment, and
// reconnect with a fixed delay on any connection-level failure. The consume
// loop is the relay's sole top-level control structure and never terminates
// on its own; only context cancellation ends it.
package bus

import (
	"context"
	"time"

	"vmnotify/internal/types"
)

// Delivery is one received message: the opaque payload plus the routing key
// it arrived under. The message is acknowledged by the transport before the
// handler runs (at-most-once processing).
type Delivery struct {
	Body       []byte
	RoutingKey string
}

// Handler processes one delivery. Handler errors must be handled internally;
// the consumer ignores anything a handler does and moves to the next message.
type Handler func(ctx context.Context, d Delivery)

// Session is an established subscription: a declared, bound queue with a
// live delivery stream. The stream channel closes when the underlying
// connection fails, which signals the consumer to reconnect.
type Session interface {
	// Deliveries returns the delivery stream for this session.
	Deliveries() <-chan Delivery

	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Dialer establishes sessions. The production implementation speaks AMQP;
// tests substitute scripted fakes to drive the reconnect loop.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Consumer runs the subscribe/receive/reconnect loop.
type Consumer struct {
	dialer         Dialer
	reconnectDelay time.Duration
	logger         types.Logger
	sleepFn        func(time.Duration)
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithSleepFunc overrides the reconnect sleep. For tests.
func WithSleepFunc(fn func(time.Duration)) ConsumerOption {
	return func(c *Consumer) {
		c.sleepFn = fn
	}
}

// NewConsumer creates a Consumer that redials through dialer after any
// failure, waiting reconnectDelay between attempts.
func NewConsumer(dialer Dialer, reconnectDelay time.Duration, logger types.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = types.NopLogger{}
	}

	c := &Consumer{
		dialer:         dialer,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		sleepFn:        time.Sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run blocks, feeding every received message to handler. All errors during
// subscription are treated as recoverable: the loop logs, waits the fixed
// delay, and starts over from the dial. Run returns only when ctx ends.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sess, err := c.dialer.Dial(ctx)
		if err != nil {
			c.logger.Warn("bus connection failed",
				"error", err.Error(),
				"retry_in", c.reconnectDelay.String(),
			)
			c.wait(ctx)
			continue
		}

		c.logger.Info("bus subscription established")
		c.receive(ctx, sess, handler)
		_ = sess.Close()

		if err := ctx.Err(); err != nil {
			return err
		}

		c.logger.Warn("bus subscription lost",
			"retry_in", c.reconnectDelay.String(),
		)
		c.wait(ctx)
	}
}

// receive pulls deliveries until the stream closes or the context ends.
func (c *Consumer) receive(ctx context.Context, sess Session, handler Handler) {
	deliveries := sess.Deliveries()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			handler(ctx, d)
		}
	}
}

// wait pauses for the reconnect delay. Cancellation is observed at the top
// of the Run loop after the pause.
func (c *Consumer) wait(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.sleepFn(c.reconnectDelay)
}
