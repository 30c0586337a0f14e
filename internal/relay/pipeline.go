// Package relay wires the pipeline stages together: every bus delivery is
// classified, its recipients resolved and its message formatted, and the
// result dispatched. Data flows one way; no stage calls back upstream.
package relay

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"vmnotify/internal/bus"
	"vmnotify/internal/classify"
	"vmnotify/internal/notify"
	"vmnotify/internal/types"
)

// RecipientResolver maps an event to mailbox addresses. An empty result
// triggers the default-recipient fallback.
type RecipientResolver interface {
	Resolve(ctx context.Context, ev types.Event) []string
}

// Notifier dispatches a formatted message to a set of recipients.
type Notifier interface {
	Deliver(ctx context.Context, msg types.NotificationMessage, recipients []string) []types.DeliveryOutcome
}

// Pipeline is the per-message processing chain handed to the bus consumer.
type Pipeline struct {
	classifier *classify.Classifier
	resolver   RecipientResolver
	notifier   Notifier

	// defaults is substituted when resolution yields no recipients, so
	// every event that reaches dispatch has at least one destination.
	defaults []string
	logger   types.Logger
}

// PipelineConfig holds the Pipeline dependencies.
type PipelineConfig struct {
	Classifier        *classify.Classifier
	Resolver          RecipientResolver
	Notifier          Notifier
	DefaultRecipients []string
	Logger            types.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &Pipeline{
		classifier: cfg.Classifier,
		resolver:   cfg.Resolver,
		notifier:   cfg.Notifier,
		defaults:   cfg.DefaultRecipients,
		logger:     logger,
	}
}

// Handle processes one delivery end to end. It never returns an error to
// the consumer: discards are final, and delivery failures are absorbed by
// the notifier's own retry and logging.
func (p *Pipeline) Handle(ctx context.Context, d bus.Delivery) {
	ev, err := p.classifier.Classify(d.Body)
	if err != nil {
		switch {
		case errors.Is(err, classify.ErrUninteresting):
			// The common case: most bus traffic is irrelevant.
			// No log, by design.
		case errors.Is(err, classify.ErrInconclusive):
			p.logger.Info("dropping inconclusive creation event",
				"routing_key", d.RoutingKey,
			)
		default:
			p.logger.Warn("discarding malformed message",
				"routing_key", d.RoutingKey,
				"error", err.Error(),
			)
		}
		return
	}

	p.logger.Info("processing lifecycle event",
		"event_type", ev.Type,
		"kind", string(ev.Kind),
		"subject_id", ev.SubjectID,
	)

	// Recipient resolution and formatting have no data dependency on
	// each other, so they run concurrently. Neither can fail: the
	// resolver degrades to an empty set and the formatter is total.
	var (
		recipients []string
		msg        types.NotificationMessage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recipients = p.resolver.Resolve(gctx, ev)
		return nil
	})
	g.Go(func() error {
		msg = notify.Format(ev)
		return nil
	})
	_ = g.Wait()

	if len(recipients) == 0 {
		recipients = p.defaults
		p.logger.Info("no resolved recipients, using defaults",
			"subject_id", ev.SubjectID,
			"defaults", len(recipients),
		)
	}

	outcomes := p.notifier.Deliver(ctx, msg, recipients)

	delivered := 0
	for _, o := range outcomes {
		if o.Err == nil {
			delivered++
		}
	}
	p.logger.Info("event dispatched",
		"event_type", ev.Type,
		"subject_id", ev.SubjectID,
		"recipients", len(recipients),
		"delivered", delivered,
	)
}
