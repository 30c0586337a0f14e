package notify

import (
	"context"

	"github.com/google/uuid"

	"vmnotify/internal/retry"
	"vmnotify/internal/types"
)

// Notifier delivers a formatted message to each recipient independently:
// one send attempt sequence per recipient, so one mailbox's failure never
// blocks another's. Delivery failures are logged, never propagated; the
// relay's availability outranks precise delivery guarantees.
type Notifier struct {
	mailer Mailer
	runner *retry.Runner
	logger types.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(mailer Mailer, runner *retry.Runner, logger types.Logger) *Notifier {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Notifier{
		mailer: mailer,
		runner: runner,
		logger: logger,
	}
}

// Deliver sends the message to every recipient in turn and reports the
// per-recipient outcomes. Each recipient gets at most the policy's
// MaxAttempts transport attempts with the fixed delay between them.
func (n *Notifier) Deliver(ctx context.Context, msg types.NotificationMessage, recipients []string) []types.DeliveryOutcome {
	// One reference id per event, shared across recipients, so all the
	// resulting mails correlate in logs.
	refID := uuid.NewString()

	outcomes := make([]types.DeliveryOutcome, 0, len(recipients))
	for _, recipient := range recipients {
		outcomes = append(outcomes, n.deliverOne(ctx, msg, recipient, refID))
	}
	return outcomes
}

func (n *Notifier) deliverOne(ctx context.Context, msg types.NotificationMessage, recipient, refID string) types.DeliveryOutcome {
	mail := types.Mail{
		To:          recipient,
		Subject:     msg.Subject,
		Body:        msg.Body,
		ReferenceID: refID,
	}

	attempts := 0
	err := n.runner.Do(ctx, func(ctx context.Context) error {
		attempts++
		return n.mailer.Send(ctx, mail)
	}, func(attempt int, err error) {
		n.logger.Warn("mail delivery attempt failed",
			"recipient", recipient,
			"attempt", attempt,
			"max_attempts", n.runner.Policy().MaxAttempts,
			"reference_id", refID,
			"error", err.Error(),
		)
	})

	if err != nil {
		n.logger.Error("mail delivery failed after all attempts",
			"recipient", recipient,
			"attempts", attempts,
			"reference_id", refID,
			"error", err.Error(),
		)
	} else {
		n.logger.Info("mail delivered",
			"recipient", recipient,
			"attempts", attempts,
			"reference_id", refID,
		)
	}

	return types.DeliveryOutcome{
		Recipient: recipient,
		Attempts:  attempts,
		Err:       err,
	}
}
