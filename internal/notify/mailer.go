package notify

import (
	"context"

	"vmnotify/internal/types"
)

// Mailer is the outbound mail transport contract. Implementations send one
// plain-text message to one recipient per call.
type Mailer interface {
	Send(ctx context.Context, mail types.Mail) error
}

// LogMailer records the would-be message instead of transmitting it. Used
// by deployments that simulate delivery (MAIL_MODE=log) and as a safe
// development default.
type LogMailer struct {
	logger types.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger types.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message and always succeeds.
func (m *LogMailer) Send(_ context.Context, mail types.Mail) error {
	m.logger.Info("simulated mail delivery",
		"to", mail.To,
		"subject", mail.Subject,
		"body", mail.Body,
		"reference_id", mail.ReferenceID,
	)
	return nil
}
