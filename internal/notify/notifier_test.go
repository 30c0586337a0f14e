package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmnotify/internal/retry"
	"vmnotify/internal/types"
)

// fakeMailer scripts per-recipient failures and records every send.
type fakeMailer struct {
	failFor map[string]error
	sent    []types.Mail
}

func (f *fakeMailer) Send(_ context.Context, mail types.Mail) error {
	f.sent = append(f.sent, mail)
	if err, ok := f.failFor[mail.To]; ok {
		return err
	}
	return nil
}

func fastRunner(attempts int) *retry.Runner {
	return retry.New(retry.Policy{MaxAttempts: attempts, Delay: time.Second},
		retry.WithSleepFunc(func(time.Duration) {}))
}

func TestDeliver_AllRecipientsSucceed(t *testing.T) {
	mailer := &fakeMailer{}
	n := NewNotifier(mailer, fastRunner(3), types.NopLogger{})

	msg := types.NotificationMessage{Subject: "s", Body: "b"}
	outcomes := n.Deliver(context.Background(), msg, []string{"a@example.com", "b@example.com"})

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.Equal(t, 1, o.Attempts)
	}
	require.Len(t, mailer.sent, 2)
	assert.Equal(t, mailer.sent[0].ReferenceID, mailer.sent[1].ReferenceID,
		"one reference id per event shared across recipients")
}

func TestDeliver_RetryBoundRespected(t *testing.T) {
	mailer := &fakeMailer{failFor: map[string]error{
		"a@example.com": errors.New("transport down"),
	}}
	n := NewNotifier(mailer, fastRunner(3), types.NopLogger{})

	outcomes := n.Deliver(context.Background(),
		types.NotificationMessage{Subject: "s", Body: "b"},
		[]string{"a@example.com"})

	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.Equal(t, 3, outcomes[0].Attempts, "at most MaxAttempts transport invocations")
	assert.Len(t, mailer.sent, 3)
}

func TestDeliver_OneFailureDoesNotBlockOthers(t *testing.T) {
	mailer := &fakeMailer{failFor: map[string]error{
		"bad@example.com": errors.New("mailbox unreachable"),
	}}
	n := NewNotifier(mailer, fastRunner(2), types.NopLogger{})

	outcomes := n.Deliver(context.Background(),
		types.NotificationMessage{Subject: "s", Body: "b"},
		[]string{"bad@example.com", "good@example.com"})

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err, "later recipients still delivered")
}

func TestLogMailer_AlwaysSucceeds(t *testing.T) {
	m := NewLogMailer(types.NopLogger{})
	err := m.Send(context.Background(), types.Mail{To: "a@example.com", Subject: "s"})
	assert.NoError(t, err)
}

func TestSMTPMailer_Encode(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{
		Host: "mail.example.com",
		Port: 25,
		From: "Nova Alerts <alerts@example.com>",
	})
	m.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	raw := string(m.encode(types.Mail{
		To:          "ops@example.com",
		Subject:     "VM Creation FAILED: vm1 (abc)",
		Body:        "line one\nline two",
		ReferenceID: "ref-1",
	}))

	assert.Contains(t, raw, "From: Nova Alerts <alerts@example.com>\r\n")
	assert.Contains(t, raw, "To: ops@example.com\r\n")
	assert.Contains(t, raw, "Subject: VM Creation FAILED: vm1 (abc)\r\n")
	assert.Contains(t, raw, "Message-ID: <ref-1@mail.example.com>\r\n")
	assert.Contains(t, raw, "line one\r\nline two\r\n")
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "alerts@example.com", envelopeAddress("Nova Alerts <alerts@example.com>"))
	assert.Equal(t, "alerts@example.com", envelopeAddress("alerts@example.com"))
	assert.Equal(t, "not an address", envelopeAddress("not an address"))
}
