package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmnotify/internal/bus"
	"vmnotify/internal/classify"
	"vmnotify/internal/types"
)

type fakeResolver struct {
	addrs []string
	calls int
}

func (f *fakeResolver) Resolve(context.Context, types.Event) []string {
	f.calls++
	return f.addrs
}

type fakeNotifier struct {
	msgs       []types.NotificationMessage
	recipients [][]string
}

func (f *fakeNotifier) Deliver(_ context.Context, msg types.NotificationMessage, recipients []string) []types.DeliveryOutcome {
	f.msgs = append(f.msgs, msg)
	f.recipients = append(f.recipients, recipients)

	outcomes := make([]types.DeliveryOutcome, 0, len(recipients))
	for _, r := range recipients {
		outcomes = append(outcomes, types.DeliveryOutcome{Recipient: r, Attempts: 1})
	}
	return outcomes
}

func newTestPipeline(resolver *fakeResolver, notifier *fakeNotifier) *Pipeline {
	return NewPipeline(PipelineConfig{
		Classifier:        classify.New(false),
		Resolver:          resolver,
		Notifier:          notifier,
		DefaultRecipients: []string{"ops@example.com"},
		Logger:            types.NopLogger{},
	})
}

func TestHandle_CreateSucceeded(t *testing.T) {
	resolver := &fakeResolver{addrs: []string{"alice@example.com"}}
	notifier := &fakeNotifier{}
	p := newTestPipeline(resolver, notifier)

	body := `{"event_type":"instance.create.end","payload":{"instance_id":"abc","display_name":"vm1","state":"active"}}`
	p.Handle(context.Background(), bus.Delivery{Body: []byte(body)})

	require.Len(t, notifier.msgs, 1)
	msg := notifier.msgs[0]
	assert.Contains(t, msg.Subject, "SUCCESS")
	assert.Contains(t, msg.Subject, "vm1")
	assert.Contains(t, msg.Subject, "abc")
	assert.Equal(t, [][]string{{"alice@example.com"}}, notifier.recipients)
}

func TestHandle_CreateFailed(t *testing.T) {
	resolver := &fakeResolver{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(resolver, notifier)

	body := `{"event_type":"instance.create.error","payload":{"instance_id":"abc","display_name":"vm1","fault":{"message":"boom"}}}`
	p.Handle(context.Background(), bus.Delivery{Body: []byte(body)})

	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0].Subject, "FAILED")
	assert.Contains(t, notifier.msgs[0].Body, "boom")
}

func TestHandle_UnrelatedEventType(t *testing.T) {
	resolver := &fakeResolver{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(resolver, notifier)

	body := `{"event_type":"instance.delete.start","payload":{"instance_id":"abc"}}`
	p.Handle(context.Background(), bus.Delivery{Body: []byte(body)})

	assert.Empty(t, notifier.msgs, "no notification dispatched")
	assert.Equal(t, 0, resolver.calls, "no recipient lookup occurs")
}

func TestHandle_WrappedEnvelope(t *testing.T) {
	resolver := &fakeResolver{addrs: []string{"alice@example.com"}}
	notifier := &fakeNotifier{}
	p := newTestPipeline(resolver, notifier)

	inner := `{"event_type":"instance.create.end","payload":{"instance_id":"abc","display_name":"vm1","state":"active"}}`
	wrapper, err := json.Marshal(map[string]string{"oslo.message": inner})
	require.NoError(t, err)

	p.Handle(context.Background(), bus.Delivery{Body: wrapper})
	p.Handle(context.Background(), bus.Delivery{Body: []byte(inner)})

	require.Len(t, notifier.msgs, 2)
	assert.Equal(t, notifier.msgs[0], notifier.msgs[1],
		"double-encoded envelope classified identically to the direct shape")
}

func TestHandle_DefaultRecipientFallback(t *testing.T) {
	resolver := &fakeResolver{addrs: nil}
	notifier := &fakeNotifier{}
	p := newTestPipeline(resolver, notifier)

	body := `{"event_type":"instance.create.error","payload":{"instance_id":"abc"}}`
	p.Handle(context.Background(), bus.Delivery{Body: []byte(body)})

	require.Len(t, notifier.recipients, 1)
	assert.Equal(t, []string{"ops@example.com"}, notifier.recipients[0],
		"empty resolution substitutes exactly the default address set")
}

func TestHandle_MalformedMessage(t *testing.T) {
	resolver := &fakeResolver{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(resolver, notifier)

	p.Handle(context.Background(), bus.Delivery{Body: []byte("not json at all")})

	assert.Empty(t, notifier.msgs)
	assert.Equal(t, 0, resolver.calls)
}

func TestHandle_InconclusiveSuccessDropped(t *testing.T) {
	resolver := &fakeResolver{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(resolver, notifier)

	body := `{"event_type":"instance.create.end","payload":{"instance_id":"abc","state":"error","fault":{"message":"late"}}}`
	p.Handle(context.Background(), bus.Delivery{Body: []byte(body)})

	assert.Empty(t, notifier.msgs, "ambiguous success is suppressed, not notified")
}
