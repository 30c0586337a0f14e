// Package classify turns raw bus messages into normalized lifecycle Events.
// It unwraps the double-encoded envelope shape, filters the event-type tag
// against the creation allow-list, and extracts the fields the notification
// pipeline needs. Classification is CPU-only and performs no I/O.
package classify

import (
	"errors"
	"strings"

	"vmnotify/internal/types"
)

// Sentinel discard reasons. The pipeline branches on these: malformed
// payloads are logged at warning level, uninteresting tags are dropped
// silently (they are the common case), inconclusive successes are dropped
// without notification.
var (
	// ErrMalformed reports a body that could not be decoded as an event
	// record in either envelope shape.
	ErrMalformed = errors.New("classify: malformed message payload")

	// ErrUninteresting reports an event-type tag outside the allow-list.
	ErrUninteresting = errors.New("classify: uninteresting event type")

	// ErrInconclusive reports a creation-succeeded event that carries a
	// fault or never reached the running state. The upstream condition is
	// ambiguous, so no notification is sent.
	ErrInconclusive = errors.New("classify: success event with fault or non-active state")
)

// Event-type tags recognized by the relay.
const (
	tagCreateEnd    = "instance.create.end"
	tagCreateError  = "instance.create.error"
	tagCreatePrefix = "instance.create."

	// stateActive is the running condition a successfully created
	// instance must report.
	stateActive = "active"
)

// Classifier applies the allow-list and field extraction rules.
type Classifier struct {
	// legacyInfo admits any other instance.create.* tag as an
	// informational event instead of discarding it.
	legacyInfo bool
}

// New creates a Classifier. legacyInfo enables the legacy informational
// event shape.
func New(legacyInfo bool) *Classifier {
	return &Classifier{legacyInfo: legacyInfo}
}

// Classify decodes a raw message body and returns the normalized Event, or
// one of the sentinel discard errors. It never panics on malformed input.
func (c *Classifier) Classify(body []byte) (types.Event, error) {
	rec, _, err := decodeEnvelope(body)
	if err != nil {
		return types.Event{}, ErrMalformed
	}

	kind, err := c.kindFor(rec.EventType)
	if err != nil {
		return types.Event{}, err
	}

	data := payloadData(rec.Payload)
	exception, diagnostic, faultPresent := faultInfo(data)

	ev := types.Event{
		Kind:          kind,
		Type:          rec.EventType,
		SubjectID:     stringField(data, "uuid", "instance_id"),
		OwnerUserID:   stringField(data, "user_id"),
		OwnerTenantID: stringField(data, "tenant_id", "project_id"),
		DisplayName:   stringField(data, "display_name"),
		HostName:      stringField(data, "host_name", "host"),
		IPAddress:     firstIPAddress(data),
		State:         stringField(data, "state"),
		PowerState:    stringField(data, "power_state"),
	}

	switch kind {
	case types.KindCreateSucceeded:
		// A "succeeded" tag with a fault attached or a non-running
		// state is ambiguous upstream. Drop it rather than announce a
		// success that may not be one.
		if faultPresent || ev.State != stateActive {
			return types.Event{}, ErrInconclusive
		}
	case types.KindCreateFailed:
		ev.Exception = exception
		ev.Diagnostic = diagnostic
	}

	return ev, nil
}

// kindFor maps an event-type tag to its EventKind, or ErrUninteresting.
func (c *Classifier) kindFor(tag string) (types.EventKind, error) {
	switch {
	case tag == tagCreateEnd:
		return types.KindCreateSucceeded, nil
	case tag == tagCreateError:
		return types.KindCreateFailed, nil
	case c.legacyInfo && strings.HasPrefix(tag, tagCreatePrefix):
		return types.KindCreateInfo, nil
	default:
		return "", ErrUninteresting
	}
}
