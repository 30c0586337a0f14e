// Package notify formats classified events into notification messages and
// delivers them through an outbound mail channel with bounded retry.
package notify

import (
	"strings"

	"vmnotify/internal/types"
)

// Placeholders for absent optional fields. Identity-like fields render
// "unknown", environment details render "N/A", matching what operators
// already expect from these notifications.
const (
	placeholderUnknown = "unknown"
	placeholderNA      = "N/A"
)

// outcomeLabel maps an event kind to the subject-line outcome word.
func outcomeLabel(kind types.EventKind) string {
	switch kind {
	case types.KindCreateSucceeded:
		return "SUCCESS"
	case types.KindCreateFailed:
		return "FAILED"
	default:
		return "INFO"
	}
}

// Format produces the notification subject and body for an event. It is a
// pure function: identical events always yield byte-identical messages.
func Format(ev types.Event) types.NotificationMessage {
	name := orElse(ev.DisplayName, placeholderUnknown)
	uuid := orElse(ev.SubjectID, placeholderUnknown)

	subject := "VM Creation " + outcomeLabel(ev.Kind) + ": " + name + " (" + uuid + ")"

	lines := []string{
		"Event Type: " + orElse(ev.Type, placeholderUnknown),
		"Instance Name: " + name,
		"Instance UUID: " + uuid,
		"State: " + orElse(ev.State, placeholderUnknown),
		"Host Name: " + orElse(ev.HostName, placeholderNA),
		"Power State: " + orElse(ev.PowerState, placeholderUnknown),
		"IP Address: " + orElse(ev.IPAddress, placeholderNA),
	}

	if ev.Kind == types.KindCreateFailed {
		lines = append(lines,
			"Exception: "+orElse(ev.Exception, placeholderNA),
			"Reason: "+orElse(ev.Diagnostic, placeholderNA),
		)
	}

	return types.NotificationMessage{
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
	}
}

func orElse(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}
