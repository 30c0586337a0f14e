// Package types defines the shared domain types for the vmnotify relay:
// the normalized lifecycle Event, the formatted NotificationMessage, and the
// small interfaces components depend on. Keeping these in one leaf package
// avoids import cycles between the pipeline stages.
package types

// EventKind categorizes a lifecycle event after classification.
type EventKind string

const (
	// KindCreateSucceeded is an instance creation that completed and
	// reached the running condition.
	KindCreateSucceeded EventKind = "create_succeeded"

	// KindCreateFailed is an instance creation that ended in error.
	KindCreateFailed EventKind = "create_failed"

	// KindCreateInfo is any other instance.create.* event, recognized
	// only when legacy informational events are enabled.
	KindCreateInfo EventKind = "create_info"
)

// Event is the normalized record extracted from a bus message. Optional
// fields are left empty when the source payload omits them; the formatter
// substitutes placeholders, classification never fails because of them.
type Event struct {
	Kind EventKind

	// Type is the raw event-type tag from the source platform,
	// e.g. "instance.create.end".
	Type string

	// SubjectID identifies the instance the event concerns.
	SubjectID string

	// OwnerUserID and OwnerTenantID identify who is responsible for the
	// instance. Which one is consulted depends on the configured
	// recipient-resolution strategy.
	OwnerUserID   string
	OwnerTenantID string

	DisplayName string
	HostName    string
	IPAddress   string
	State       string
	PowerState  string

	// Exception and Diagnostic are populated only for failed outcomes.
	Exception  string
	Diagnostic string
}

// NotificationMessage is the immutable subject/body pair derived from an
// Event. Identical Events always format to identical messages.
type NotificationMessage struct {
	Subject string
	Body    string
}

// Mail is a single outbound plain-text message handed to a Mailer.
type Mail struct {
	To      string
	Subject string
	Body    string

	// ReferenceID correlates the mail with the event that produced it
	// in logs and in the Message-ID header.
	ReferenceID string
}

// DeliveryOutcome reports the result of delivering one notification to one
// recipient.
type DeliveryOutcome struct {
	Recipient string
	Attempts  int
	Err       error
}
