// Package config defines the relay's configuration structure. Configuration
// is loaded once at process startup and is immutable thereafter; components
// receive only the specific subsets they require and never read ambient
// environment state directly.
//
// Values resolve via: OS environment (highest) -> dotenv file -> struct
// defaults. Every non-secret setting has a documented default so a bare
// environment still starts.
package config

import (
	"time"

	"vmnotify/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for every credential in the configuration.
type SecretString = types.SecretString

// Config is the top-level configuration for the relay binary.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Bus      BusConfig
	Identity IdentityConfig
	Mail     MailConfig
	Relay    RelayConfig
}

// BusConfig holds the event-bus connection and subscription parameters.
type BusConfig struct {
	Host     string       `envconfig:"AMQP_HOST" default:"localhost"`
	Port     int          `envconfig:"AMQP_PORT" default:"5672" validate:"min=1,max=65535"`
	Username string       `envconfig:"AMQP_USER" default:"guest"`
	Password SecretString `envconfig:"AMQP_PASS" default:"guest"`
	VHost    string       `envconfig:"AMQP_VHOST" default:"/"`

	TLS           bool `envconfig:"AMQP_TLS" default:"false"`
	TLSSkipVerify bool `envconfig:"AMQP_TLS_SKIP_VERIFY" default:"false"`

	Exchange string `envconfig:"AMQP_EXCHANGE" default:"nova"`
	Queue    string `envconfig:"AMQP_QUEUE" default:"vmnotify"`

	// RoutingKeys selects the notification generation: legacy deployments
	// use notifications.info/notifications.error, current ones the
	// versioned_notifications.* pair.
	RoutingKeys []string `envconfig:"AMQP_ROUTING_KEYS" default:"versioned_notifications.info,versioned_notifications.error" validate:"min=1"`

	ReconnectDelay time.Duration `envconfig:"RECONNECT_DELAY" default:"5s"`
	Heartbeat      time.Duration `envconfig:"AMQP_HEARTBEAT" default:"60s"`
}

// IdentityConfig holds the identity-directory endpoint, the credentials used
// for the password-grant token exchange, and the recipient-resolution tuning.
type IdentityConfig struct {
	URL           string       `envconfig:"IDENTITY_URL" default:"http://localhost:5000/v3" validate:"url"`
	Username      string       `envconfig:"IDENTITY_USERNAME" default:"admin"`
	Password      SecretString `envconfig:"IDENTITY_PASSWORD" default:""`
	Project       string       `envconfig:"IDENTITY_PROJECT" default:"admin"`
	UserDomain    string       `envconfig:"IDENTITY_USER_DOMAIN" default:"Default"`
	ProjectDomain string       `envconfig:"IDENTITY_PROJECT_DOMAIN" default:"Default"`

	// Strategy selects how recipients are resolved: "user" fetches the
	// owning user's email, "tenant-admin" enumerates admins of the
	// owning tenant.
	Strategy string `envconfig:"RESOLVER_STRATEGY" default:"user" validate:"oneof=user tenant-admin"`

	Retries    int           `envconfig:"RESOLVER_RETRIES" default:"3" validate:"min=1"`
	RetryDelay time.Duration `envconfig:"RESOLVER_RETRY_DELAY" default:"5s"`
	Cache      bool          `envconfig:"RESOLVER_CACHE" default:"true"`
	Timeout    time.Duration `envconfig:"IDENTITY_TIMEOUT" default:"10s"`
}

// MailConfig holds outbound mail transport settings.
type MailConfig struct {
	// Mode selects the transport: "smtp" transmits, "log" only records
	// the would-be message. The log mode mirrors deployments that
	// simulate delivery.
	Mode string `envconfig:"MAIL_MODE" default:"smtp" validate:"oneof=smtp log"`

	Host     string       `envconfig:"SMTP_HOST" default:"localhost"`
	Port     int          `envconfig:"SMTP_PORT" default:"25" validate:"min=1,max=65535"`
	Username string       `envconfig:"SMTP_USERNAME" default:""`
	Password SecretString `envconfig:"SMTP_PASSWORD" default:""`
	From     string       `envconfig:"SMTP_FROM" default:"vmnotify@localhost"`

	StartTLS bool          `envconfig:"SMTP_STARTTLS" default:"false"`
	SSL      bool          `envconfig:"SMTP_SSL" default:"false"`
	Timeout  time.Duration `envconfig:"SMTP_TIMEOUT" default:"10s"`

	Retries    int           `envconfig:"MAIL_RETRIES" default:"3" validate:"min=1"`
	RetryDelay time.Duration `envconfig:"MAIL_RETRY_DELAY" default:"5s"`

	// DefaultRecipients is substituted whenever recipient resolution
	// yields nothing, guaranteeing every dispatched event has at least
	// one destination.
	DefaultRecipients []string `envconfig:"DEFAULT_RECIPIENTS" default:"ops@example.com" validate:"min=1,dive,email"`
}

// RelayConfig holds pipeline behavior switches.
type RelayConfig struct {
	// LegacyInfoEvents treats any instance.create.* tag outside the
	// success/failure pair as an informational notification instead of
	// discarding it.
	LegacyInfoEvents bool `envconfig:"LEGACY_INFO_EVENTS" default:"false"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrParsing indicates a failure parsing environment values into
	// their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrValidation indicates the configuration failed struct validation.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)
