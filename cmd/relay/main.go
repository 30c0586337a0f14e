// Package main is the entrypoint for the vmnotify relay daemon.
//
// The relay subscribes to the compute platform's notification exchange,
// classifies virtual-machine creation lifecycle events, resolves the humans
// who should hear about them against the identity directory, and delivers a
// plain-text mail per recipient. It runs until killed; every run-time error
// is treated as recoverable and the subscription loop reconnects forever.
//
// Startup:
//  1. Load configuration (.env -> environment -> defaults) and validate it.
//  2. Initialize the structured JSON logger at the configured level.
//  3. Build the identity client and recipient resolver.
//  4. Build the mailer (SMTP or log-only simulation) and notifier.
//  5. Build the classifier and pipeline.
//  6. Run the bus consumer loop with the pipeline as handler.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"vmnotify/internal/bus"
	"vmnotify/internal/classify"
	"vmnotify/internal/config"
	"vmnotify/internal/identity"
	"vmnotify/internal/notify"
	"vmnotify/internal/relay"
	"vmnotify/internal/retry"
	"vmnotify/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger. slog satisfies
// Info, Error, and Warn directly, but With returns *slog.Logger rather than
// types.Logger, so an adapter is needed.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	log := &slogAdapter{logger: logger}

	log.Info("vmnotify relay starting",
		"exchange", cfg.Bus.Exchange,
		"queue", cfg.Bus.Queue,
		"routing_keys", len(cfg.Bus.RoutingKeys),
		"resolver_strategy", cfg.Identity.Strategy,
		"mail_mode", cfg.Mail.Mode,
	)

	// Recipient resolver over the identity directory.
	keystone := identity.NewKeystoneClient(
		&http.Client{Timeout: cfg.Identity.Timeout},
		identity.KeystoneClientConfig{
			URL:           cfg.Identity.URL,
			Username:      cfg.Identity.Username,
			Password:      cfg.Identity.Password,
			Project:       cfg.Identity.Project,
			UserDomain:    cfg.Identity.UserDomain,
			ProjectDomain: cfg.Identity.ProjectDomain,
		},
	)
	resolver := identity.NewResolver(identity.ResolverConfig{
		Client:   keystone,
		Strategy: identity.Strategy(cfg.Identity.Strategy),
		Runner: retry.New(retry.Policy{
			MaxAttempts: cfg.Identity.Retries,
			Delay:       cfg.Identity.RetryDelay,
		}),
		Cache:  cfg.Identity.Cache,
		Logger: log.With("component", "resolver"),
	})

	// Outbound mail channel.
	var mailer notify.Mailer
	if cfg.Mail.Mode == "log" {
		mailer = notify.NewLogMailer(log.With("component", "mailer"))
	} else {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			StartTLS: cfg.Mail.StartTLS,
			SSL:      cfg.Mail.SSL,
			Timeout:  cfg.Mail.Timeout,
		})
	}
	notifier := notify.NewNotifier(
		mailer,
		retry.New(retry.Policy{
			MaxAttempts: cfg.Mail.Retries,
			Delay:       cfg.Mail.RetryDelay,
		}),
		log.With("component", "notifier"),
	)

	pipeline := relay.NewPipeline(relay.PipelineConfig{
		Classifier:        classify.New(cfg.Relay.LegacyInfoEvents),
		Resolver:          resolver,
		Notifier:          notifier,
		DefaultRecipients: cfg.Mail.DefaultRecipients,
		Logger:            log.With("component", "pipeline"),
	})

	consumer := bus.NewConsumer(
		bus.NewAMQPDialer(cfg.Bus, log.With("component", "bus")),
		cfg.Bus.ReconnectDelay,
		log.With("component", "bus"),
	)

	// The relay has no graceful shutdown path: termination is external,
	// and a message in flight is lost under at-most-once semantics.
	if err := consumer.Run(context.Background(), pipeline.Handle); err != nil {
		log.Error("consumer loop ended", "error", err.Error())
		os.Exit(1)
	}
}
