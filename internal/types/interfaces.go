package types

// Logger is the minimal structured logging interface used across the relay.
// *slog.Logger satisfies Info, Error, and Warn directly but its With returns
// *slog.Logger, so the binary wraps it in a small adapter.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// NopLogger discards all log records. Useful as a test default.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (n NopLogger) With(...any) Logger { return n }
