// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the runner, flows and agents use for observability.
// Adapters exist for log/slog, logrus and zerolog; NoOpLogger discards
// everything.
//
// Usage:
//
//	logger, err := logging.New(logging.Config{Backend: "logrus", Level: "info", Format: "json"})
//	r := runner.New("blog", root, func(o *runner.Options) { o.Logger = logger })
package logging
