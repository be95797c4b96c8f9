package watchreload

import (
	"io"
	"log/slog"
	"strings"
)

// Logger defines the interface for engine logging.
// watchreload uses structured logging with key-value pairs so that the
// embedding application controls how engine logs appear.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// This approach is compatible with log/slog, logrus, zap and others.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for normal events like connection establishment or applied updates.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for failures that are contained, such as a module that failed to load.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Used for aborted hot updates that fall back to a full reload.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	// Used for propagation details, typically disabled outside development.
	Debug(msg string, args ...any)
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
}

// NewSlogLogger creates a text logger writing to w at the given level.
// Level names follow the client's logLevel option: debug, info, warn, error.
// Unknown names fall back to info.
func NewSlogLogger(w io.Writer, level string) *SlogLogger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(ParseLogLevel(level))
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar})
	return &SlogLogger{logger: slog.New(handler).With("component", "watchreload"), level: levelVar}
}

// WrapSlog wraps an existing slog logger. Its level is owned by the caller.
func WrapSlog(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

// SetLevel changes the level of loggers built by NewSlogLogger. The server's
// init command may lower or raise it at runtime.
func (l *SlogLogger) SetLevel(level string) {
	if l.level != nil {
		l.level.Set(ParseLogLevel(level))
	}
}

// With returns a logger that adds args to every record.
func (l *SlogLogger) With(args ...any) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(args...), level: l.level}
}

func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// ParseLogLevel maps a level name to a slog level.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}

func orNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
