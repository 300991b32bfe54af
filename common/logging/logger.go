package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/telhawk-systems/eventvault/common/middleware"
)

// Logger wraps slog.Logger so that pipeline components can pull request
// correlation out of the context without each call site doing it.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to stdout.
// format can be "json" or "text" (default is json).
func New(level slog.Level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Default returns the process-wide logger.
func Default() *Logger {
	return &Logger{Logger: slog.Default()}
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// WithContext returns a logger carrying the request ID found in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	return FromContext(ctx, l.Logger)
}

// FromContext decorates base with the request ID stored in ctx.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	base = OrDefault(base)
	if reqID := middleware.GetRequestID(ctx); reqID != "" {
		return base.With(slog.String(FieldRequestID, reqID))
	}
	return base
}

// With returns a new logger with the given attributes added.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component scopes the logger to a named pipeline component.
func (l *Logger) Component(name string) *slog.Logger {
	return l.Logger.With(slog.String(FieldComponent, name))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
// Anything else is treated as info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// SetDefault installs l as the slog default (this also redirects the log package).
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
