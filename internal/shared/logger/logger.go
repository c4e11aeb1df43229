package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a thin action-structured wrapper over zerolog. Every entry carries
// the service name, a short machine-readable action, a human message, and the
// request id from the context when one was attached.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a JSON logger for the given service writing to stdout.
func NewLogger(service string) *Logger {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	zl := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", service).
		Str("hostname", hostname).
		Logger()

	return &Logger{zl: zl}
}

// Unexported type for context keys.
type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID returns a context carrying a request id (useful for HTTP/mq hops).
func (logger *Logger) WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey, rid)
}

// requestIDFrom returns the request id saved in the context, if any.
func requestIDFrom(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (logger *Logger) emit(ev *zerolog.Event, ctx context.Context, action, msg string, details map[string]any) {
	ev = ev.Str("action", action)
	if rid := requestIDFrom(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if details != nil {
		ev = ev.Fields(details)
	}
	ev.Msg(msg)
}

func (logger *Logger) Debug(ctx context.Context, action, msg string, details map[string]any) {
	logger.emit(logger.zl.Debug(), ctx, action, msg, details)
}

func (logger *Logger) Info(ctx context.Context, action, msg string, details map[string]any) {
	logger.emit(logger.zl.Info(), ctx, action, msg, details)
}

func (logger *Logger) Warn(ctx context.Context, action, msg string, details map[string]any) {
	logger.emit(logger.zl.Warn(), ctx, action, msg, details)
}

func (logger *Logger) Error(ctx context.Context, action, msg string, err error) {
	logger.emit(logger.zl.Error().Err(err), ctx, action, msg, nil)
}
