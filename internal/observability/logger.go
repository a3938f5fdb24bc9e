package observability

import (
	"context"
	"io"
	"log/slog"
)

// Logger is the gateway's structured logger: slog with request-ID
// propagation and redaction of API keys and PII before anything reaches the
// log sink. Prompts and responses are never logged; redaction guards the
// metadata that is.
type Logger struct {
	*slog.Logger
	redactor *Redactor
}

// LoggerConfig shapes the handler backing a Logger.
type LoggerConfig struct {
	Level      slog.Level
	Output     io.Writer
	AddSource  bool
	JSONFormat bool
}

// NewLogger builds a logger. A nil redactor disables redaction, which only
// tests should want.
func NewLogger(cfg LoggerConfig, redactor *Redactor) *Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return &Logger{
		Logger:   slog.New(handler),
		redactor: redactor,
	}
}

// WithRequestID binds the context's request ID to every record the returned
// logger emits. Without one in the context, the receiver is returned as is.
func (l *Logger) WithRequestID(ctx context.Context) *Logger {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		return l
	}
	return &Logger{
		Logger:   l.Logger.With("request_id", requestID),
		redactor: l.redactor,
	}
}

// WithFields binds extra key-value pairs, keeping the redactor.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{
		Logger:   l.Logger.With(args...),
		redactor: l.redactor,
	}
}

// RedactedInfo logs at INFO after scrubbing the message and string args.
func (l *Logger) RedactedInfo(msg string, args ...any) {
	l.redacted(slog.LevelInfo, msg, args)
}

// RedactedWarn logs at WARN after scrubbing the message and string args.
func (l *Logger) RedactedWarn(msg string, args ...any) {
	l.redacted(slog.LevelWarn, msg, args)
}

// RedactedError logs at ERROR after scrubbing the message and string args.
func (l *Logger) RedactedError(msg string, args ...any) {
	l.redacted(slog.LevelError, msg, args)
}

// RedactedDebug logs at DEBUG after scrubbing the message and string args.
func (l *Logger) RedactedDebug(msg string, args ...any) {
	l.redacted(slog.LevelDebug, msg, args)
}

func (l *Logger) redacted(level slog.Level, msg string, args []any) {
	if l.redactor != nil {
		msg = l.redactor.Redact(msg)
		args = l.redactArgs(args)
	}
	l.Logger.Log(context.Background(), level, msg, args...)
}

// redactArgs scrubs string and error values; other types pass through
// untouched, so structured numeric fields stay queryable.
func (l *Logger) redactArgs(args []any) []any {
	result := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			result[i] = l.redactor.Redact(v)
		case error:
			result[i] = l.redactor.Redact(v.Error())
		default:
			result[i] = arg
		}
	}
	return result
}

// Slog exposes the underlying slog.Logger for components that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.Logger
}
