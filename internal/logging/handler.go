// Package logging configures slog for the service. Records carry the
// service name and version plus, when the context has them, OpenTelemetry
// trace and span IDs and the HTTP request ID.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// contextHandler decorates every record with IDs found in its context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// Options controls Setup.
type Options struct {
	Service string
	Version string
	// Format is "json" or "text"; anything else means json.
	Format string
	// Level is one of debug, info, warn, error; empty means info.
	Level string
}

// Setup builds a logger writing to w, or os.Stderr when w is nil.
func Setup(opts Options, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var base slog.Handler = slog.NewJSONHandler(w, ho)
	if opts.Format == "text" {
		base = slog.NewTextHandler(w, ho)
	}

	base = base.WithAttrs([]slog.Attr{
		slog.String("service", opts.Service),
		slog.String("version", opts.Version),
	})
	return slog.New(contextHandler{base})
}

// SetDefault installs Setup(opts, nil) as the process-wide logger.
func SetDefault(opts Options) *slog.Logger {
	logger := Setup(opts, nil)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
