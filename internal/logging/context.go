package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	accessorKey ctxKey = iota
	secretIDKey
	toolContextKey
)

// WithAccessor returns a context with the accessor identity set,
// in "type:name" form.
func WithAccessor(ctx context.Context, accessor string) context.Context {
	return context.WithValue(ctx, accessorKey, accessor)
}

// WithSecretID returns a context with the secret ID set.
func WithSecretID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, secretIDKey, id)
}

// WithToolContext returns a context with the calling tool set.
func WithToolContext(ctx context.Context, tool string) context.Context {
	return context.WithValue(ctx, toolContextKey, tool)
}

// Accessor extracts the accessor identity from the context, or "" if absent.
func Accessor(ctx context.Context) string {
	v, _ := ctx.Value(accessorKey).(string)
	return v
}

// SecretID extracts the secret ID from the context, or "" if absent.
func SecretID(ctx context.Context) string {
	v, _ := ctx.Value(secretIDKey).(string)
	return v
}

// ToolContext extracts the calling tool from the context, or "" if absent.
func ToolContext(ctx context.Context) string {
	v, _ := ctx.Value(toolContextKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if a := Accessor(ctx); a != "" {
		logger = logger.With(slog.String("accessor", a))
	}
	if id := SecretID(ctx); id != "" {
		logger = logger.With(slog.String("secret_id", id))
	}
	if t := ToolContext(ctx); t != "" {
		logger = logger.With(slog.String("tool", t))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := Accessor(ctx); v != "" {
		r.AddAttrs(slog.String("accessor", v))
	}
	if v := SecretID(ctx); v != "" {
		r.AddAttrs(slog.String("secret_id", v))
	}
	if v := ToolContext(ctx); v != "" {
		r.AddAttrs(slog.String("tool", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
