// Package logging carries the request scoped slog logger from the HTTP layer
// into the services, so one request's handler and service lines share the
// same request and principal attributes.
package logging

import (
	"context"
	"log/slog"
)

// Attribute keys shared across layers.
const (
	KeyRequestID   = "request_id"
	KeyPrincipalID = "principal_id"
	KeyEventID     = "event_id"
	KeySlotID      = "slot_id"
	KeyErrorKind   = "error_kind"
)

type contextKey struct{}

// ContextWithLogger returns a derived context that carries logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger attached to ctx, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}

// With adds attrs to the logger already in ctx. Without one, ctx is returned
// unchanged.
func With(ctx context.Context, attrs ...any) context.Context {
	logger := FromContext(ctx)
	if logger == nil || len(attrs) == 0 {
		return ctx
	}
	return ContextWithLogger(ctx, logger.With(attrs...))
}

// Scoped resolves the logger for one operation: the context logger, then
// fallback, then slog.Default. The result is tagged "<layer>=<name>" and with
// the operation when set.
func Scoped(ctx context.Context, fallback *slog.Logger, layer, name, operation string, attrs ...any) *slog.Logger {
	logger := FromContext(ctx)
	if logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, layer, name)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	pairs = append(pairs, attrs...)
	return logger.With(pairs...)
}
