package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With stores a logger carrying the extra fields in the context. The
// transport middleware uses it to attach the trace id and verification
// status, so everything logged downstream of a request carries both.
func With(ctx context.Context, fields ...any) context.Context {
	l := From(ctx).With(fields...)
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the request-scoped logger, falling back to the process
// logger. Audit subscribers call it with the publish-time context, which
// keeps event log lines correlated with the request that caused them even
// though they run on the bus goroutines.
func From(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return LoggerWrapper()
}
