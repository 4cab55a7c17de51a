// Package requestctx provides request-scoped values set by middleware.
package requestctx

import "context"

type contextKey struct{ name string }

var (
	requestIDKey = &contextKey{"request_id"}
	callerKey    = &contextKey{"caller"}
)

// SetRequestID stores the request id in the context.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id from context, or "" if not set.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// SetCaller stores the authenticated caller name (the API key label).
func SetCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// Caller returns the caller from context, or "" if not set.
func Caller(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}
