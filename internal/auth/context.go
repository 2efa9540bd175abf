// ABOUTME: Caller context for tracking identity through a tool invocation
// ABOUTME: Provides WithCaller/CallerFromContext for propagating the caller via context

package auth

import (
	"context"
)

// Caller describes who made a tool call. The dispatcher attaches it before
// invoking an adapter.
type Caller struct {
	Identity  Identity
	SessionID string
	RequestID string // correlates logs, audit rows, and upstream requests
}

// callerContextKey is the key type for storing Caller in context.Context.
type callerContextKey struct{}

// WithCaller returns a new context with the Caller attached.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, c)
}

// CallerFromContext retrieves the Caller from the context, returning nil if not present.
func CallerFromContext(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerContextKey{}).(*Caller)
	return c
}
