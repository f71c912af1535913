package tenant

import (
	"context"
	"errors"
)

// contextKey is a private type for context keys to prevent collisions
type contextKey string

const scopeKey contextKey = "scope"

var (
	// ErrNoScopeInContext is returned when the resolved scope is missing
	ErrNoScopeInContext = errors.New("no scope in context")
)

// WithScope attaches a resolved scope to the context.
// This should be called by middleware after resolving the principal.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext extracts the scope from context
// Returns ErrNoScopeInContext if no scope was attached
func FromContext(ctx context.Context) (Scope, error) {
	s, ok := ctx.Value(scopeKey).(Scope)
	if !ok {
		return Scope{}, ErrNoScopeInContext
	}
	return s, nil
}

// MustFromContext extracts the scope and panics if not found
// Use only in cases where a missing scope is a programming error
func MustFromContext(ctx context.Context) Scope {
	s, err := FromContext(ctx)
	if err != nil {
		panic("scope not found in context")
	}
	return s
}
