package webtoken

import "context"

type contextKey struct{}

// NewContext stores validated session claims in the context.
func NewContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// FromContext extracts the session claims from the context.
// Returns nil if the request carried no validated session.
func FromContext(ctx context.Context) *Claims {
	v, _ := ctx.Value(contextKey{}).(*Claims)
	return v
}
