package auth

import "context"

type contextKey struct{}

// WithSessionContext returns a context carrying the request's session
// context. Set once by the session middleware; business logic reads it via
// SessionFromContext instead of re-parsing cookies.
func WithSessionContext(ctx context.Context, sc *SessionContext) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// SessionFromContext extracts the session context, if any.
func SessionFromContext(ctx context.Context) (*SessionContext, bool) {
	sc, ok := ctx.Value(contextKey{}).(*SessionContext)
	return sc, ok && sc != nil
}
