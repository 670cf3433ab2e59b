package shared

import "context"

// Principal describes the authenticated actor as seen by authorization.
type Principal struct {
	ID          string
	Email       string
	IsActive    bool
	IsSuperuser bool
}

// Identity couples a resolved principal with the session that produced it.
type Identity struct {
	User      Principal
	SessionID string
}

type identityContextKey struct{}

// ContextWithIdentity stores the authenticated identity in context.
func ContextWithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the identity from context. Nil means the
// request is unauthenticated.
func IdentityFromContext(ctx context.Context) *Identity {
	ident, _ := ctx.Value(identityContextKey{}).(*Identity)
	return ident
}
