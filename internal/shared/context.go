package shared

import "context"

// Identity carries the verified caller triple supplied by the upstream
// gateway. The core never re-authenticates; it only resolves tenancy and
// authorizes actions for this triple.
type Identity struct {
	Role    string
	School  string
	ActorID string
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
