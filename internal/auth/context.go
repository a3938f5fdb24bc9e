package auth

import "context"

// Identity describes the authenticated caller of one request.
type Identity struct {
	// KeyID is the API key ID, or the JWT subject for token auth.
	KeyID string

	// Name is a display name for logs.
	Name string

	// RPMLimit is the caller's per-minute rate limit, 0 for the default.
	RPMLimit int

	// Method is "api_key", "jwt", or "none".
	Method string
}

type identityKey struct{}

// WithIdentity stores the caller identity on the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity, or nil for
// unauthenticated requests.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return id
	}
	return nil
}
