package domain

import "context"

// Identity is what the auth gate attaches to an authenticated request.
type Identity struct {
	UserID  string
	Role    string
	Subject string
	// Token is the raw bearer token the request was authenticated with.
	Token string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
