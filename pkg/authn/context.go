package authn

import "context"

// identityContextKey is the key used to store Identity in the request
// context. An unexported empty struct prevents collisions with other
// packages' context keys.
type identityContextKey struct{}

// WithIdentity stores identity in ctx. The bearer gate calls this once
// per request after a successful verification; it is the cooperative
// task-local carrier required by spec §4.6/§5 — it propagates through
// every suspension point within the request and is never shared
// across requests because context.Context values are immutable and
// request-scoped.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// FromContext retrieves the Identity stored by WithIdentity.
func FromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok
}
