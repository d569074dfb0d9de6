// Package verifier implements the two-variant token verifier seam:
// an embedded verifier backed directly by the authorization engine,
// and an external RFC 7662 introspection verifier, both wrapped by a
// shared TTL validation cache.
package verifier

import (
	"context"
	"time"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
)

// Verifier validates an opaque bearer token and returns the resulting
// auth info, or an error (always ghaerrors.TypeInvalidToken on
// rejection — see implementations).
type Verifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*flow.AuthInfo, error)
}

// CacheTTLCap is the maximum amount of time a verification result may
// be cached, regardless of the token's own expiry.
const CacheTTLCap = 60 * time.Second
