package verifier

import (
	"context"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
)

// Embedded verifies tokens by direct lookup in the authorization
// engine's store — no network hop, no separate auth server.
type Embedded struct {
	engine *flow.Engine
}

// NewEmbedded wraps a flow.Engine as a Verifier.
func NewEmbedded(engine *flow.Engine) *Embedded {
	return &Embedded{engine: engine}
}

// VerifyAccessToken implements Verifier.
func (e *Embedded) VerifyAccessToken(ctx context.Context, token string) (*flow.AuthInfo, error) {
	return e.engine.VerifyAccessToken(ctx, token)
}
