// Package httpapi implements the gateway's OAuth 2.1 HTTP surface:
// dynamic client registration, the authorization-code flow (with a
// mock upstream identity provider standing in for a real one), token
// exchange, introspection, and revocation.
package httpapi

import (
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/clients"
	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
)

// API holds the dependencies shared by every OAuth HTTP handler.
type API struct {
	baseURI    string
	registry   *clients.Registry
	engine     *flow.Engine
	tokenLimit *perSourceLimiter
	regLimit   *perSourceLimiter
	idpLimit   *perSourceLimiter
}

// NewAPI wires a Registry and Engine into an API ready to be mounted
// with NewRouter.
func NewAPI(baseURI string, registry *clients.Registry, engine *flow.Engine) *API {
	return &API{
		baseURI:  baseURI,
		registry: registry,
		engine:   engine,
		// 100 requests per 5 seconds per spec.
		tokenLimit: newPerSourceLimiter(rate.Every(5*time.Second/100), 100),
		// 10 requests per minute per spec.
		regLimit: newPerSourceLimiter(rate.Every(time.Minute/10), 10),
		// 20 requests per minute per spec.
		idpLimit: newPerSourceLimiter(rate.Every(time.Minute/20), 20),
	}
}

// NewRouter mounts the OAuth HTTP surface onto a fresh chi.Router.
func NewRouter(api *API) chi.Router {
	r := chi.NewRouter()
	RegisterRoutes(r, api)
	return r
}

// RegisterRoutes attaches the OAuth HTTP surface to an existing router,
// for a process that serves this alongside other route sets (the MCP
// transport endpoints, discovery) on the same port.
func RegisterRoutes(r chi.Router, api *API) {
	r.Post("/register", rateLimited(api.regLimit, api.handleRegister))
	r.Get("/authorize", api.handleAuthorize)
	r.Get("/mock-upstream-idp/authorize", rateLimited(api.idpLimit, api.handleMockIdPAuthorize))
	r.Get("/mock-upstream-idp/callback", rateLimited(api.idpLimit, api.handleMockIdPCallback))
	r.Post("/token", rateLimited(api.tokenLimit, api.handleToken))
	r.Post("/introspect", api.handleIntrospect)
	r.Post("/revoke", api.handleRevoke)
}
