// Package mcphandler implements the Streamable HTTP and legacy SSE
// transport endpoints for MCP sessions, handing authenticated traffic
// off to the session relay.
package mcphandler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stacklok/mcp-session-gateway/pkg/authn"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
	"github.com/stacklok/mcp-session-gateway/pkg/relay"
	"github.com/stacklok/mcp-session-gateway/pkg/verifier"
)

// SessionIDHeader is the Streamable HTTP session identifier header.
const SessionIDHeader = "Mcp-Session-Id"

// Routes wires the MCP endpoints to the session relay and the bearer
// gate. One Routes instance is shared by every request the process
// handles; only the ownedTransports map is process-local — every other
// piece of session state lives in the KV store / pub/sub bus so any
// replica can serve any request.
type Routes struct {
	redisClient   redis.UniversalClient
	relay         *relay.ClientRelay
	ownership     *relay.Ownership
	serverFactory MCPServerFactory
	inactivity    time.Duration

	mu              sync.Mutex
	ownedTransports map[string]*relay.ServerRedisTransport
}

// NewRoutes constructs the MCP handler surface.
func NewRoutes(redisClient redis.UniversalClient, rel *relay.ClientRelay, ownership *relay.Ownership, serverFactory MCPServerFactory) *Routes {
	return &Routes{
		redisClient:     redisClient,
		relay:           rel,
		ownership:       ownership,
		serverFactory:   serverFactory,
		inactivity:      relay.DefaultInactivityTimeout,
		ownedTransports: make(map[string]*relay.ServerRedisTransport),
	}
}

// Router builds a standalone handler serving the Streamable HTTP and
// legacy SSE endpoints, guarded by the bearer gate, with security
// headers applied to every response.
func Router(v verifier.Verifier, resourceMetadataURL string, routes *Routes) http.Handler {
	r := chi.NewRouter()
	Mount(r, v, resourceMetadataURL, routes)
	return r
}

// Mount registers the Streamable HTTP and legacy SSE endpoints onto an
// existing router, for a process that serves this alongside other
// route sets (the OAuth HTTP surface, discovery) on the same port.
func Mount(r chi.Router, v verifier.Verifier, resourceMetadataURL string, routes *Routes) {
	r.Group(func(r chi.Router) {
		r.Use(corsHeaders)
		r.Use(securityHeaders)
		r.Use(authn.RequireBearer(v, resourceMetadataURL))

		r.Post("/mcp", routes.handleStreamablePost)
		r.Get("/mcp", routes.handleStreamableGet)
		r.Delete("/mcp", routes.handleStreamableDelete)
		r.Options("/mcp", preflightOK)

		r.Get("/sse", routes.handleLegacySSE)
		r.Options("/sse", preflightOK)

		r.Post("/message", routes.handleLegacyMessage)
		r.Options("/message", preflightOK)
	})
}

// corsHeaders implements the permissive-origin-with-credentials policy
// browser-based MCP clients need: the Origin is echoed back (rather
// than "*", which credentialed requests reject) with
// Access-Control-Allow-Credentials set, and Mcp-Session-Id /
// Mcp-Protocol-Version are exposed so client-side JS can read them off
// the response. Preflight OPTIONS requests are answered here, before
// the bearer gate, since a preflight never carries Authorization.
func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Vary", "Origin")
		}
		h.Set("Access-Control-Expose-Headers", SessionIDHeader+", Mcp-Protocol-Version")

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+SessionIDHeader+", Mcp-Protocol-Version")
			h.Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func preflightOK(http.ResponseWriter, *http.Request) {}

// securityHeaders applies the hardening headers required on every MCP
// response, regardless of outcome.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func newSessionID() string {
	return uuid.NewString()
}

func isInitializeRequest(msg json.RawMessage) bool {
	var probe struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return false
	}
	return probe.Method == "initialize"
}

// startSession spins up a ServerRedisTransport bound to a fresh
// MCPServer instance for sid, on this replica. Only the replica that
// receives the initialize request owns the in-process server for its
// lifetime; every other replica talks to it exclusively through the
// relay's pub/sub channels.
func (rt *Routes) startSession(ctx context.Context, sid string, legacy bool) (*relay.ServerRedisTransport, error) {
	server := rt.serverFactory(sid)

	var transport *relay.ServerRedisTransport
	onMessage := func(msg json.RawMessage, extra *relay.Extra) {
		requestID, isRequest := jsonrpcID(msg)
		resp, err := server.HandleMessage(context.Background(), msg)
		if err != nil {
			logger.Errorw("mcphandler: session message handling failed", "sid", sid, "error", err)
			return
		}
		if !isRequest || resp == nil {
			return
		}

		// Legacy SSE carries every server->client frame over the single
		// stream channel; only Streamable HTTP uses a per-request
		// response channel.
		channelRequestID := requestID
		if legacy {
			channelRequestID = ""
		}
		if sendErr := transport.Send(context.Background(), resp, channelRequestID); sendErr != nil {
			logger.Errorw("mcphandler: failed to send response", "sid", sid, "error", sendErr)
		}
	}

	onClose := func() {
		rt.mu.Lock()
		delete(rt.ownedTransports, sid)
		rt.mu.Unlock()
		if err := rt.ownership.ClearSessionOwner(context.Background(), sid); err != nil {
			logger.Errorw("mcphandler: failed to clear session owner", "sid", sid, "error", err)
		}
	}

	transport = relay.NewServerRedisTransport(rt.redisClient, sid, onMessage, onClose, rt.inactivity)
	if err := transport.Start(ctx); err != nil {
		return nil, err
	}

	rt.mu.Lock()
	rt.ownedTransports[sid] = transport
	rt.mu.Unlock()

	return transport, nil
}

// jsonrpcID mirrors pkg/relay's id-presence probe; mcphandler needs it
// to decide whether a handled message warrants a response publish.
func jsonrpcID(msg json.RawMessage) (string, bool) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		return "", false
	}
	if len(probe.ID) == 0 || string(probe.ID) == "null" {
		return "", false
	}
	s := string(probe.ID)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1], true
	}
	return s, true
}
