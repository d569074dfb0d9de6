package mcphandler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/stacklok/mcp-session-gateway/pkg/authn"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
	"github.com/stacklok/mcp-session-gateway/pkg/relay"
)

// streamSSE subscribes to sid's server-initiated notification channel
// and frames every message as a Server-Sent Event, until the client
// disconnects or the session is torn down.
func streamSSE(w http.ResponseWriter, r *http.Request, rel *relay.ClientRelay, sid string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}

	sub, err := rel.SubscribeStream(r.Context(), sid)
	if err != nil {
		logger.Errorw("mcphandler: failed to subscribe to session stream", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := sub.Channel()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleLegacySSE implements GET /sse: the legacy MCP SSE transport's
// entry point. It allocates a session, starts its server-side
// transport, and streams an initial "endpoint" event carrying the
// POST /message URL the client must use for subsequent messages.
func (rt *Routes) handleLegacySSE(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.FromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}

	sid := newSessionID()
	if _, err := rt.startSession(r.Context(), sid, true); err != nil {
		logger.Errorw("mcphandler: failed to start legacy session", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}
	if err := rt.ownership.SetSessionOwner(r.Context(), sid, identity.UserID); err != nil {
		logger.Errorw("mcphandler: failed to set session owner", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}

	sub, err := rt.relay.SubscribeStream(r.Context(), sid)
	if err != nil {
		logger.Errorw("mcphandler: failed to subscribe legacy stream", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	endpoint := "/message?" + url.Values{"sessionId": {sid}}.Encode()
	_, _ = fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint)
	flusher.Flush()

	ch := sub.Channel()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg.Payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleLegacyMessage implements POST /message: the legacy SSE
// transport's write side. The session id travels as a query
// parameter (the legacy transport predates the Mcp-Session-Id
// header); the response is delivered asynchronously over the
// session's already-open SSE stream, so this handler only
// acknowledges receipt.
func (rt *Routes) handleLegacyMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.FromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	sid := r.URL.Query().Get("sessionId")
	if sid == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_session")
		return
	}
	if !rt.authorizeSession(w, r, sid, identity.UserID) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	msg := json.RawMessage(body)
	if err := rt.relay.Publish(r.Context(), sid, msg, authInfoFromIdentity(identity)); err != nil {
		logger.Errorw("mcphandler: legacy message publish failed", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
