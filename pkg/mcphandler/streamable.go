package mcphandler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stacklok/mcp-session-gateway/pkg/authn"
	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
)

const maxMessageBodyBytes = 4 << 20 // 4 MiB

func writeJSONError(w http.ResponseWriter, status int, errorCode string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": errorCode})
}

func authInfoFromIdentity(identity *authn.Identity) *flow.AuthInfo {
	if identity == nil {
		return nil
	}
	return &flow.AuthInfo{
		Token:                identity.Token,
		ClientID:             identity.ClientID,
		Scopes:               identity.Scopes,
		UserID:               identity.UserID,
		UpstreamInstallation: identity.UpstreamInstallation,
	}
}

// handleStreamablePost implements POST /mcp: either starts a new
// session (no Mcp-Session-Id header, body is initialize) or relays an
// existing session's request/notification.
func (rt *Routes) handleStreamablePost(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.FromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	msg := json.RawMessage(body)

	sid := r.Header.Get(SessionIDHeader)

	if sid == "" {
		if !isInitializeRequest(msg) {
			writeJSONError(w, http.StatusBadRequest, "invalid_session")
			return
		}

		newSid := newSessionID()
		if _, err := rt.startSession(r.Context(), newSid, false); err != nil {
			logger.Errorw("mcphandler: failed to start session", "sid", newSid, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal")
			return
		}
		if err := rt.ownership.SetSessionOwner(r.Context(), newSid, identity.UserID); err != nil {
			logger.Errorw("mcphandler: failed to set session owner", "sid", newSid, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal")
			return
		}

		resp, err := rt.relay.Forward(r.Context(), newSid, msg, authInfoFromIdentity(identity))
		if err != nil {
			logger.Errorw("mcphandler: initialize forward failed", "sid", newSid, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal")
			return
		}

		w.Header().Set(SessionIDHeader, newSid)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp)
		return
	}

	if !rt.authorizeSession(w, r, sid, identity.UserID) {
		return
	}

	resp, err := rt.relay.Forward(r.Context(), sid, msg, authInfoFromIdentity(identity))
	if err != nil {
		logger.Errorw("mcphandler: forward failed", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}

	w.Header().Set(SessionIDHeader, sid)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if resp != nil {
		_, _ = w.Write(resp)
	}
}

// handleStreamableGet implements GET /mcp: the long-lived
// server-initiated notification stream, SSE-framed.
func (rt *Routes) handleStreamableGet(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.FromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	sid := r.Header.Get(SessionIDHeader)
	if sid == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_session")
		return
	}
	if !rt.authorizeSession(w, r, sid, identity.UserID) {
		return
	}

	streamSSE(w, r, rt.relay, sid)
}

// handleStreamableDelete implements DELETE /mcp: ownership-checked
// explicit session teardown.
func (rt *Routes) handleStreamableDelete(w http.ResponseWriter, r *http.Request) {
	identity, ok := authn.FromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	sid := r.Header.Get(SessionIDHeader)
	if sid == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_session")
		return
	}
	if !rt.authorizeSession(w, r, sid, identity.UserID) {
		return
	}

	if err := rt.relay.PublishControl(r.Context(), sid, "SHUTDOWN"); err != nil {
		logger.Errorw("mcphandler: failed to publish shutdown", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return
	}
	if err := rt.ownership.ClearSessionOwner(r.Context(), sid); err != nil {
		logger.Errorw("mcphandler: failed to clear session owner", "sid", sid, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// authorizeSession checks liveness first (a dead session is 404
// regardless of who asks), then ownership (400 invalid_session on
// mismatch). It writes the error response itself and returns false if
// the caller should stop processing.
func (rt *Routes) authorizeSession(w http.ResponseWriter, r *http.Request, sid, userID string) bool {
	live, err := rt.relay.IsLive(r.Context(), sid)
	if err != nil {
		logger.Errorw("mcphandler: liveness check failed", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return false
	}
	if !live {
		writeJSONError(w, http.StatusNotFound, "session_gone")
		return false
	}

	owned, err := rt.ownership.IsSessionOwnedBy(r.Context(), sid, userID)
	if err != nil {
		logger.Errorw("mcphandler: ownership check failed", "sid", sid, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal")
		return false
	}
	if !owned {
		writeJSONError(w, http.StatusBadRequest, "invalid_session")
		return false
	}

	return true
}
