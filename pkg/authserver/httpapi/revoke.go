package httpapi

import (
	"net/http"

	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
)

// handleRevoke implements POST /revoke. The token hint is ignored:
// Engine.Revoke accepts either an access or a refresh token. Per
// RFC 7009 §2.2, revoking an already-invalid token is still success.
func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "malformed form body")
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "token is required")
		return
	}

	if err := a.engine.Revoke(r.Context(), token); err != nil {
		logger.Errorw("httpapi: revoke failed", "error", err)
	}

	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}
