package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

// introspectionResponse is the RFC 7662 §2.2 response shape.
type introspectionResponse struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Aud       string `json:"aud,omitempty"`
	Iss       string `json:"iss,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// handleIntrospect implements POST /introspect. Any failure to
// validate the token yields {"active":false} with a 200 status —
// RFC 7662 treats an inactive token as a valid answer, not an error —
// and never leaks why the token was rejected. Only a missing token
// parameter itself is a protocol error.
func (a *API) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "malformed form body")
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "token is required")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	info, err := a.engine.VerifyAccessToken(r.Context(), token)
	if err != nil {
		_ = json.NewEncoder(w).Encode(introspectionResponse{Active: false})
		return
	}

	_ = json.NewEncoder(w).Encode(introspectionResponse{
		Active:    true,
		ClientID:  info.ClientID,
		Scope:     strings.Join(info.Scopes, " "),
		Exp:       info.ExpiresAt.Unix(),
		Sub:       info.UserID,
		Aud:       a.baseURI,
		Iss:       a.baseURI,
		TokenType: "Bearer",
	})
}
