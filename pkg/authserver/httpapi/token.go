package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/mcp-session-gateway/pkg/authcrypto"
	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

// handleToken implements POST /token for both the authorization_code
// and refresh_token grants.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "malformed form body")
		return
	}

	var installation *flow.Installation
	var err error

	switch grantType := r.PostForm.Get("grant_type"); grantType {
	case "authorization_code":
		installation, err = a.exchangeAuthorizationCode(r)
	case "refresh_token":
		installation, err = a.engine.ExchangeRefreshToken(r.Context(), r.PostForm.Get("refresh_token"), r.PostForm.Get("client_id"))
	default:
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeUnsupportedGrant, "unsupported grant_type")
		return
	}
	if err != nil {
		writeMappedError(w, err)
		return
	}

	resp := flow.TokenResponse{
		AccessToken:  installation.AccessToken,
		RefreshToken: installation.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    installation.ExpiresIn,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *API) exchangeAuthorizationCode(r *http.Request) (*flow.Installation, error) {
	code := r.PostForm.Get("code")
	clientID := r.PostForm.Get("client_id")
	verifier := r.PostForm.Get("code_verifier")

	pending, err := a.engine.ChallengeForAuthorizationCode(r.Context(), code, clientID)
	if err != nil {
		return nil, err
	}

	if !authcrypto.VerifyPKCE(verifier, pending.CodeChallenge, pending.CodeChallengeMethod) {
		return nil, ghaerrors.NewInvalidGrantError("code_verifier does not match code_challenge", nil)
	}

	return a.engine.ExchangeAuthorizationCode(r.Context(), code)
}
