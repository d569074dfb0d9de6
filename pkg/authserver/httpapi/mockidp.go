package httpapi

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

// handleMockIdPAuthorize stands in for a real upstream identity
// provider's login screen: it carries the authorization code (as
// state) straight through to the callback, synthesizing a userId if
// the caller doesn't supply one. This is the explicit mock boundary
// spec.md draws — there is no real third-party IdP integration here.
func (a *API) handleMockIdPAuthorize(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "state is required")
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = "user-" + uuid.NewString()
	}

	callback := a.baseURI + "/mock-upstream-idp/callback?" + url.Values{
		"state":  {state},
		"userId": {userID},
	}.Encode()
	http.Redirect(w, r, callback, http.StatusFound)
}

// handleMockIdPCallback completes the upstream detour: it resolves
// the pending authorization bound to state (the authCode minted at
// /authorize), mints MCP tokens for userId, and redirects the user
// agent back to the original client redirect_uri carrying the
// authorization code and the client's own state value.
func (a *API) handleMockIdPCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	authCode := q.Get("state")
	userID := q.Get("userId")
	if authCode == "" || userID == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_state", "missing state or userId")
		return
	}

	pending, err := a.engine.CompleteUpstreamCallback(r.Context(), authCode, userID, userID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_state", "unknown or expired authorization")
		return
	}

	target, err := url.Parse(pending.RedirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "malformed redirect_uri")
		return
	}
	out := target.Query()
	out.Set("code", authCode)
	if pending.State != "" {
		out.Set("state", pending.State)
	}
	target.RawQuery = out.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
