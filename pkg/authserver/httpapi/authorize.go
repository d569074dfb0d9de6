package httpapi

import (
	"net/http"
	"net/url"

	"github.com/stacklok/mcp-session-gateway/pkg/authcrypto"
	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

// handleAuthorize implements GET /authorize. client_id and
// redirect_uri are validated before anything else: until redirect_uri
// is known to be one this client actually registered, an error
// response must never redirect there (an open-redirect primitive),
// so those two failure modes return 400 directly while every later
// failure mode redirects back to the now-trusted redirect_uri.
func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "client_id is required")
		return
	}

	reg, err := a.registry.Get(r.Context(), clientID)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidClient, "unknown client_id")
		return
	}

	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || !reg.MatchRedirectURI(redirectURI) {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "redirect_uri is not registered for this client")
		return
	}

	state := q.Get("state")

	if q.Get("response_type") != "code" {
		redirectWithError(w, r, redirectURI, state, "unsupported_response_type")
		return
	}

	codeChallenge := q.Get("code_challenge")
	if codeChallenge == "" {
		redirectWithError(w, r, redirectURI, state, string(ghaerrors.TypeInvalidRequest))
		return
	}
	if q.Get("code_challenge_method") != authcrypto.MethodS256 {
		redirectWithError(w, r, redirectURI, state, string(ghaerrors.TypeInvalidRequest))
		return
	}

	authCode, err := a.engine.StartAuthorization(r.Context(), flow.PendingAuthorization{
		RedirectURI:         redirectURI,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: q.Get("code_challenge_method"),
		ClientID:            clientID,
		State:               state,
	})
	if err != nil {
		redirectWithError(w, r, redirectURI, state, "server_error")
		return
	}

	continueURL := a.baseURI + "/mock-upstream-idp/authorize?" + url.Values{"state": {authCode}}.Encode()
	clientName := reg.ClientName
	if clientName == "" {
		clientName = reg.ClientID
	}
	writeConsentPage(w, clientName, continueURL)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI, state, errCode string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, http.StatusBadRequest, ghaerrors.TypeInvalidRequest, "malformed redirect_uri")
		return
	}
	q := target.Query()
	q.Set("error", errCode)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
