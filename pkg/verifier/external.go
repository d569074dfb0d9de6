package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

// maxIntrospectionResponseSize bounds the introspection response body
// to defend against a misbehaving or hostile auth server.
const maxIntrospectionResponseSize = 64 * 1024

// introspectionResponse is the RFC 7662 response shape.
type introspectionResponse struct {
	Active    bool     `json:"active"`
	ClientID  string   `json:"client_id"`
	Scope     string   `json:"scope"`
	Sub       string   `json:"sub"`
	Exp       int64    `json:"exp"`
	Nbf       int64    `json:"nbf"`
	Iat       int64    `json:"iat"`
	Aud       []string `json:"aud"`
	TokenType string   `json:"token_type"`
}

// External verifies tokens by POSTing to a remote RFC 7662
// introspection endpoint. On any network failure it fails closed.
type External struct {
	client        *http.Client
	introspectURL string
	clientID      string
	clientSecret  string
	canonicalURI  string
}

// NewExternal builds an External verifier against introspectURL,
// authenticating with clientID/clientSecret if non-empty, and
// checking the response's audience against canonicalURI.
func NewExternal(introspectURL, clientID, clientSecret, canonicalURI string) *External {
	return &External{
		client:        &http.Client{Timeout: 10 * time.Second},
		introspectURL: introspectURL,
		clientID:      clientID,
		clientSecret:  clientSecret,
		canonicalURI:  canonicalURI,
	}
}

// VerifyAccessToken implements Verifier.
func (ext *External) VerifyAccessToken(ctx context.Context, token string) (*flow.AuthInfo, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ext.introspectURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, ghaerrors.NewUpstreamUnavailableError("failed to build introspection request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if ext.clientID != "" {
		req.SetBasicAuth(ext.clientID, ext.clientSecret)
	}

	resp, err := ext.client.Do(req)
	if err != nil {
		return nil, ghaerrors.NewUpstreamUnavailableError("introspection request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIntrospectionResponseSize))
	if err != nil {
		return nil, ghaerrors.NewUpstreamUnavailableError("failed to read introspection response", err)
	}

	if resp.StatusCode >= 400 {
		return nil, ghaerrors.NewInvalidTokenError("introspection endpoint rejected token", fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed introspectionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, ghaerrors.NewUpstreamUnavailableError("failed to parse introspection response", err)
	}

	if !parsed.Active {
		return nil, ghaerrors.NewInvalidTokenError("token not active", nil)
	}

	now := time.Now().Unix()
	if parsed.Exp != 0 && parsed.Exp < now {
		return nil, ghaerrors.NewInvalidTokenError("token expired", nil)
	}
	if parsed.Nbf != 0 && parsed.Nbf > now {
		return nil, ghaerrors.NewInvalidTokenError("token not yet valid", nil)
	}
	if parsed.Iat != 0 && parsed.Iat > now+60 {
		return nil, ghaerrors.NewInvalidTokenError("token issued in the future", nil)
	}

	// Permissive when aud is absent, per spec §9 open question; when
	// present, it must contain this server's canonical URI.
	if len(parsed.Aud) > 0 && !containsString(parsed.Aud, ext.canonicalURI) {
		return nil, ghaerrors.NewInvalidTokenError("token audience does not match this resource", nil)
	}

	var scopes []string
	if parsed.Scope != "" {
		scopes = strings.Fields(parsed.Scope)
	}

	return &flow.AuthInfo{
		Token:     token,
		ClientID:  parsed.ClientID,
		Scopes:    scopes,
		ExpiresAt: time.Unix(parsed.Exp, 0),
		UserID:    parsed.Sub,
	}, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
