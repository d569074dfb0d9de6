// Package authn carries the request-scoped identity extracted by the
// bearer gate through to downstream handlers.
package authn

import (
	"encoding/json"
	"fmt"
)

// Identity represents the authenticated principal behind a bearer
// token, as resolved by the token verifier seam.
type Identity struct {
	// UserID is the upstream-IdP subject this access token was minted
	// for.
	UserID string

	// ClientID is the OAuth client that holds this token.
	ClientID string

	// Scopes are the token's granted scopes.
	Scopes []string

	// Token is the raw bearer token (for pass-through scenarios).
	// Redacted in String() and MarshalJSON().
	Token string

	// UpstreamInstallation is populated only by the embedded verifier
	// (spec §4.6): the opaque upstream credential bound to this
	// installation, exposed on the cooperative task-local for
	// downstream handlers that need to act on behalf of the upstream
	// identity.
	UpstreamInstallation string
}

// String returns a redacted representation safe for logging.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{UserID:%q, ClientID:%q}", i.UserID, i.ClientID)
}

// MarshalJSON redacts the token before serialization.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	type safeIdentity struct {
		UserID   string   `json:"userId"`
		ClientID string   `json:"clientId"`
		Scopes   []string `json:"scopes"`
		Token    string   `json:"token"`
	}

	token := i.Token
	if token != "" {
		token = "REDACTED"
	}

	return json.Marshal(&safeIdentity{
		UserID:   i.UserID,
		ClientID: i.ClientID,
		Scopes:   i.Scopes,
		Token:    token,
	})
}
