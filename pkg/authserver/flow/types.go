// Package flow implements the authorization-code and refresh-token
// state machine: PendingAuthorization -> TokenExchange -> Installation
// -> RefreshIndex, per the gateway's DATA MODEL.
package flow

import "time"

// PendingAuthorization is created at /authorize and consumed by the
// upstream-IdP callback and by the PKCE check at /token.
type PendingAuthorization struct {
	RedirectURI         string `json:"redirectUri"`
	CodeChallenge       string `json:"codeChallenge"`
	CodeChallengeMethod string `json:"codeChallengeMethod"`
	ClientID            string `json:"clientId"`
	State               string `json:"state,omitempty"`
}

// TokenExchange is written at upstream-callback success and consumed
// (read-then-CAS) at /token. A second successful exchange attempt
// implies replay.
type TokenExchange struct {
	MCPAccessToken string `json:"mcpAccessToken"`
	AlreadyUsed    bool   `json:"alreadyUsed"`
}

// Installation is the authoritative user-session record, keyed by
// access token.
type Installation struct {
	UpstreamInstallation string    `json:"upstreamInstallation"`
	AccessToken          string    `json:"accessToken"`
	RefreshToken         string    `json:"refreshToken"`
	ExpiresIn            int64     `json:"expiresIn"` // seconds
	ClientID             string    `json:"clientId"`
	IssuedAt             time.Time `json:"issuedAt"`
	UserID               string    `json:"userId"`
}

// ExpiresAt returns the wall-clock instant this installation's access
// token stops being valid.
func (i Installation) ExpiresAt() time.Time {
	return i.IssuedAt.Add(time.Duration(i.ExpiresIn) * time.Second)
}

// TokenResponse is the /token success body, RFC 6749 §5.1 shape.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AuthInfo is what a successful verification yields to the bearer
// gate and downstream handlers.
type AuthInfo struct {
	Token     string
	ClientID  string
	Scopes    []string
	ExpiresAt time.Time
	UserID    string

	// UpstreamInstallation is only populated by the embedded verifier,
	// which additionally loads the Installation record per spec §4.6.
	UpstreamInstallation string
}
