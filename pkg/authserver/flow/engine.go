package flow

import (
	"context"
	"time"

	"github.com/stacklok/mcp-session-gateway/pkg/authcrypto"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
	"github.com/stacklok/mcp-session-gateway/pkg/kvstore"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
)

// AccessTokenLifespan is the fixed lifetime of issued access tokens.
const AccessTokenLifespan = time.Hour

// Engine implements the authorization-code and refresh-token state
// machine described in spec §4.4, over an encrypted kvstore.Store.
type Engine struct {
	store kvstore.Store
}

// NewEngine builds an Engine over the given store.
func NewEngine(store kvstore.Store) *Engine {
	return &Engine{store: store}
}

// StartAuthorization persists a PendingAuthorization for a freshly
// generated authorization code and returns the code. The code is the
// lookup key under which the record is encrypted.
func (e *Engine) StartAuthorization(ctx context.Context, pa PendingAuthorization) (authCode string, err error) {
	authCode, err = authcrypto.GenerateToken()
	if err != nil {
		return "", ghaerrors.NewInternalError("failed to generate authorization code", err)
	}

	if err := kvstore.SaveJSON(ctx, e.store, kvstore.ClassPending, authCode, pa, kvstore.TTLPendingAuth); err != nil {
		return "", ghaerrors.NewInternalError("failed to persist pending authorization", err)
	}

	return authCode, nil
}

// CompleteUpstreamCallback runs after the (mocked) upstream IdP
// authenticates userID for the pending authorization bound to
// authCode: it mints MCP tokens, stores the Installation and
// RefreshIndex, and records a fresh TokenExchange so /token can later
// redeem authCode exactly once.
func (e *Engine) CompleteUpstreamCallback(ctx context.Context, authCode, userID, upstreamInstallation string) (*PendingAuthorization, error) {
	var pending PendingAuthorization
	if err := kvstore.LoadJSON(ctx, e.store, kvstore.ClassPending, authCode, &pending); err != nil {
		return nil, ghaerrors.NewInvalidGrantError("unknown or expired authorization code", err)
	}

	accessToken, err := authcrypto.GenerateToken()
	if err != nil {
		return nil, ghaerrors.NewInternalError("failed to generate access token", err)
	}
	refreshToken, err := authcrypto.GenerateToken()
	if err != nil {
		return nil, ghaerrors.NewInternalError("failed to generate refresh token", err)
	}

	installation := Installation{
		UpstreamInstallation: upstreamInstallation,
		AccessToken:          accessToken,
		RefreshToken:         refreshToken,
		ExpiresIn:            int64(AccessTokenLifespan.Seconds()),
		ClientID:             pending.ClientID,
		IssuedAt:             time.Now(),
		UserID:               userID,
	}

	if err := kvstore.SaveJSON(ctx, e.store, kvstore.ClassInstallation, accessToken, installation, kvstore.TTLInstallation); err != nil {
		return nil, ghaerrors.NewInternalError("failed to persist installation", err)
	}
	if err := kvstore.SaveJSON(ctx, e.store, kvstore.ClassRefresh, refreshToken, accessToken, kvstore.TTLRefreshIndex); err != nil {
		return nil, ghaerrors.NewInternalError("failed to persist refresh index", err)
	}

	exchange := TokenExchange{MCPAccessToken: accessToken, AlreadyUsed: false}
	if err := kvstore.SaveJSON(ctx, e.store, kvstore.ClassExchange, authCode, exchange, kvstore.TTLTokenExchange); err != nil {
		return nil, ghaerrors.NewInternalError("failed to persist token exchange", err)
	}

	return &pending, nil
}

// ChallengeForAuthorizationCode returns the PKCE challenge recorded at
// /authorize time, for the /token handler to verify against the
// caller-supplied code_verifier.
func (e *Engine) ChallengeForAuthorizationCode(ctx context.Context, authCode, clientID string) (*PendingAuthorization, error) {
	var pending PendingAuthorization
	if err := kvstore.LoadJSON(ctx, e.store, kvstore.ClassPending, authCode, &pending); err != nil {
		return nil, ghaerrors.NewInvalidGrantError("unknown or expired authorization code", err)
	}
	if pending.ClientID != clientID {
		return nil, ghaerrors.NewInvalidGrantError("authorization code was issued to a different client", nil)
	}
	return &pending, nil
}

// ExchangeAuthorizationCode redeems authCode for its bound
// Installation's token triple, enforcing single use via a
// read-then-compare-and-swap on the TokenExchange record: the record
// is rewritten with alreadyUsed=true, and the value the store reports
// as current immediately before that rewrite is compared against what
// was read a moment earlier. A mismatch means another exchange landed
// in between — a replay — and revokes the bound installation so the
// token already handed out for it stops verifying too.
func (e *Engine) ExchangeAuthorizationCode(ctx context.Context, authCode string) (*Installation, error) {
	var before TokenExchange
	if err := kvstore.LoadJSON(ctx, e.store, kvstore.ClassExchange, authCode, &before); err != nil {
		return nil, ghaerrors.NewInvalidGrantError("unknown or expired authorization code", err)
	}

	if before.AlreadyUsed {
		e.revokeAndLogReplay(ctx, authCode, before.MCPAccessToken)
		return nil, ghaerrors.NewInvalidGrantError("authorization code already used", nil)
	}

	used := TokenExchange{MCPAccessToken: before.MCPAccessToken, AlreadyUsed: true}
	var previous TokenExchange
	if err := kvstore.ExchangeJSON(ctx, e.store, kvstore.ClassExchange, authCode, used, &previous); err != nil {
		return nil, ghaerrors.NewInvalidGrantError("authorization code already used or expired", err)
	}

	if previous.AlreadyUsed {
		// Another caller's swap won the race between our read above and
		// our own swap just now: the record we overwrote already carried
		// alreadyUsed=true, so this attempt is itself a replay.
		e.revokeAndLogReplay(ctx, authCode, previous.MCPAccessToken)
		return nil, ghaerrors.NewInvalidGrantError("authorization code already used", nil)
	}

	var installation Installation
	if err := kvstore.LoadJSON(ctx, e.store, kvstore.ClassInstallation, before.MCPAccessToken, &installation); err != nil {
		return nil, ghaerrors.NewInvalidGrantError("installation not found for authorization code", err)
	}

	return &installation, nil
}

func (e *Engine) revokeAndLogReplay(ctx context.Context, authCode, accessToken string) {
	logger.Errorw("authorization code replay detected, revoking installation",
		"authCodePrefix", prefix(authCode))
	if err := e.store.Delete(ctx, kvstore.ClassInstallation, accessToken); err != nil {
		logger.Errorw("failed to revoke installation after replay", "error", err)
	}
}

// ExchangeRefreshToken rotates the access+refresh token pair bound to
// refreshToken, preserving userId and upstreamInstallation. The old
// access token's Installation record is left in place — it becomes
// unreachable once no RefreshIndex points at it, and expires_in
// remains the authoritative rejection guard (spec §9 open question).
func (e *Engine) ExchangeRefreshToken(ctx context.Context, refreshToken, clientID string) (*Installation, error) {
	var oldAccessToken string
	if err := kvstore.LoadJSON(ctx, e.store, kvstore.ClassRefresh, refreshToken, &oldAccessToken); err != nil {
		return nil, ghaerrors.NewInvalidGrantError("unknown or expired refresh token", err)
	}

	var installation Installation
	if err := kvstore.LoadJSON(ctx, e.store, kvstore.ClassInstallation, oldAccessToken, &installation); err != nil {
		return nil, ghaerrors.NewInvalidGrantError("installation not found for refresh token", err)
	}
	if installation.ClientID != clientID {
		return nil, ghaerrors.NewInvalidGrantError("refresh token was issued to a different client", nil)
	}

	newAccessToken, err := authcrypto.GenerateToken()
	if err != nil {
		return nil, ghaerrors.NewInternalError("failed to generate access token", err)
	}
	newRefreshToken, err := authcrypto.GenerateToken()
	if err != nil {
		return nil, ghaerrors.NewInternalError("failed to generate refresh token", err)
	}

	rotated := Installation{
		UpstreamInstallation: installation.UpstreamInstallation,
		AccessToken:          newAccessToken,
		RefreshToken:         newRefreshToken,
		ExpiresIn:            int64(AccessTokenLifespan.Seconds()),
		ClientID:             installation.ClientID,
		IssuedAt:             time.Now(),
		UserID:               installation.UserID,
	}

	if err := kvstore.SaveJSON(ctx, e.store, kvstore.ClassInstallation, newAccessToken, rotated, kvstore.TTLInstallation); err != nil {
		return nil, ghaerrors.NewInternalError("failed to persist rotated installation", err)
	}
	if err := kvstore.SaveJSON(ctx, e.store, kvstore.ClassRefresh, newRefreshToken, newAccessToken, kvstore.TTLRefreshIndex); err != nil {
		return nil, ghaerrors.NewInternalError("failed to persist rotated refresh index", err)
	}
	// Old refresh token is retired explicitly: a refresh token must be
	// single-use, unlike the old access token which is left to expire
	// naturally.
	if err := e.store.Delete(ctx, kvstore.ClassRefresh, refreshToken); err != nil {
		logger.Errorw("failed to delete rotated-out refresh token", "error", err)
	}

	return &rotated, nil
}

// VerifyAccessToken is the embedded verifier's core: load the
// Installation bound to token and reject if absent or expired.
func (e *Engine) VerifyAccessToken(ctx context.Context, token string) (*AuthInfo, error) {
	var installation Installation
	if err := kvstore.LoadJSON(ctx, e.store, kvstore.ClassInstallation, token, &installation); err != nil {
		return nil, ghaerrors.NewInvalidTokenError("unknown or expired access token", err)
	}

	if time.Now().After(installation.ExpiresAt()) {
		return nil, ghaerrors.NewInvalidTokenError("access token expired", nil)
	}

	return &AuthInfo{
		Token:                token,
		ClientID:             installation.ClientID,
		Scopes:               []string{"mcp"}, // fixed scope list, spec §9 open question
		ExpiresAt:            installation.ExpiresAt(),
		UserID:               installation.UserID,
		UpstreamInstallation: installation.UpstreamInstallation,
	}, nil
}

// Revoke deletes the Installation bound to token, accepting either an
// access token or a refresh token (hint-agnostic, per spec §4.4).
func (e *Engine) Revoke(ctx context.Context, token string) error {
	// Try as an access token first.
	if err := e.store.Delete(ctx, kvstore.ClassInstallation, token); err != nil {
		logger.Errorw("revoke: failed to delete installation by access token", "error", err)
	}

	// Also try resolving it as a refresh token pointing at an
	// installation, so revoking a refresh token revokes the bound
	// installation too.
	var accessToken string
	if err := kvstore.LoadJSON(ctx, e.store, kvstore.ClassRefresh, token, &accessToken); err == nil {
		if err := e.store.Delete(ctx, kvstore.ClassInstallation, accessToken); err != nil {
			logger.Errorw("revoke: failed to delete installation by refresh token", "error", err)
		}
		if err := e.store.Delete(ctx, kvstore.ClassRefresh, token); err != nil {
			logger.Errorw("revoke: failed to delete refresh index", "error", err)
		}
	}

	return nil
}

func prefix(s string) string {
	const n = 8
	if len(s) <= n {
		return s
	}
	return s[:n]
}
