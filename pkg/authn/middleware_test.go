package authn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

type stubVerifier struct {
	info *flow.AuthInfo
	err  error
}

func (s *stubVerifier) VerifyAccessToken(_ context.Context, _ string) (*flow.AuthInfo, error) {
	return s.info, s.err
}

func TestRequireBearerMissingTokenIs401(t *testing.T) {
	t.Parallel()

	mw := RequireBearer(&stubVerifier{}, "https://gateway.example/.well-known/oauth-protected-resource")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("next handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	challenge := rec.Header().Get("WWW-Authenticate")
	assert.Contains(t, challenge, "Bearer")
	assert.Contains(t, challenge, "resource_metadata=")
	assert.NotContains(t, challenge, "error=")
}

func TestRequireBearerInvalidTokenIs401WithErrorCode(t *testing.T) {
	t.Parallel()

	mw := RequireBearer(&stubVerifier{err: ghaerrors.NewInvalidTokenError("expired", nil)}, "https://gateway.example/.well-known/oauth-protected-resource")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("next handler must not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	challenge := rec.Header().Get("WWW-Authenticate")
	assert.Contains(t, challenge, `error="invalid_token"`)
	assert.Contains(t, challenge, "resource_metadata=")
}

func TestRequireBearerSuccessStoresIdentityInContext(t *testing.T) {
	t.Parallel()

	info := &flow.AuthInfo{
		UserID:               "u1",
		ClientID:             "client-1",
		Scopes:               []string{"mcp"},
		ExpiresAt:            time.Now().Add(time.Hour),
		UpstreamInstallation: "upstream-cred",
	}

	var gotIdentity *Identity
	mw := RequireBearer(&stubVerifier{info: info}, "https://gateway.example/.well-known/oauth-protected-resource")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := FromContext(r.Context())
		require.True(t, ok)
		gotIdentity = identity
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotIdentity)
	assert.Equal(t, "u1", gotIdentity.UserID)
	assert.Equal(t, "client-1", gotIdentity.ClientID)
	assert.Equal(t, []string{"mcp"}, gotIdentity.Scopes)
	assert.Equal(t, "good-token", gotIdentity.Token)
	assert.Equal(t, "upstream-cred", gotIdentity.UpstreamInstallation)
}

func TestExtractBearerTokenRejectsMalformedHeader(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Basic xyz")
	_, ok := extractBearerToken(req)
	assert.False(t, ok)

	req2 := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req2.Header.Set("Authorization", "Bearer ")
	_, ok2 := extractBearerToken(req2)
	assert.False(t, ok2)
}
