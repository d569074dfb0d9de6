package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
	"github.com/stacklok/mcp-session-gateway/pkg/ghaerrors"
)

type stubVerifier struct {
	calls int
	info  *flow.AuthInfo
	err   error
}

func (s *stubVerifier) VerifyAccessToken(_ context.Context, _ string) (*flow.AuthInfo, error) {
	s.calls++
	return s.info, s.err
}

func TestCachingVerifierHitsCacheWithinTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	stub := &stubVerifier{info: &flow.AuthInfo{Token: "t1", ExpiresAt: time.Now().Add(time.Hour)}}
	c := NewCaching(stub)

	_, err := c.VerifyAccessToken(ctx, "t1")
	require.NoError(t, err)
	_, err = c.VerifyAccessToken(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls, "second call should hit the cache")
}

func TestCachingVerifierNeverProlongsPastExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	expiresAt := time.Now().Add(30 * time.Second)
	stub := &stubVerifier{info: &flow.AuthInfo{Token: "t1", ExpiresAt: expiresAt}}
	c := NewCaching(stub)

	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	_, err := c.VerifyAccessToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)

	// Advance past the token's own expiry; even though it's within the
	// 60s cache cap, the cache entry TTL was bounded by exp-now so it
	// must have already expired.
	c.now = func() time.Time { return expiresAt.Add(time.Second) }
	stub.err = ghaerrors.NewInvalidTokenError("expired", nil)
	stub.info = nil

	_, err = c.VerifyAccessToken(ctx, "t1")
	assert.Error(t, err)
	assert.Equal(t, 2, stub.calls, "cache must not serve a result past the token's own exp")
}

func TestCachingVerifierCapsTTLAtSixtySeconds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fixed := time.Now()
	stub := &stubVerifier{info: &flow.AuthInfo{Token: "t1", ExpiresAt: fixed.Add(time.Hour)}}
	c := NewCaching(stub)
	c.now = func() time.Time { return fixed }

	_, err := c.VerifyAccessToken(ctx, "t1")
	require.NoError(t, err)

	c.now = func() time.Time { return fixed.Add(CacheTTLCap + time.Second) }
	_, err = c.VerifyAccessToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls, "cache entry must expire after the 60s cap even though the token itself is still valid")
}
