package verifier

import (
	"context"
	"sync"
	"time"

	"github.com/stacklok/mcp-session-gateway/pkg/authserver/flow"
)

type cacheEntry struct {
	info      *flow.AuthInfo
	err       error
	expiresAt time.Time
}

// Caching wraps a Verifier with a validation cache keyed by the raw
// token, TTL min(exp-now, CacheTTLCap), so a cache hit can never
// prolong a token past its own expiry.
type Caching struct {
	inner Verifier
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCaching wraps inner with a validation cache.
func NewCaching(inner Verifier) *Caching {
	return &Caching{
		inner:   inner,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// VerifyAccessToken implements Verifier.
func (c *Caching) VerifyAccessToken(ctx context.Context, token string) (*flow.AuthInfo, error) {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[token]
	c.mu.Unlock()

	if ok && now.Before(entry.expiresAt) {
		return entry.info, entry.err
	}

	info, err := c.inner.VerifyAccessToken(ctx, token)

	ttl := CacheTTLCap
	if err == nil {
		if untilExpiry := info.ExpiresAt.Sub(now); untilExpiry < ttl {
			ttl = untilExpiry
		}
	}
	if ttl <= 0 {
		// Don't cache already-expired results; let the next call hit
		// the underlying verifier fresh.
		c.mu.Lock()
		delete(c.entries, token)
		c.mu.Unlock()
		return info, err
	}

	c.mu.Lock()
	c.entries[token] = cacheEntry{info: info, err: err, expiresAt: now.Add(ttl)}
	c.mu.Unlock()

	return info, err
}
