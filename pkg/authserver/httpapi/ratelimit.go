package httpapi

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// perSourceLimiter rate-limits by request source (typically the
// caller's IP), extending a single rate.Limiter-per-field into one
// limiter per source, since /register and /token must be limited per
// caller rather than globally.
type perSourceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newPerSourceLimiter(r rate.Limit, burst int) *perSourceLimiter {
	return &perSourceLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (l *perSourceLimiter) allow(source string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[source]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[source] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func sourceOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimited wraps next so that requests exceeding limiter's budget
// for their source get a 429 instead of reaching the handler.
func rateLimited(limiter *perSourceLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.allow(sourceOf(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
