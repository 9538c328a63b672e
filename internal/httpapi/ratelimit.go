package httpapi

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-client requests-per-second budget using a
// token bucket per client: the X-API-Key header value when one is sent,
// else the remote host (JWT subjects and roles are not used), mirroring the reference stack's adaptive limiter but with a
// fixed budget since the control plane has no backoff signal to adapt
// to.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      int
}

// NewRateLimiter constructs a RateLimiter allowing rps requests per
// second (burst of the same size) per client key. rps <= 0 disables
// limiting entirely.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter), rps: rps}
}

// Middleware rejects requests over budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.rps <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rl.rps), rl.rps)
		rl.limiters[key] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}

func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
