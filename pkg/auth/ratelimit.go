package auth

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/assetguard/pkg/api"
)

// idleAfter is how long an unused limiter is kept.
const idleAfter = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per principal, falling back to the
// remote IP for unauthenticated requests.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows rps sustained requests with bursts of burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, v := range rl.visitors {
		if now.Sub(v.lastSeen) > idleAfter {
			delete(rl.visitors, k)
		}
	}
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Middleware enforces the limit. It must run after NewMiddleware so the
// principal is known.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if p, err := GetPrincipal(r.Context()); err == nil {
			key = p.Address.Hex()
		}
		if !rl.limiter(key).Allow() {
			retry := 1
			if rl.rps > 0 && rl.rps < 1 {
				retry = int(1/float64(rl.rps) + 0.5)
			}
			api.WriteTooManyRequests(w, retry)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
