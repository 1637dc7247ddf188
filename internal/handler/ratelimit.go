package handler

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pavelanni/smartquiz/internal/handler/views"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter allows each client IP a burst of n requests refilled
// evenly over window. An n of 0 or less disables limiting.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	expiry   time.Duration
}

func newRateLimiter(n int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{visitors: make(map[string]*visitor)}
	if n <= 0 || window <= 0 {
		return rl
	}
	rl.limit = rate.Every(window / time.Duration(n))
	rl.burst = n
	rl.expiry = max(window*3, time.Minute)
	return rl
}

func (rl *rateLimiter) enabled() bool { return rl.burst > 0 }

func (rl *rateLimiter) allow(key string) bool {
	if !rl.enabled() {
		return true
	}
	rl.mu.Lock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()
	return v.limiter.Allow()
}

// prune forgets visitors that have been idle for longer than the expiry.
func (rl *rateLimiter) prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for ip, v := range rl.visitors {
		if time.Since(v.lastSeen) > rl.expiry {
			delete(rl.visitors, ip)
			n++
		}
	}
	return n
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			render(w, r, http.StatusTooManyRequests, views.ErrorPage("TooManyRequests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already applied proxy headers when it is in use.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
