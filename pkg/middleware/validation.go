package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"site-settings-backend/pkg/utils"

	"golang.org/x/time/rate"
)

// DefaultMaxBodyBytes caps JSON request bodies.
const DefaultMaxBodyBytes = 1 << 20

// MaxBodySize 限制请求体大小. Declared oversize bodies are refused up front;
// chunked ones fail when read (see utils.ReadBody).
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				utils.WriteBodyTooLargeResponse(w)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// IPRateLimiter hands out one token bucket per client IP. Idle buckets are
// swept lazily on access rather than by a background goroutine.
type IPRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewIPRateLimiter allows perMinute requests per IP with the given burst.
func NewIPRateLimiter(perMinute float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
		idleTTL:  time.Hour,
		now:      time.Now,
	}
}

// Allow reports whether a request from ip may proceed now.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idleTTL {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastUsed) > l.idleTTL {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastUsed = now
	return entry.limiter.AllowN(now, 1)
}

// RetryAfter is the wait, in whole seconds, until one more token is available.
func (l *IPRateLimiter) RetryAfter() int {
	if l.limit <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(l.limit)))
}

// Len returns the number of tracked IPs.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimitByIP IP限流, answering 429 with Retry-After once the bucket is empty.
func RateLimitByIP(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(limiter.RetryAfter()))
				utils.WriteErrorResponse(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP reads RemoteAddr, which chi's RealIP middleware has already
// rewritten from X-Real-IP / X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
