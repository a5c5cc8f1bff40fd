package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/stockroom/pkg/httputil"
	"github.com/platinummonkey/stockroom/pkg/observability"
)

// RateLimitConfig defines the per-client token bucket
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate
	RequestsPerMinute int
	// Burst is the bucket size
	Burst int
	// TrustProxy keys clients by X-Forwarded-For instead of the socket address
	TrustProxy bool
	// MaxClients bounds how many client buckets are tracked at once
	MaxClients int
	// IdleTimeout forgets a client that has not tried to log in for this long
	IdleTimeout time.Duration
}

// DefaultLoginRateLimitConfig allows a login round trip every few seconds per address
func DefaultLoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		Burst:             10,
		MaxClients:        10000,
		IdleTimeout:       10 * time.Minute,
	}
}

// LoginRateLimiter throttles the unauthenticated login endpoints per client
// address. Buckets live in an expiring LRU, so an idle or evicted client
// starts again with a full bucket.
type LoginRateLimiter struct {
	config   RateLimitConfig
	metrics  *observability.Metrics
	// mu makes the lookup and insert of a new bucket one step
	mu       sync.Mutex
	visitors *lru.LRU[string, *rate.Limiter]
}

// NewLoginRateLimiter creates a limiter. metrics may be nil.
func NewLoginRateLimiter(config RateLimitConfig, metrics *observability.Metrics) *LoginRateLimiter {
	defaults := DefaultLoginRateLimitConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.MaxClients <= 0 {
		config.MaxClients = defaults.MaxClients
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	return &LoginRateLimiter{
		config:   config,
		metrics:  metrics,
		visitors: lru.NewLRU[string, *rate.Limiter](config.MaxClients, nil, config.IdleTimeout),
	}
}

// Allow consumes a token for key
func (l *LoginRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.visitors.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(l.config.RequestsPerMinute)/60), l.config.Burst)
	}
	// Re-adding pushes the expiry out from the latest attempt
	l.visitors.Add(key, limiter)
	l.mu.Unlock()
	return limiter.Allow()
}

// Tracked returns how many clients currently hold a bucket
func (l *LoginRateLimiter) Tracked() int {
	return l.visitors.Len()
}

// Handler rejects over-limit clients with 429
func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(httputil.ClientIP(r, l.config.TrustProxy)) {
			if l.metrics != nil {
				l.metrics.LoginRateLimitedTotal.Inc()
			}
			retryAfter := 60 / l.config.RequestsPerMinute
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			httputil.WriteTooManyRequests(w, "too many login attempts, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
