package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/homestead/pkg/httputil"
	"github.com/platinummonkey/homestead/pkg/observability"
)

// ThrottleConfig bounds attempts against the credential endpoints
// (login, refresh, invitation acceptance) per client address.
type ThrottleConfig struct {
	// Attempts is the max attempts allowed in the window
	Attempts int
	// Window is the time window for throttling
	Window time.Duration
}

// DefaultThrottleConfig returns default credential throttling settings
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{Attempts: 10, Window: time.Minute}
}

// Limiter decides whether another attempt is allowed for a key
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter is a per-process token bucket limiter
type MemoryLimiter struct {
	config  ThrottleConfig
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewMemoryLimiter creates a new in-memory limiter
func NewMemoryLimiter(config ThrottleConfig) *MemoryLimiter {
	if config.Attempts <= 0 || config.Window <= 0 {
		config = DefaultThrottleConfig()
	}
	return &MemoryLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// WithClock overrides the limiter clock
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

// Allow takes a token from the key's bucket
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	capacity := float64(l.config.Attempts)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, lastUpdate: now}
		l.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastUpdate)
	b.tokens += elapsed.Seconds() * capacity / l.config.Window.Seconds()
	if b.tokens > capacity {
		b.tokens = capacity
	}
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// Cleanup drops buckets that have refilled completely
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.config.Window)
	for key, b := range l.buckets {
		if b.lastUpdate.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Throttle rejects credential attempts above the configured rate with 429.
// Limiter errors fail open.
func Throttle(limiter Limiter, config ThrottleConfig, logger *observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WithError(err).WithField("key", key).Warn("throttle limiter unavailable, allowing request")
				allowed = true
			}
			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", config.Window.Seconds()))
				httputil.WriteReason(w, http.StatusTooManyRequests, "too_many_attempts", "too many attempts, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller address, preferring proxy headers
func ClientIP(r *http.Request) string {
	// First hop of X-Forwarded-For when behind a proxy
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
