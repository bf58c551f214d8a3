package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/mintline/edition_layer/internal/errors"
	"github.com/mintline/edition_layer/internal/httputil"
	"github.com/mintline/edition_layer/pkg/logger"
)

const maxTrackedLimiters = 10000

// RateLimiter applies a token bucket per caller, keyed by user id when
// authenticated and by client address otherwise.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	logger   *logger.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond float64, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		logger:   log,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware handler
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetUserID(r.Context())
		if key == "" {
			key = clientAddr(r)
		}

		if !rl.getLimiter(key).Allow() {
			rl.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			}).Warn("rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			httputil.WriteError(w, apperrors.RateLimited())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Cleanup drops every bucket once too many callers are tracked. Dropped
// callers start again with a full bucket.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if len(rl.limiters) > maxTrackedLimiters {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()
}
