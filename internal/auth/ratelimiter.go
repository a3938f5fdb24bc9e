package auth

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// RateLimiter applies per-caller token-bucket limits. Authenticated
// requests are keyed by key ID; anonymous requests fall back to the
// client IP.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time

	defaultRate  rate.Limit
	defaultBurst int
	cleanupTTL   time.Duration
}

// RateLimiterConfig tunes the limiter.
type RateLimiterConfig struct {
	RequestsPerMinute int
	BurstSize         int
	CleanupTTL        time.Duration
}

// NewRateLimiter builds the limiter and starts its idle-entry sweeper.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 10
	}
	if cfg.CleanupTTL <= 0 {
		cfg.CleanupTTL = 10 * time.Minute
	}

	rl := &RateLimiter{
		limiters:     make(map[string]*rate.Limiter),
		lastAccess:   make(map[string]time.Time),
		defaultRate:  rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		defaultBurst: cfg.BurstSize,
		cleanupTTL:   cfg.CleanupTTL,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether the caller may proceed. rpm overrides the default
// limit when positive.
func (rl *RateLimiter) Allow(caller string, rpm int) bool {
	return rl.limiter(caller, rpm).Allow()
}

func (rl *RateLimiter) limiter(caller string, rpm int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastAccess[caller] = time.Now()
	if lim, ok := rl.limiters[caller]; ok {
		return lim
	}

	r := rl.defaultRate
	b := rl.defaultBurst
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60.0)
		if b > rpm {
			b = rpm
		}
	}
	lim := rate.NewLimiter(r, b)
	rl.limiters[caller] = lim
	return lim
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupTTL / 2)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-rl.cleanupTTL)
		rl.mu.Lock()
		for caller, last := range rl.lastAccess {
			if last.Before(cutoff) {
				delete(rl.limiters, caller)
				delete(rl.lastAccess, caller)
			}
		}
		rl.mu.Unlock()
	}
}

// Handler wraps next with rate limiting.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, rpm := callerKey(r)
		if !rl.Allow(caller, rpm) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":  "rate limit exceeded",
				"status": "error",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerKey prefers the authenticated identity, falling back to the
// remote IP for anonymous requests.
func callerKey(r *http.Request) (string, int) {
	if id := IdentityFromContext(r.Context()); id != nil {
		return "key:" + id.KeyID, id.RPMLimit
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host, 0
}
