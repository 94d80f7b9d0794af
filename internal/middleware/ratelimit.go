package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"quiz-rewards-api/internal/models"
)

// ErrorCodeRateLimited is the error body sent with 429 responses.
const ErrorCodeRateLimited = "RateLimited"

// RateLimiter is a per-client token bucket. Each client gets rate tokens
// per window, refilled proportionally to elapsed time.
type RateLimiter struct {
	mu       sync.RWMutex
	clients  map[string]*clientLimiter
	rate     int
	window   time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type clientLimiter struct {
	mu         sync.Mutex
	tokens     int
	lastUpdate time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per window and
// starts its idle-client sweeper.
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	rl := newRateLimiter(rate, window, time.Now)
	go rl.sweep(5*time.Minute, time.Hour)
	return rl
}

func newRateLimiter(rate int, window time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate,
		window:  window,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// sweep drops clients idle for longer than idle.
func (rl *RateLimiter) sweep(every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(idle)
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, limiter := range rl.clients {
		limiter.mu.Lock()
		if now.Sub(limiter.lastUpdate) > idle {
			delete(rl.clients, key)
		}
		limiter.mu.Unlock()
	}
}

// Stop ends the sweeper. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Limit returns the configured requests per window.
func (rl *RateLimiter) Limit() int {
	return rl.rate
}

// Allow consumes a token for key, reporting false when none is left.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.RLock()
	limiter, exists := rl.clients[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		limiter, exists = rl.clients[key]
		if !exists {
			limiter = &clientLimiter{
				tokens:     rl.rate,
				lastUpdate: rl.now(),
			}
			rl.clients[key] = limiter
		}
		rl.mu.Unlock()
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := rl.now()
	elapsed := now.Sub(limiter.lastUpdate)

	if elapsed >= rl.window {
		limiter.tokens = rl.rate
		limiter.lastUpdate = now
	} else if refill := int(float64(rl.rate) * elapsed.Seconds() / rl.window.Seconds()); refill > 0 {
		limiter.tokens = min(limiter.tokens+refill, rl.rate)
		limiter.lastUpdate = now
	}

	if limiter.tokens > 0 {
		limiter.tokens--
		return true
	}
	return false
}

// GetClientKey identifies the caller by its remote address. Forwarding
// headers are only honored through chi's RealIP, which rewrites
// RemoteAddr when the server is configured to trust them.
func GetClientKey(r *http.Request) string {
	return r.RemoteAddr
}

// RateLimitMiddleware rejects requests over the limit with 429.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	limit := strconv.Itoa(limiter.Limit())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", limit)

			if !limiter.Allow(GetClientKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: ErrorCodeRateLimited})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
