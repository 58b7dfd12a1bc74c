// ratelimit.go provides Gin middleware that enforces per-client request rate limits,
// returning 429 responses when the configured requests-per-minute threshold is exceeded.
// A single replica uses an in-process token bucket; replicas sharing a Redis instance use
// redis_rate so the limit holds across the fleet.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/IBM/taxinomitis-sub001/internal/config"
)

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a client identified by key may make a request
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	// Limit is the configured requests per minute
	Limit() int
}

// NewLimiter returns the limiter configured by cfg and a function that
// releases its resources.
func NewLimiter(cfg config.RateLimitingConfig, clock clockwork.Clock) (Limiter, func()) {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 200
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 50
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		slog.Info("rate limiting shared through redis", "addr", cfg.RedisAddr)
		return NewRedisLimiter(rdb, rpm, burst), func() { _ = rdb.Close() }
	}

	mem := NewMemoryLimiter(rpm, burst, clock)
	return mem, mem.Stop
}

// ---------------------------------------------------------------------------
// In-process token bucket
// ---------------------------------------------------------------------------

// bucket tracks the tokens left for a single client
type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter implements a token bucket per key in process memory
type MemoryLimiter struct {
	rpm     int
	burst   int
	clock   clockwork.Clock
	entries map[string]*bucket
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryLimiter creates a token bucket limiter and starts its cleanup loop
func NewMemoryLimiter(requestsPerMinute, burst int, clock clockwork.Clock) *MemoryLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rl := &MemoryLimiter{
		rpm:     requestsPerMinute,
		burst:   burst,
		clock:   clock,
		entries: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

// cleanup periodically removes clients that have been idle for ten minutes
func (rl *MemoryLimiter) cleanup(interval time.Duration) {
	ticker := rl.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			rl.evictIdle()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *MemoryLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.clock.Now()
	for key, entry := range rl.entries {
		if now.Sub(entry.lastUpdate) > 10*time.Minute {
			delete(rl.entries, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *MemoryLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// Limit implements Limiter
func (rl *MemoryLimiter) Limit() int {
	return rl.rpm
}

// Allow implements Limiter. It never returns an error.
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	tokensPerSecond := float64(rl.rpm) / 60.0

	entry, exists := rl.entries[key]
	if !exists {
		entry = &bucket{tokens: float64(rl.burst), lastUpdate: now}
		rl.entries[key] = entry
	} else {
		elapsed := now.Sub(entry.lastUpdate)
		entry.tokens = math.Min(float64(rl.burst), entry.tokens+elapsed.Seconds()*tokensPerSecond)
		entry.lastUpdate = now
	}

	if entry.tokens >= 1 {
		entry.tokens--
		return Decision{Allowed: true, Remaining: int(entry.tokens)}, nil
	}

	wait := time.Duration((1 - entry.tokens) / tokensPerSecond * float64(time.Second))
	return Decision{Allowed: false, Remaining: 0, RetryAfter: wait}, nil
}

// ---------------------------------------------------------------------------
// Redis-backed GCRA
// ---------------------------------------------------------------------------

// RedisLimiter shares a limit across replicas through Redis
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisLimiter creates a limiter allowing requestsPerMinute with the given
// burst.
func NewRedisLimiter(rdb *redis.Client, requestsPerMinute, burst int) *RedisLimiter {
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.Limit{Rate: requestsPerMinute, Burst: burst, Period: time.Minute},
	}
}

// Limit implements Limiter
func (rl *RedisLimiter) Limit() int {
	return rl.limit.Rate
}

// Allow implements Limiter
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, "mlk:ratelimit:"+key, rl.limit)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		RetryAfter: res.RetryAfter,
	}, nil
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware rejects clients that exceed the limiter's rate. When the
// limiter itself fails (Redis unreachable) requests are let through.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey prefers the authenticated user and falls back to the client IP
func getRateLimitKey(c *gin.Context) string {
	if id := CurrentIdentity(c); id != nil && id.UserID != "" {
		return "user:" + id.UserID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
