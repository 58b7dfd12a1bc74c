package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/IBM/taxinomitis-sub001/internal/auth"
	"github.com/IBM/taxinomitis-sub001/internal/config"
)

func newTestLimiter(t *testing.T, rpm, burst int) (*MemoryLimiter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rl := NewMemoryLimiter(rpm, burst, clock)
	t.Cleanup(rl.Stop)
	return rl, clock
}

func allow(t *testing.T, l Limiter, key string) Decision {
	t.Helper()
	d, err := l.Allow(context.Background(), key)
	if err != nil {
		t.Fatalf("Allow(%q): %v", key, err)
	}
	return d
}

// ---------------------------------------------------------------------------
// MemoryLimiter
// ---------------------------------------------------------------------------

func TestMemoryLimiter_AllowsUpToBurst(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 3)

	for i := 0; i < 3; i++ {
		d := allow(t, rl, "ip:1.2.3.4")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d remaining = %d, want %d", i+1, d.Remaining, 2-i)
		}
	}
	d := allow(t, rl, "ip:1.2.3.4")
	if d.Allowed {
		t.Error("request beyond burst should be denied")
	}
	if d.RetryAfter != time.Second {
		t.Errorf("RetryAfter = %v, want 1s at 60 rpm", d.RetryAfter)
	}
}

func TestMemoryLimiter_TokensRefillOverTime(t *testing.T) {
	rl, clock := newTestLimiter(t, 60, 1)

	allow(t, rl, "k")
	if allow(t, rl, "k").Allowed {
		t.Fatal("second request should be denied")
	}
	clock.Advance(time.Second)
	if !allow(t, rl, "k").Allowed {
		t.Error("request after refill should be allowed")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 1)
	allow(t, rl, "a")
	if !allow(t, rl, "b").Allowed {
		t.Error("a different key should have its own bucket")
	}
}

func TestMemoryLimiter_EvictsIdleClients(t *testing.T) {
	rl, clock := newTestLimiter(t, 60, 5)
	allow(t, rl, "idle")
	clock.Advance(11 * time.Minute)
	allow(t, rl, "active")

	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["idle"]; ok {
		t.Error("idle entry was not evicted")
	}
	if _, ok := rl.entries["active"]; !ok {
		t.Error("active entry was evicted")
	}
}

func TestMemoryLimiter_StopTwice(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 5)
	rl.Stop()
	rl.Stop()
}

// ---------------------------------------------------------------------------
// NewLimiter
// ---------------------------------------------------------------------------

func TestNewLimiter_Selection(t *testing.T) {
	mem, stop := NewLimiter(config.RateLimitingConfig{}, clockwork.NewFakeClock())
	defer stop()
	if _, ok := mem.(*MemoryLimiter); !ok {
		t.Errorf("NewLimiter without redis = %T, want *MemoryLimiter", mem)
	}
	if mem.Limit() != 200 {
		t.Errorf("default limit = %d, want 200", mem.Limit())
	}

	shared, stop2 := NewLimiter(config.RateLimitingConfig{RedisAddr: "127.0.0.1:1", RequestsPerMinute: 30}, nil)
	defer stop2()
	if _, ok := shared.(*RedisLimiter); !ok {
		t.Errorf("NewLimiter with redis = %T, want *RedisLimiter", shared)
	}
	if shared.Limit() != 30 {
		t.Errorf("limit = %d, want 30", shared.Limit())
	}
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

func newRateLimitRouter(limiter Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitMiddleware_Blocks(t *testing.T) {
	rl, _ := newTestLimiter(t, 30, 1)
	r := newRateLimitRouter(rl)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "30" {
		t.Errorf("X-RateLimit-Limit = %q, want 30", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2 at 30 rpm", got)
	}
}

func TestRateLimitMiddleware_FailsOpenWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })

	w := httptest.NewRecorder()
	newRateLimitRouter(NewRedisLimiter(rdb, 1, 1)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when the limiter is unavailable", w.Code)
	}
}

func TestGetRateLimitKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.1:1234"

	if got := getRateLimitKey(c); got != "ip:10.0.0.1" {
		t.Errorf("anonymous key = %q, want ip:10.0.0.1", got)
	}

	c.Set(IdentityKey, &auth.Identity{UserID: "student1"})
	if got := getRateLimitKey(c); got != "user:student1" {
		t.Errorf("authenticated key = %q, want user:student1", got)
	}
}
