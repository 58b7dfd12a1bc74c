package sessionusers

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FullCache remembers when the session users class was last found to be full
// for each origin bucket, so repeated sign-ups during a rush can be turned
// away without counting users each time. It is advisory and per process: a
// restart starts with an empty cache.
type FullCache struct {
	clock  clockwork.Clock
	window time.Duration

	mu       sync.Mutex
	lastFull map[string]time.Time
}

// NewFullCache creates a cache that trusts a "full" result for window
func NewFullCache(clock clockwork.Clock, window time.Duration) *FullCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FullCache{clock: clock, window: window, lastFull: make(map[string]time.Time)}
}

// IsFull reports whether the bucket was found full within the window
func (c *FullCache) IsFull(bucket string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastFull[bucket]
	if !ok {
		return false
	}
	return c.clock.Now().Before(last.Add(c.window))
}

// MarkFull records that the bucket is full now
func (c *FullCache) MarkFull(bucket string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFull[bucket] = c.clock.Now()
}

// Reset forgets every bucket
func (c *FullCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.lastFull)
}
