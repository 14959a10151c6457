package mirror

import (
	"sync"
	"time"
)

// ProbeTTL is how long health and speed probe results stay valid.
const ProbeTTL = 5 * time.Minute

// ProbeCache holds health and speed probe results keyed by mirror name,
// each with TTL eviction on read. It is the only shared mutable state in
// the selector; entries are read and overwritten atomically per key and
// staleness within the TTL is tolerated by design.
type ProbeCache struct {
	mu     sync.RWMutex
	health map[string]HealthResult
	speed  map[string]SpeedResult
	ttl    time.Duration
	now    func() time.Time
}

// NewProbeCache creates a cache with the given TTL. A non-positive TTL
// falls back to ProbeTTL.
func NewProbeCache(ttl time.Duration) *ProbeCache {
	if ttl <= 0 {
		ttl = ProbeTTL
	}
	return &ProbeCache{
		health: make(map[string]HealthResult),
		speed:  make(map[string]SpeedResult),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Health returns the cached health result for a mirror if it has not expired.
func (c *ProbeCache) Health(name string) (HealthResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.health[name]
	if !ok || c.now().Sub(r.CheckedAt) > c.ttl {
		return HealthResult{}, false
	}
	return r, true
}

// SetHealth stores a health result.
func (c *ProbeCache) SetHealth(r HealthResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health[r.Mirror] = r
}

// Speed returns the cached speed result for a mirror if it has not expired.
func (c *ProbeCache) Speed(name string) (SpeedResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.speed[name]
	if !ok || c.now().Sub(r.CheckedAt) > c.ttl {
		return SpeedResult{}, false
	}
	return r, true
}

// SetSpeed stores a speed result.
func (c *ProbeCache) SetSpeed(r SpeedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed[r.Mirror] = r
}
