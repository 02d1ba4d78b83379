// Package decision caches per-name block/allow classifications so the
// blocklist is probed at most once per name while the entry stays cached.
package decision

import (
	"context"
	"fmt"

	"advoid/pkg/telemetry"

	"github.com/dgraph-io/ristretto/v2"
)

// Verdict is the outcome of classifying a name.
type Verdict uint8

const (
	Allow Verdict = iota
	Block
)

func (v Verdict) String() string {
	if v == Block {
		return "block"
	}
	return "allow"
}

// Matcher is the blocklist probe the cache falls back to on a miss.
type Matcher interface {
	Match(name string) bool
}

// Cache records prior classifications. A name maps to exactly one verdict,
// so the block and allow partitions are disjoint by construction. Capacity
// is enforced by the underlying admission cache; entries for names that
// stopped being queried fall out under pressure.
type Cache struct {
	entries *ristretto.Cache[string, bool]
	metrics *telemetry.Metrics
}

// New creates a decision cache bounded to capacity entries.
func New(capacity int64, metrics *telemetry.Metrics) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if metrics == nil {
		metrics = telemetry.NoopMetrics()
	}

	entries, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	return &Cache{entries: entries, metrics: metrics}, nil
}

// Classify returns the cached verdict for name, probing the matcher and
// recording the result on a miss. name must be canonical.
func (c *Cache) Classify(ctx context.Context, name string, m Matcher) Verdict {
	if blocked, ok := c.entries.Get(name); ok {
		c.metrics.CacheHits.Add(ctx, 1)
		return verdict(blocked)
	}

	c.metrics.CacheMisses.Add(ctx, 1)
	blocked := m.Match(name)
	c.entries.Set(name, blocked, 1)
	return verdict(blocked)
}

func verdict(blocked bool) Verdict {
	if blocked {
		return Block
	}
	return Allow
}

// Wait blocks until buffered writes have been applied. Tests use it to make
// cache visibility deterministic.
func (c *Cache) Wait() {
	c.entries.Wait()
}

// Close releases the cache.
func (c *Cache) Close() {
	c.entries.Close()
}
