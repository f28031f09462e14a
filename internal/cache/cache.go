// Package cache keeps prefix query results in Redis. Concurrent misses for
// the same prefix are collapsed with singleflight, and every index
// mutation drops all cached prefixes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/tracing"
)

const keyPrefix = "prefix:"

// Store is the key-value backend; *pkgredis.Client satisfies it. Get must
// return an error recognised by pkgredis.IsNilError for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type entry struct {
	Name  string   `json:"name"`
	Pages []uint32 `json:"pages"`
}

type PrefixCache struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64

	// gen counts invalidations. A computed result is only stored if no
	// invalidation happened since compute started; genMu orders that
	// check against Invalidate.
	genMu sync.RWMutex
	gen   atomic.Uint64
}

// New creates a PrefixCache. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *PrefixCache {
	return &PrefixCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "prefix-cache"),
	}
}

// Get returns the cached result for prefix. Backend and decode errors are
// logged and reported as a miss.
func (c *PrefixCache) Get(ctx context.Context, prefix string) ([]*term.Term, bool) {
	key := buildKey(prefix)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var entries []entry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "prefix", prefix, "key", key)
	out := make([]*term.Term, len(entries))
	for i, e := range entries {
		out[i] = term.New(e.Name, e.Pages...)
	}
	return out, true
}

func (c *PrefixCache) Set(ctx context.Context, prefix string, terms []*term.Term) {
	key := buildKey(prefix)
	entries := make([]entry, len(terms))
	for i, t := range terms {
		entries[i] = entry{Name: t.Name(), Pages: t.Pages()}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for prefix or computes, stores
// and returns it. hit reports whether the value came from the cache.
func (c *PrefixCache) GetOrCompute(
	ctx context.Context,
	prefix string,
	compute func() ([]*term.Term, error),
) (terms []*term.Term, hit bool, err error) {
	ctx, span := tracing.StartChild(ctx, "prefix_cache")
	defer func() {
		span.SetAttr("hit", hit)
		span.End()
	}()

	if cached, ok := c.Get(ctx, prefix); ok {
		return cached, true, nil
	}
	key := buildKey(prefix)
	gen := c.gen.Load()
	val, err, _ := c.group.Do(key+"@"+strconv.FormatUint(gen, 10), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.setIfCurrent(ctx, prefix, result, gen)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]*term.Term), false, nil
}

// setIfCurrent stores terms unless the cache was invalidated after gen
// was read.
func (c *PrefixCache) setIfCurrent(ctx context.Context, prefix string, terms []*term.Term, gen uint64) {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	if c.gen.Load() != gen {
		c.logger.Debug("discarding result computed before invalidation", "prefix", prefix)
		return
	}
	c.Set(ctx, prefix, terms)
}

// Invalidate deletes every cached prefix result. Results still being
// computed when it is called are not stored.
func (c *PrefixCache) Invalidate(ctx context.Context) error {
	c.genMu.Lock()
	c.gen.Add(1)
	c.genMu.Unlock()

	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating prefix cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *PrefixCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *PrefixCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *PrefixCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(prefix string) string {
	hash := sha256.Sum256([]byte(term.Normalize(prefix)))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
