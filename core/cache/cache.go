// Package cache provides a short-TTL in-process read cache in front of the
// storage engine.
//
// The cache bounds disk I/O for bursty command sequences within one
// process. It gives no cross-process freshness guarantee: a reader may
// observe data up to TTL seconds stale relative to a write completed by
// another process. Correctness-sensitive logic must go through Mutate,
// never through a cached envelope.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/adalundhe/recall/core/store"
)

// DefaultTTL bounds staleness of process-local reads.
const DefaultTTL = 10 * time.Second

const (
	// The cache holds a single envelope per store path; counters and cost
	// budget are sized accordingly.
	numCounters = 64
	maxCost     = 8
	bufferItems = 64
)

// CachedStore wraps a storage engine's Read with a TTL cache. Mutate
// passes through and invalidates the process-local entry immediately.
type CachedStore struct {
	st    *store.Store
	cache *ristretto.Cache
	ttl   time.Duration
	key   string

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness for this process.
type Stats struct {
	Hits   int64
	Misses int64
}

// New wraps st with a TTL read cache. A non-positive ttl selects
// DefaultTTL.
func New(st *store.Store, ttl time.Duration) (*CachedStore, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &CachedStore{
		st:    st,
		cache: c,
		ttl:   ttl,
		key:   st.Path(),
	}, nil
}

// Read returns the cached envelope when fresh, otherwise reads through the
// engine and caches the result. Returned envelopes are shared; callers
// must treat them as read-only.
func (c *CachedStore) Read(ctx context.Context) (*store.Envelope, error) {
	if v, ok := c.cache.Get(c.key); ok {
		if env, ok := v.(*store.Envelope); ok {
			c.hits.Add(1)
			return env, nil
		}
	}

	c.misses.Add(1)
	env, err := c.st.Read(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.SetWithTTL(c.key, env, 1, c.ttl)
	c.cache.Wait()
	return env, nil
}

// Mutate forwards to the engine and replaces the cached entry with the
// committed result.
func (c *CachedStore) Mutate(ctx context.Context, fn func(*store.Envelope) error) (*store.Envelope, error) {
	c.Invalidate()

	env, err := c.st.Mutate(ctx, fn)
	if err != nil {
		return nil, err
	}

	c.cache.SetWithTTL(c.key, env, 1, c.ttl)
	c.cache.Wait()
	return env, nil
}

// Invalidate drops the process-local entry immediately.
func (c *CachedStore) Invalidate() {
	c.cache.Del(c.key)
	c.cache.Wait()
}

// Store returns the underlying storage engine.
func (c *CachedStore) Store() *store.Store {
	return c.st
}

// Stats returns hit/miss counts for this process.
func (c *CachedStore) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the cache's internal resources.
func (c *CachedStore) Close() {
	c.cache.Close()
}
