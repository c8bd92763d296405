// Package flight memoizes keyed lookups. Concurrent callers for the same key
// share one call, and finished values stay strongly held for a window before
// falling back to a weak reference the GC may reclaim.
package flight

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"weak"
)

const minSweep = 64

type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

type Cache[K comparable, V any] struct {
	load Loader[K, V]

	mu       sync.Mutex
	finished map[K]*entry[V]
	pending  map[K]*call[V]
	// sweepAt is the size of finished that triggers pruning of dead entries.
	sweepAt  int

	// hold is the strong-hold window in nanoseconds, <= 0 for forever.
	hold atomic.Int64

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[V any] struct {
	weak     weak.Pointer[V]
	strong   *V
	deadline time.Time
}

type call[V any] struct {
	val  V
	err  error
	done chan struct{}
}

func New[K comparable, V any](load Loader[K, V], hold time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		load:     load,
		finished: make(map[K]*entry[V]),
		pending:  make(map[K]*call[V]),
		sweepAt:  minSweep,
	}
	c.Expiry(hold)
	return c
}

// Expiry sets the strong-hold window for future writes.
func (c *Cache[K, V]) Expiry(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.hold.Store(int64(d))
}

// Get returns the cached value for key or loads it. A caller joining another
// caller's load stops waiting when its own ctx ends.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	if v, ok := c.lookup(key); ok {
		c.mu.Unlock()
		c.hits.Add(1)
		return v, nil
	}
	if p, ok := c.pending[key]; ok {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.val, p.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	p := &call[V]{done: make(chan struct{})}
	c.pending[key] = p
	c.mu.Unlock()

	c.misses.Add(1)
	p.val, p.err = c.load(ctx, key)

	c.mu.Lock()
	if p.err == nil {
		c.store(key, p.val)
	}
	delete(c.pending, key)
	close(p.done)
	c.mu.Unlock()

	return p.val, p.err
}

// Put stores a value without loading.
func (c *Cache[K, V]) Put(key K, val V) {
	c.mu.Lock()
	c.store(key, val)
	c.mu.Unlock()
}

func (c *Cache[K, V]) Forget(key K) {
	c.mu.Lock()
	delete(c.finished, key)
	c.mu.Unlock()
}

// Stats reports cache hits and loads.
func (c *Cache[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// lookup must be called with mu held.
func (c *Cache[K, V]) lookup(key K) (V, bool) {
	var zero V
	e, ok := c.finished[key]
	if !ok {
		return zero, false
	}
	if e.strong != nil && !e.deadline.IsZero() && time.Now().After(e.deadline) {
		e.strong = nil
	}
	if vp := e.weak.Value(); vp != nil {
		return *vp, true
	}
	delete(c.finished, key)
	return zero, false
}

// store must be called with mu held.
func (c *Cache[K, V]) store(key K, val V) {
	if len(c.finished) >= c.sweepAt {
		c.sweep()
	}
	v := new(V)
	*v = val
	e := &entry[V]{weak: weak.Make(v), strong: v}
	if d := time.Duration(c.hold.Load()); d > 0 {
		e.deadline = time.Now().Add(d)
		time.AfterFunc(d, func() {
			c.mu.Lock()
			e.strong = nil
			c.mu.Unlock()
		})
	}
	c.finished[key] = e
}

// sweep drops entries the GC has already reclaimed. Must be called with mu
// held.
func (c *Cache[K, V]) sweep() {
	for k, e := range c.finished {
		if e.strong == nil && e.weak.Value() == nil {
			delete(c.finished, k)
		}
	}
	c.sweepAt = max(minSweep, 2*len(c.finished))
}
