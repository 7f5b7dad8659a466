package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/hupe1980/fibercache/fiber"
	"github.com/hupe1980/fibercache/internal/guardian"
)

// ErrClosed is returned by a backend after Close.
var ErrClosed = errors.New("backend: closed")

// LRUConfig configures an LRU backend.
type LRUConfig struct {
	// Capacity is the resident byte budget.
	Capacity int64
	// Loader produces buffers on a miss.
	Loader fiber.Loader
	// Guardian receives evicted and invalidated buffers.
	Guardian *guardian.Guardian
}

// LRU is a byte-bounded least-recently-used backend.
//
// Resident bytes never exceed the capacity: an entry larger than the whole
// budget is evicted as soon as it is inserted and freed after its readers
// release it.
type LRU struct {
	loader   fiber.Loader
	guardian *guardian.Guardian
	capacity int64

	mu     sync.Mutex
	index  *simplelru.LRU[fiber.Fiber, *fiber.Buffer]
	calls  map[fiber.Fiber]*call
	size   int64
	closed bool

	hits          atomic.Int64
	misses        atomic.Int64
	loads         atomic.Int64
	loadFailures  atomic.Int64
	evictions     atomic.Int64
	invalidations atomic.Int64
	loadNanos     atomic.Int64
}

// call is an in-flight load shared by every caller that missed on the same
// fiber while it ran.
type call struct {
	done chan struct{}
	buf  *fiber.Buffer
	err  error

	// waiters is the number of callers the result is pinned for. Guarded by
	// LRU.mu; it is final once the call leaves LRU.calls.
	waiters int
}

// NewLRU creates an LRU backend.
func NewLRU(cfg LRUConfig) (*LRU, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("backend: capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Loader == nil {
		return nil, errors.New("backend: loader is required")
	}
	if cfg.Guardian == nil {
		return nil, errors.New("backend: guardian is required")
	}

	c := &LRU{
		loader:   cfg.Loader,
		guardian: cfg.Guardian,
		capacity: cfg.Capacity,
		calls:    make(map[fiber.Fiber]*call),
	}

	// Entry count is unbounded; the byte budget is enforced by evictLocked.
	index, err := simplelru.NewLRU[fiber.Fiber, *fiber.Buffer](math.MaxInt, c.onRemove)
	if err != nil {
		return nil, err
	}
	c.index = index
	return c, nil
}

// onRemove runs with c.mu held for every entry leaving the index.
func (c *LRU) onRemove(f fiber.Fiber, buf *fiber.Buffer) {
	c.size -= buf.Size()
	c.guardian.Offer(f, buf)
}

// Get returns the buffer for f pinned for the caller.
//
// Concurrent misses on f share one load. The load pins its result once for
// every caller waiting on it before the buffer becomes evictable, so the
// loader runs exactly once per miss even under eviction pressure. The shared
// load runs with the context of the caller that started it.
func (c *LRU) Get(ctx context.Context, f fiber.Fiber) (*fiber.Buffer, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if buf := c.pinLocked(f); buf != nil {
		c.mu.Unlock()
		c.hits.Add(1)
		return buf, nil
	}
	c.misses.Add(1)

	if cl, ok := c.calls[f]; ok {
		cl.waiters++
		c.mu.Unlock()
		return c.wait(ctx, f, cl)
	}

	cl := &call{done: make(chan struct{}), waiters: 1}
	c.calls[f] = cl
	c.mu.Unlock()

	c.load(ctx, f, cl)
	return cl.buf, cl.err
}

// wait blocks until cl completes or ctx ends. A caller that gives up after
// cl has counted it releases the pin taken on its behalf.
func (c *LRU) wait(ctx context.Context, f fiber.Fiber, cl *call) (*fiber.Buffer, error) {
	select {
	case <-cl.done:
		return cl.buf, cl.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	if c.calls[f] == cl {
		cl.waiters--
		c.mu.Unlock()
		return nil, ctx.Err()
	}
	c.mu.Unlock()

	<-cl.done
	if cl.err == nil {
		cl.buf.Release()
	}
	return nil, ctx.Err()
}

func (c *LRU) GetIfPresent(f fiber.Fiber) *fiber.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	buf := c.pinLocked(f)
	if buf != nil {
		c.hits.Add(1)
	}
	return buf
}

// pinLocked returns the resident buffer for f pinned, or nil.
func (c *LRU) pinLocked(f fiber.Fiber) *fiber.Buffer {
	buf, ok := c.index.Get(f)
	if !ok {
		return nil
	}
	// Resident buffers are never disposing, so the pin can not fail.
	if !buf.Pin() {
		return nil
	}
	return buf
}

// load runs the loader for cl and publishes the result pinned for every
// waiter counted at completion.
func (c *LRU) load(ctx context.Context, f fiber.Fiber, cl *call) {
	defer close(cl.done)

	start := time.Now()
	buf, err := c.loader.Load(ctx, f)
	c.loadNanos.Add(int64(time.Since(start)))
	if err == nil && buf == nil {
		err = fmt.Errorf("backend: loader returned no buffer for %s", f)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calls, f)

	if err != nil {
		c.loadFailures.Add(1)
		cl.err = err
		return
	}
	c.loads.Add(1)

	if c.closed {
		c.guardian.Offer(f, buf)
		cl.err = ErrClosed
		return
	}

	for range cl.waiters {
		if !buf.Pin() {
			c.loadFailures.Add(1)
			cl.err = fmt.Errorf("backend: loader returned a disposed buffer for %s", f)
			return
		}
	}
	cl.buf = buf

	c.index.Add(f, buf)
	c.size += buf.Size()
	c.evictLocked()
}

func (c *LRU) evictLocked() {
	for c.size > c.capacity && c.index.Len() > 0 {
		if _, _, ok := c.index.RemoveOldest(); !ok {
			return
		}
		c.evictions.Add(1)
	}
}

func (c *LRU) Invalidate(f fiber.Fiber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index.Remove(f) {
		c.invalidations.Add(1)
	}
}

func (c *LRU) InvalidateAll(fs []fiber.Fiber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range fs {
		if c.index.Remove(f) {
			c.invalidations.Add(1)
		}
	}
}

func (c *LRU) Keys() []fiber.Fiber {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Keys()
}

func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRU) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}

func (c *LRU) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Loads:         c.loads.Load(),
		LoadFailures:  c.loadFailures.Load(),
		Evictions:     c.evictions.Load(),
		Invalidations: c.invalidations.Load(),
		TotalLoadTime: time.Duration(c.loadNanos.Load()),
	}
}

func (c *LRU) PendingCount() int {
	return c.guardian.PendingCount()
}

func (c *LRU) PendingSize() int64 {
	return c.guardian.PendingSize()
}

func (c *LRU) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.index.Purge()
	c.mu.Unlock()

	return c.guardian.Close(ctx)
}
