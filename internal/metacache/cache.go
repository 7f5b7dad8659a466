package metacache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/fibercache/datafile"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the idle time after which an entry expires.
const DefaultTTL = 6 * time.Hour

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("metacache: closed")

// Config configures a Cache.
type Config struct {
	// TTL is the idle expiry. Defaults to DefaultTTL.
	TTL time.Duration
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	meta       datafile.FileMeta
	lastAccess time.Time
}

// Cache is a read-through cache of file metadata keyed by path.
//
// Entries expire after TTL without access; every Get refreshes the deadline.
// Evicted metadata is closed. Load failures are not cached.
type Cache struct {
	loader datafile.MetaLoader
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	size  atomic.Int64
	group singleflight.Group

	startOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New creates a Cache loading through loader.
func New(loader datafile.MetaLoader, cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		loader:  loader,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		logger:  logger.With("component", "metacache"),
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
}

// Get returns the metadata for path, loading it on a miss. Concurrent misses
// for the same path share one load.
func (c *Cache) Get(ctx context.Context, path string) (datafile.FileMeta, error) {
	if m, err := c.lookup(path); m != nil || err != nil {
		return m, err
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		if m, err := c.lookup(path); m != nil || err != nil {
			return m, err
		}

		m, err := c.loader.LoadMeta(ctx, path)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			c.closeMeta(path, m)
			return nil, ErrClosed
		}
		c.entries[path] = &entry{meta: m, lastAccess: c.now()}
		c.size.Add(m.Size())
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(datafile.FileMeta), nil
}

// LoadMeta makes the cache usable wherever a MetaLoader is expected.
func (c *Cache) LoadMeta(ctx context.Context, path string) (datafile.FileMeta, error) {
	return c.Get(ctx, path)
}

// lookup returns a live entry and refreshes its deadline. An expired entry
// is evicted on the spot.
func (c *Cache) lookup(path string) (datafile.FileMeta, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e, ok := c.entries[path]
	if !ok {
		c.mu.Unlock()
		return nil, nil
	}
	now := c.now()
	if now.Sub(e.lastAccess) < c.ttl {
		e.lastAccess = now
		c.mu.Unlock()
		return e.meta, nil
	}
	c.removeLocked(path, e)
	c.mu.Unlock()

	c.closeMeta(path, e.meta)
	return nil, nil
}

func (c *Cache) removeLocked(path string, e *entry) {
	delete(c.entries, path)
	c.size.Add(-e.meta.Size())
}

func (c *Cache) closeMeta(path string, m datafile.FileMeta) {
	if err := m.Close(); err != nil {
		c.logger.Warn("close metadata", "path", path, "error", err)
	}
}

// Cleanup evicts every entry idle for at least TTL and returns how many.
func (c *Cache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	var expired []*entry
	var paths []string
	for path, e := range c.entries {
		if now.Sub(e.lastAccess) >= c.ttl {
			c.removeLocked(path, e)
			expired = append(expired, e)
			paths = append(paths, path)
		}
	}
	c.mu.Unlock()

	for i, e := range expired {
		c.logger.Debug("metadata expired", "path", paths[i])
		c.closeMeta(paths[i], e.meta)
	}
	return len(expired)
}

// Invalidate evicts path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	e, ok := c.entries[path]
	if ok {
		c.removeLocked(path, e)
	}
	c.mu.Unlock()

	if ok {
		c.closeMeta(path, e.meta)
	}
}

// Clear evicts every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]*entry)
	for _, e := range old {
		c.size.Add(-e.meta.Size())
	}
	c.mu.Unlock()

	for path, e := range old {
		c.closeMeta(path, e.meta)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size returns the summed Size of all cached metadata.
func (c *Cache) Size() int64 {
	return c.size.Load()
}

// Start launches the janitor, which runs Cleanup every TTL/2.
func (c *Cache) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.janitor()
	})
}

func (c *Cache) janitor() {
	defer c.wg.Done()

	ticker := time.NewTicker(max(c.ttl/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Cleanup(); n > 0 {
				c.logger.Debug("metadata cleanup", "evicted", n)
			}
		case <-c.stop:
			return
		}
	}
}

// Close stops the janitor and clears the cache. Get fails afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()
	c.Clear()
	return nil
}
