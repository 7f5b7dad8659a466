package fibercache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/fibercache/datafile"
	"github.com/hupe1980/fibercache/fiber"
	"github.com/hupe1980/fibercache/internal/backend"
	"github.com/hupe1980/fibercache/internal/guardian"
	"github.com/hupe1980/fibercache/internal/metacache"
	"github.com/hupe1980/fibercache/internal/resource"
	"github.com/hupe1980/fibercache/status"
)

// Manager is the fiber cache: a memory-bounded map from fiber to pinned
// off-heap buffer, the disposal worker that frees evicted buffers once their
// readers are done, a per-fiber lock registry and a metadata cache.
//
// All methods are safe for concurrent use.
type Manager struct {
	opts     options
	logger   *Logger
	metrics  MetricsCollector
	rc       *resource.Controller
	backend  backend.Backend
	guardian *guardian.Guardian
	meta     *metacache.Cache
	locks    *fiber.LockManager

	disposedBytes atomic.Int64

	stopped  atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// metaSourceSetter is implemented by loaders that can resolve file
// metadata through the manager's cache, such as *datafile.Store.
type metaSourceSetter interface {
	SetMetaSource(src datafile.MetaLoader)
}

// New creates a Manager that decodes fibers with loader and resolves file
// dimensions with metaLoader.
//
// If loader implements SetMetaSource(datafile.MetaLoader), it is pointed at
// the manager's metadata cache.
func New(loader fiber.Loader, metaLoader datafile.MetaLoader, optFns ...Option) (*Manager, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: loader is required", ErrInvalidConfig)
	}
	if metaLoader == nil {
		return nil, fmt.Errorf("%w: metadata loader is required", ErrInvalidConfig)
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rc := opts.resources
	if rc == nil {
		rc = resource.NewController(resource.Config{})
	}

	m := &Manager{
		opts:    opts,
		logger:  opts.logger.WithStrategy(opts.strategy),
		metrics: opts.metricsCollector,
		rc:      rc,
		locks:   fiber.NewLockManager(),
	}

	reserve := int64(float64(opts.maxMemory) * opts.reserveRatio)
	m.guardian = guardian.New(guardian.Config{
		DisposeTimeout:        opts.disposeTimeout,
		BackpressureThreshold: reserve,
		Logger:                m.logger.Logger,
		OnDispose: func(_ fiber.Fiber, size int64) {
			m.disposedBytes.Add(size)
			m.metrics.RecordDisposal(size)
		},
	})

	switch opts.strategy {
	case StrategyLRU:
		lru, err := backend.NewLRU(backend.LRUConfig{
			Capacity: max(opts.maxMemory-reserve, 1),
			Loader:   loader,
			Guardian: m.guardian,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		m.backend = lru
	case StrategySimple:
		simple, err := backend.NewSimple(loader, m.guardian)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		m.backend = simple
	}

	m.meta = metacache.New(metaLoader, metacache.Config{
		TTL:    opts.metaTTL,
		Logger: m.logger.Logger,
	})

	m.guardian.Start()
	m.meta.Start()

	if s, ok := loader.(metaSourceSetter); ok {
		s.SetMetaSource(m.meta)
	}

	return m, nil
}

// Strategy returns the backend strategy name.
func (m *Manager) Strategy() string {
	return m.opts.strategy
}

// Get returns the buffer for f pinned on behalf of the caller, loading it on
// a miss. The caller must Release it. Loader errors are returned unchanged.
func (m *Manager) Get(ctx context.Context, f fiber.Fiber) (*fiber.Buffer, error) {
	start := time.Now()

	buf, err := m.get(ctx, f)

	elapsed := time.Since(start)
	m.metrics.RecordGet(elapsed, err)
	m.logger.LogLoad(ctx, f, elapsed, err)
	return buf, err
}

func (m *Manager) get(ctx context.Context, f fiber.Fiber) (*fiber.Buffer, error) {
	if m.stopped.Load() {
		return nil, ErrClosed
	}
	buf, err := m.backend.Get(ctx, f)
	if errors.Is(err, backend.ErrClosed) {
		return nil, ErrClosed
	}
	return buf, err
}

// GetIfPresent returns the resident buffer for f pinned, or nil. It never
// loads.
func (m *Manager) GetIfPresent(f fiber.Fiber) *fiber.Buffer {
	if m.stopped.Load() {
		return nil
	}
	return m.backend.GetIfPresent(f)
}

// Invalidate drops f. Readers holding it keep a valid buffer; the memory is
// freed after the last Release.
func (m *Manager) Invalidate(f fiber.Fiber) {
	m.backend.Invalidate(f)
	m.metrics.RecordInvalidate(1)
	m.logger.LogInvalidate(context.Background(), "invalidate", 1)
}

// InvalidateAll drops every fiber in fs.
func (m *Manager) InvalidateAll(fs []fiber.Fiber) {
	if len(fs) == 0 {
		return
	}
	m.backend.InvalidateAll(fs)
	m.metrics.RecordInvalidate(len(fs))
	m.logger.LogInvalidate(context.Background(), "invalidate_all", len(fs))
}

// ReleaseIndexCache drops every resident BTree and Bitmap fiber whose file
// path contains name and returns how many were dropped.
func (m *Manager) ReleaseIndexCache(name string) int {
	match := fiber.IndexFileMatcher(name)

	var victims []fiber.Fiber
	for _, f := range m.backend.Keys() {
		if match(f) {
			victims = append(victims, f)
		}
	}
	if len(victims) == 0 {
		return 0
	}

	m.backend.InvalidateAll(victims)
	m.metrics.RecordInvalidate(len(victims))
	m.logger.LogInvalidate(context.Background(), "release_index", len(victims))
	return len(victims)
}

// Locks returns the manager's per-fiber lock registry.
func (m *Manager) Locks() *fiber.LockManager {
	return m.locks
}

// Meta returns the cached metadata of the file at path.
func (m *Manager) Meta(ctx context.Context, path string) (datafile.FileMeta, error) {
	if m.stopped.Load() {
		return nil, ErrClosed
	}
	return m.meta.Get(ctx, path)
}

// cellVisitor extracts the data cell of a fiber; index and test fibers have none.
type cellVisitor struct{}

type dataCell struct {
	path string
	cell status.Cell
	ok   bool
}

func (cellVisitor) Data(f fiber.DataFiber) dataCell {
	return dataCell{path: f.File, cell: status.Cell{RowGroup: f.RowGroup, Column: f.Column}, ok: true}
}
func (cellVisitor) BTree(fiber.BTreeFiber) dataCell   { return dataCell{} }
func (cellVisitor) Bitmap(fiber.BitmapFiber) dataCell { return dataCell{} }
func (cellVisitor) Test(fiber.TestFiber) dataCell     { return dataCell{} }

// FileStatuses returns the occupancy of every file with resident data
// fibers, sorted by path. A file whose metadata can not be loaded, or that
// has a resident cell outside its dimensions, is skipped with a warning.
func (m *Manager) FileStatuses(ctx context.Context) ([]*status.FileStatus, error) {
	if m.stopped.Load() {
		return nil, ErrClosed
	}

	cells := make(map[string][]status.Cell)
	for _, f := range m.backend.Keys() {
		if c := fiber.Visit[dataCell](f, cellVisitor{}); c.ok {
			cells[c.path] = append(cells[c.path], c.cell)
		}
	}

	paths := make([]string, 0, len(cells))
	for p := range cells {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]*status.FileStatus, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, err := m.meta.Get(ctx, path)
		if err != nil {
			m.logger.LogStatusSkip(ctx, path, err)
			continue
		}
		s, err := status.Build(path, meta.RowGroupCount(), meta.FieldCount(), cells[path])
		if err != nil {
			m.logger.LogStatusSkip(ctx, path, err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Status returns the encoded occupancy report. See package status.
func (m *Manager) Status(ctx context.Context) ([]byte, error) {
	statuses, err := m.FileStatuses(ctx)
	if err != nil {
		return nil, err
	}
	return status.Encode(statuses)
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	bs := m.backend.Stats()
	return Stats{
		Strategy:       m.opts.strategy,
		ResidentBytes:  m.backend.Size(),
		ResidentCount:  m.backend.Count(),
		Hits:           bs.Hits,
		Misses:         bs.Misses,
		Loads:          bs.Loads,
		LoadFailures:   bs.LoadFailures,
		TotalLoadTime:  bs.TotalLoadTime,
		Evictions:      bs.Evictions,
		Invalidations:  bs.Invalidations,
		PendingCount:   m.backend.PendingCount(),
		PendingBytes:   m.backend.PendingSize(),
		Disposals:      m.guardian.Disposed(),
		DisposeRetries: m.guardian.Retries(),
		DisposedBytes:  m.disposedBytes.Load(),
		OffHeapBytes:   m.rc.MemoryUsage(),
		OffHeapPeak:    m.rc.MemoryPeak(),
		OffHeapLimit:   m.rc.MemoryLimit(),
		IOBytes:        m.rc.IOBytes(),
		MetaEntries:    m.meta.Len(),
		MetaBytes:      m.meta.Size(),
		LockEntries:    m.locks.Len(),
		MaxMemoryBytes: m.opts.maxMemory,
	}
}

// String returns a human-readable summary of Stats.
func (m *Manager) String() string {
	return m.Stats().String()
}
