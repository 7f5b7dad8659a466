package datafile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/fibercache/blobstore"
	"github.com/hupe1980/fibercache/fiber"
	"github.com/hupe1980/fibercache/internal/resource"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// Allocator provides the off-heap buffers chunks are decoded into.
	// Defaults to an allocator without a memory limit.
	Allocator *fiber.Allocator
	// Resources throttles chunk reads. Nil means unthrottled.
	Resources *resource.Controller
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store serves data files from a blob store. It is both the metadata
// loader and the fiber loader of a cache.
type Store struct {
	blobs  blobstore.BlobStore
	alloc  *fiber.Allocator
	rc     *resource.Controller
	logger *slog.Logger

	mu     sync.RWMutex
	source MetaLoader
}

// NewStore creates a Store reading from blobs.
func NewStore(blobs blobstore.BlobStore, cfg StoreConfig) *Store {
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = fiber.NewAllocator(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		blobs:  blobs,
		alloc:  alloc,
		rc:     cfg.Resources,
		logger: logger.With("component", "datafile"),
	}
}

// SetMetaSource makes Load resolve footers through src, usually a shared
// metadata cache, instead of reading the footer on every load. Load holds a
// reference on *Meta from src for the duration of the read, so src may
// Close it at any time.
func (s *Store) SetMetaSource(src MetaLoader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

// Allocator returns the allocator chunks are decoded into.
func (s *Store) Allocator() *fiber.Allocator {
	return s.alloc
}

// LoadMeta opens path and parses its footer. The returned *Meta holds the
// blob open until it is closed.
func (s *Store) LoadMeta(ctx context.Context, path string) (FileMeta, error) {
	return s.openMeta(ctx, path)
}

func (s *Store) openMeta(ctx context.Context, path string) (*Meta, error) {
	blob, err := s.blobs.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("datafile: open %s: %w", path, err)
	}
	f, err := readFooter(ctx, blob)
	if err != nil {
		_ = blob.Close()
		return nil, fmt.Errorf("datafile: %s: %w", path, err)
	}
	return newMeta(path, blob, f), nil
}

// meta returns the metadata for path and a function to call when done.
func (s *Store) meta(ctx context.Context, path string) (*Meta, func(), error) {
	s.mu.RLock()
	src := s.source
	s.mu.RUnlock()

	if src != nil {
		fm, err := src.LoadMeta(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		m, ok := fm.(*Meta)
		if ok && m.Acquire() {
			return m, m.Release, nil
		}
		if ok {
			s.logger.Debug("shared metadata closed concurrently, reading footer", "path", path)
		} else {
			s.logger.Debug("metadata source returned foreign metadata, reading footer", "path", path)
		}
	}

	m, err := s.openMeta(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return m, func() { _ = m.Close() }, nil
}

// location is where a fiber lives in a file.
type location struct {
	path     string
	rowGroup int
	column   int
	ok       bool
}

type locate struct{}

func (locate) Data(f fiber.DataFiber) location {
	return location{path: f.File, rowGroup: f.RowGroup, column: f.Column, ok: true}
}

func (locate) BTree(f fiber.BTreeFiber) location {
	return location{path: f.File, column: f.Node, ok: true}
}

func (locate) Bitmap(f fiber.BitmapFiber) location {
	return location{path: f.File, column: f.Node, ok: true}
}

func (locate) Test(fiber.TestFiber) location { return location{} }

// Load reads and decodes the chunk f refers to into an off-heap buffer.
// The buffer is returned unpinned.
func (s *Store) Load(ctx context.Context, f fiber.Fiber) (*fiber.Buffer, error) {
	loc := fiber.Visit[location](f, locate{})
	if !loc.ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFiber, f)
	}

	m, done, err := s.meta(ctx, loc.path)
	if err != nil {
		return nil, err
	}
	defer done()

	chunk, err := m.Chunk(loc.rowGroup, loc.column)
	if err != nil {
		return nil, err
	}

	buf, err := s.readChunk(ctx, m, chunk)
	if err != nil {
		return nil, fmt.Errorf("datafile: load %s: %w", f, err)
	}
	return buf, nil
}

func (s *Store) readChunk(ctx context.Context, m *Meta, c Chunk) (*fiber.Buffer, error) {
	if err := s.rc.AcquireIO(ctx, int(c.Length)); err != nil {
		return nil, err
	}

	buf, err := s.alloc.Allocate(int(c.RawLength))
	if err != nil {
		return nil, err
	}

	// Raw chunks are read straight into the off-heap region.
	src := buf.Bytes()
	if c.Codec != CodecNone {
		src = make([]byte, c.Length)
	}

	if err := readFull(ctx, m.blob, src, c.Offset); err != nil {
		buf.TryDispose(0)
		return nil, err
	}
	if c.Codec != CodecNone {
		if err := decodeChunk(buf.Bytes(), src, c.Codec); err != nil {
			buf.TryDispose(0)
			return nil, err
		}
	}
	return buf, nil
}

func readFull(ctx context.Context, blob blobstore.Blob, p []byte, off int64) error {
	if len(p) == 0 {
		return nil
	}
	n, err := blob.ReadAt(ctx, p, off)
	if n == len(p) {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("%w: short read of %d/%d bytes at %d", ErrCorrupt, n, len(p), off)
	}
	return err
}
