package datafile

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/fibercache/blobstore"
)

// FileMeta describes the dimensions of one data file.
type FileMeta interface {
	// RowGroupCount returns the number of row groups.
	RowGroupCount() int
	// FieldCount returns the number of columns per row group.
	FieldCount() int
	// Size returns the bytes this metadata occupies in memory.
	Size() int64
	io.Closer
}

// MetaLoader opens the metadata of a data file.
type MetaLoader interface {
	LoadMeta(ctx context.Context, path string) (FileMeta, error)
}

// MetaLoaderFunc adapts a function to the MetaLoader interface.
type MetaLoaderFunc func(ctx context.Context, path string) (FileMeta, error)

// LoadMeta calls fn(ctx, path).
func (fn MetaLoaderFunc) LoadMeta(ctx context.Context, path string) (FileMeta, error) {
	return fn(ctx, path)
}

// Meta is the parsed footer of a file together with its open blob.
//
// A Meta starts with one reference owned by whoever opened it; Close drops
// that reference. Readers take their own with Acquire and drop it with
// Release. The blob is closed when the last reference goes, so a reader
// never sees it unmapped under a read.
type Meta struct {
	path string
	blob blobstore.Blob
	*footer

	refs      atomic.Int64
	closeOnce sync.Once

	mu       sync.Mutex
	closeErr error
}

func newMeta(path string, blob blobstore.Blob, f *footer) *Meta {
	m := &Meta{path: path, blob: blob, footer: f}
	m.refs.Store(1)
	return m
}

func (m *Meta) Path() string { return m.path }

func (m *Meta) RowGroupCount() int { return m.rowGroups }

func (m *Meta) FieldCount() int { return m.fields }

// Size is the footer bytes plus the parsed entries.
func (m *Meta) Size() int64 {
	return int64(m.size) + int64(len(m.chunks))*chunkOverhead
}

// Chunk returns the entry for (rowGroup, column).
func (m *Meta) Chunk(rowGroup, column int) (Chunk, error) {
	if rowGroup < 0 || rowGroup >= m.rowGroups || column < 0 || column >= m.fields {
		return Chunk{}, fmt.Errorf("%w: (%d,%d) in %s with %dx%d", ErrOutOfRange, rowGroup, column, m.path, m.rowGroups, m.fields)
	}
	return m.chunks[rowGroup*m.fields+column], nil
}

// Acquire takes a reader reference. It returns false once the blob has been
// closed or is being closed; the caller must then not read through m.
func (m *Meta) Acquire() bool {
	for {
		n := m.refs.Load()
		if n <= 0 {
			return false
		}
		if m.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference taken with Acquire.
func (m *Meta) Release() {
	switch n := m.refs.Add(-1); {
	case n == 0:
		m.closeBlob()
	case n < 0:
		panic("datafile: release of unreferenced metadata")
	}
}

// Close drops the owner's reference. The blob is closed now if no reader
// holds m, otherwise when the last reader releases it; in that case Close
// returns nil and a close error is only visible to later Close calls.
// Close is idempotent.
func (m *Meta) Close() error {
	m.closeOnce.Do(m.Release)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeErr
}

func (m *Meta) closeBlob() {
	err := m.blob.Close()
	m.mu.Lock()
	m.closeErr = err
	m.mu.Unlock()
}
