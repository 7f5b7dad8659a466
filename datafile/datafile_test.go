package datafile

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/fibercache/blobstore"
	"github.com/hupe1980/fibercache/fiber"
	"github.com/hupe1980/fibercache/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellBytes(rowGroup, column, n int) []byte {
	return bytes.Repeat([]byte(fmt.Sprintf("rg%d-col%d;", rowGroup, column)), n)
}

func writeFile(t *testing.T, store blobstore.WritableStore, name string, rowGroups, fields int, codec Codec) {
	t.Helper()
	w, err := NewWriter(rowGroups, fields, codec)
	require.NoError(t, err)
	for rg := range rowGroups {
		for col := range fields {
			require.NoError(t, w.SetChunk(rg, col, cellBytes(rg, col, 50+rg*fields+col)))
		}
	}
	require.NoError(t, w.Put(context.Background(), store, name))
}

func TestRoundTrip_Codecs(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			blobs := blobstore.NewMemoryStore()
			writeFile(t, blobs, "/t/a.fcdf", 3, 4, codec)

			store := NewStore(blobs, StoreConfig{})
			ctx := context.Background()

			fm, err := store.LoadMeta(ctx, "/t/a.fcdf")
			require.NoError(t, err)
			assert.Equal(t, 3, fm.RowGroupCount())
			assert.Equal(t, 4, fm.FieldCount())
			assert.Positive(t, fm.Size())
			require.NoError(t, fm.Close())
			require.NoError(t, fm.Close())

			for rg := range 3 {
				for col := range 4 {
					buf, err := store.Load(ctx, fiber.DataFiber{File: "/t/a.fcdf", RowGroup: rg, Column: col})
					require.NoError(t, err)
					assert.Equal(t, cellBytes(rg, col, 50+rg*4+col), buf.Bytes())
					assert.Equal(t, 0, buf.Refs())
					require.True(t, buf.TryDispose(0))
				}
			}
			assert.Equal(t, int64(0), store.Allocator().Live())
		})
	}
}

func TestEncode_CompressesRepetitiveChunks(t *testing.T) {
	w, err := NewWriter(1, 1, CodecZstd)
	require.NoError(t, err)
	raw := bytes.Repeat([]byte("a"), 4096)
	require.NoError(t, w.SetChunk(0, 0, raw))

	data, err := w.Encode(context.Background())
	require.NoError(t, err)
	assert.Less(t, len(data), len(raw))
}

func TestEncode_IncompressibleStoredRaw(t *testing.T) {
	out, c, err := encodeChunk([]byte("xyz"), CodecLZ4)
	require.NoError(t, err)
	assert.Equal(t, CodecNone, c)
	assert.Equal(t, []byte("xyz"), out)
}

func TestIndexFibers(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	w, err := NewIndexWriter(3, CodecLZ4)
	require.NoError(t, err)
	for node := range 3 {
		require.NoError(t, w.SetNode(node, cellBytes(0, node, 20)))
	}
	require.NoError(t, w.Put(context.Background(), blobs, "/t/idx1.index"))

	store := NewStore(blobs, StoreConfig{})
	ctx := context.Background()

	buf, err := store.Load(ctx, fiber.BTreeFiber{File: "/t/idx1.index", Node: 2})
	require.NoError(t, err)
	assert.Equal(t, cellBytes(0, 2, 20), buf.Bytes())
	buf.TryDispose(0)

	buf, err = store.Load(ctx, fiber.BitmapFiber{File: "/t/idx1.index", Node: 0})
	require.NoError(t, err)
	assert.Equal(t, cellBytes(0, 0, 20), buf.Bytes())
	buf.TryDispose(0)

	_, err = store.Load(ctx, fiber.BTreeFiber{File: "/t/idx1.index", Node: 3})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestLoad_Errors(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	writeFile(t, blobs, "/t/a", 2, 2, CodecNone)
	store := NewStore(blobs, StoreConfig{})
	ctx := context.Background()

	_, err := store.Load(ctx, fiber.TestFiber{Name: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedFiber)

	_, err = store.Load(ctx, fiber.DataFiber{File: "/t/a", RowGroup: 2, Column: 0})
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = store.Load(ctx, fiber.DataFiber{File: "/t/a", RowGroup: 0, Column: -1})
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = store.Load(ctx, fiber.DataFiber{File: "/t/missing"})
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestLoadMeta_Corrupt(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	ctx := context.Background()

	w, err := NewWriter(2, 2, CodecNone)
	require.NoError(t, err)
	require.NoError(t, w.SetChunk(1, 1, []byte("payload")))
	good, err := w.Encode(ctx)
	require.NoError(t, err)

	tooSmall := []byte("FCDF")

	badMagic := append([]byte(nil), good...)
	badMagic[len(badMagic)-1] ^= 0xff

	badCRC := append([]byte(nil), good...)
	badCRC[len(badCRC)-trailerSize-1] ^= 0xff

	badLen := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(badLen[len(badLen)-8:], uint32(len(good)))

	for name, data := range map[string][]byte{
		"too-small": tooSmall,
		"magic":     badMagic,
		"crc":       badCRC,
		"length":    badLen,
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, blobs.Put(ctx, name, data))
			_, err := NewStore(blobs, StoreConfig{}).LoadMeta(ctx, name)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestLoad_MemoryLimit(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	writeFile(t, blobs, "/t/a", 1, 1, CodecNone)

	rc := resource.NewController(resource.Config{MemoryLimitBytes: 16})
	store := NewStore(blobs, StoreConfig{Allocator: fiber.NewAllocator(rc), Resources: rc})

	_, err := store.Load(context.Background(), fiber.DataFiber{File: "/t/a"})
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestLoad_ThrottledIOIsCounted(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	writeFile(t, blobs, "/t/a", 1, 2, CodecNone)

	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	store := NewStore(blobs, StoreConfig{Resources: rc})

	buf, err := store.Load(context.Background(), fiber.DataFiber{File: "/t/a", Column: 1})
	require.NoError(t, err)
	assert.Equal(t, buf.Size(), rc.IOBytes())
	buf.TryDispose(0)
}

type countingSource struct {
	store *Store
	loads int
	meta  map[string]FileMeta
}

func (c *countingSource) LoadMeta(ctx context.Context, path string) (FileMeta, error) {
	if m, ok := c.meta[path]; ok {
		return m, nil
	}
	c.loads++
	m, err := c.store.LoadMeta(ctx, path)
	if err != nil {
		return nil, err
	}
	c.meta[path] = m
	return m, nil
}

func TestStore_MetaSource(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	writeFile(t, blobs, "/t/a", 2, 2, CodecLZ4)

	store := NewStore(blobs, StoreConfig{})
	src := &countingSource{store: store, meta: map[string]FileMeta{}}
	store.SetMetaSource(src)

	ctx := context.Background()
	for col := range 2 {
		buf, err := store.Load(ctx, fiber.DataFiber{File: "/t/a", RowGroup: 1, Column: col})
		require.NoError(t, err)
		assert.Equal(t, cellBytes(1, col, 52+col), buf.Bytes())
		buf.TryDispose(0)
	}
	assert.Equal(t, 1, src.loads)

	// Shared metadata stays open after loads.
	m := src.meta["/t/a"].(*Meta)
	_, err := m.Chunk(1, 1)
	require.NoError(t, err)
	require.NoError(t, m.Close())
}

// gatedStore counts blob closes and can hold chunk reads until released.
type gatedStore struct {
	*blobstore.MemoryStore
	block   atomic.Bool
	reading chan struct{}
	proceed chan struct{}
	closes  atomic.Int64
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: blobstore.NewMemoryStore(),
		reading:     make(chan struct{}, 1),
		proceed:     make(chan struct{}),
	}
}

func (s *gatedStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	b, err := s.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &gatedBlob{Blob: b, store: s}, nil
}

type gatedBlob struct {
	blobstore.Blob
	store  *gatedStore
	closed atomic.Bool
}

func (b *gatedBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if b.store.block.Load() {
		b.store.reading <- struct{}{}
		<-b.store.proceed
	}
	if b.closed.Load() {
		return 0, errors.New("read after close")
	}
	return b.Blob.ReadAt(ctx, p, off)
}

func (b *gatedBlob) Close() error {
	b.closed.Store(true)
	b.store.closes.Add(1)
	return b.Blob.Close()
}

func TestMeta_References(t *testing.T) {
	blobs := newGatedStore()
	writeFile(t, blobs, "/t/a", 1, 1, CodecNone)

	fm, err := NewStore(blobs, StoreConfig{}).LoadMeta(context.Background(), "/t/a")
	require.NoError(t, err)
	m := fm.(*Meta)

	require.True(t, m.Acquire())
	require.NoError(t, m.Close())
	assert.Equal(t, int64(0), blobs.closes.Load(), "reader still holds the blob")
	assert.False(t, m.Acquire(), "no new readers after close")

	m.Release()
	assert.Equal(t, int64(1), blobs.closes.Load())

	require.NoError(t, m.Close())
	assert.Equal(t, int64(1), blobs.closes.Load())
	assert.Panics(t, m.Release)
}

func TestStore_SharedMetaClosedDuringRead(t *testing.T) {
	blobs := newGatedStore()
	writeFile(t, blobs, "/t/a", 1, 2, CodecNone)

	store := NewStore(blobs, StoreConfig{})
	src := &countingSource{store: store, meta: map[string]FileMeta{}}
	store.SetMetaSource(src)
	ctx := context.Background()

	_, err := src.LoadMeta(ctx, "/t/a")
	require.NoError(t, err)

	blobs.block.Store(true)
	type result struct {
		buf *fiber.Buffer
		err error
	}
	res := make(chan result, 1)
	go func() {
		buf, err := store.Load(ctx, fiber.DataFiber{File: "/t/a", Column: 1})
		res <- result{buf, err}
	}()

	<-blobs.reading
	// The cache evicts the metadata while the chunk read is in flight.
	require.NoError(t, src.meta["/t/a"].Close())
	assert.Equal(t, int64(0), blobs.closes.Load())

	blobs.block.Store(false)
	close(blobs.proceed)

	r := <-res
	require.NoError(t, r.err)
	assert.Equal(t, cellBytes(0, 1, 51), r.buf.Bytes())
	require.True(t, r.buf.TryDispose(0))
	assert.Equal(t, int64(1), blobs.closes.Load())

	// The source still hands out the closed metadata; Load reopens the file.
	buf, err := store.Load(ctx, fiber.DataFiber{File: "/t/a", Column: 0})
	require.NoError(t, err)
	assert.Equal(t, cellBytes(0, 0, 50), buf.Bytes())
	require.True(t, buf.TryDispose(0))
	assert.Equal(t, int64(2), blobs.closes.Load())
}

func TestWriter_Validation(t *testing.T) {
	_, err := NewWriter(-1, 2, CodecNone)
	assert.Error(t, err)
	_, err = NewWriter(1, 1, Codec(9))
	assert.Error(t, err)

	w, err := NewWriter(1, 1, CodecNone)
	require.NoError(t, err)
	assert.ErrorIs(t, w.SetChunk(1, 0, nil), ErrOutOfRange)
}

func TestEmptyChunks(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	w, err := NewWriter(1, 2, CodecZstd)
	require.NoError(t, err)
	require.NoError(t, w.Put(context.Background(), blobs, "/t/empty"))

	buf, err := NewStore(blobs, StoreConfig{}).Load(context.Background(), fiber.DataFiber{File: "/t/empty", Column: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), buf.Size())
	assert.True(t, buf.TryDispose(0))
}

func TestCodec_String(t *testing.T) {
	assert.Equal(t, "none", CodecNone.String())
	assert.Equal(t, "lz4", CodecLZ4.String())
	assert.Equal(t, "zstd", CodecZstd.String())
	assert.Equal(t, "codec(7)", Codec(7).String())
}
