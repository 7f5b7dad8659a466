package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Open(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	data := []byte("abcdef")
	require.NoError(t, store.Put(ctx, "dir/b", data))
	require.NoError(t, store.Put(ctx, "dir/a", []byte("zz")))
	require.NoError(t, store.Put(ctx, "other", nil))

	// Put copies its input.
	data[0] = 'X'

	blob, err := store.Open(ctx, "dir/b")
	require.NoError(t, err)
	assert.Equal(t, int64(6), blob.Size())

	buf := make([]byte, 3)
	n, err := blob.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(buf))

	n, err = blob.ReadAt(ctx, buf, 4)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ef", string(buf[:n]))

	// An open blob keeps its snapshot across overwrites.
	require.NoError(t, store.Put(ctx, "dir/b", []byte("new")))
	assert.Equal(t, int64(6), blob.Size())
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "dir/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/a", "dir/b"}, names)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, names, 3)

	require.NoError(t, store.Delete(ctx, "dir/a"))
	require.NoError(t, store.Delete(ctx, "dir/a"))
	_, err = store.Open(ctx, "dir/a")
	assert.ErrorIs(t, err, ErrNotFound)
}

var (
	_ WritableStore = (*MemoryStore)(nil)
	_ WritableStore = (*LocalStore)(nil)
	_ Mappable      = (*memoryBlob)(nil)
	_ Mappable      = (*localBlob)(nil)
)
