package fiber

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrackedBuffer(size int) (*Buffer, *atomic.Int32) {
	var released atomic.Int32
	return NewBuffer(make([]byte, size), func() { released.Add(1) }), &released
}

func TestBuffer_PinRelease(t *testing.T) {
	b, released := newTrackedBuffer(16)
	assert.Equal(t, StateFree, b.State())
	assert.Equal(t, int64(16), b.Size())

	require.True(t, b.Pin())
	require.True(t, b.Pin())
	assert.Equal(t, StatePinned, b.State())
	assert.Equal(t, 2, b.Refs())

	b.Release()
	b.Release()
	assert.Equal(t, StateFree, b.State())
	assert.Equal(t, int32(0), released.Load())
}

func TestBuffer_ReleaseUnpinnedPanics(t *testing.T) {
	b := NewBuffer(nil, nil)
	assert.Panics(t, func() { b.Release() })
}

func TestBuffer_TryDisposeUnpinned(t *testing.T) {
	b, released := newTrackedBuffer(8)

	assert.True(t, b.TryDispose(time.Second))
	assert.True(t, b.Disposed())
	assert.Equal(t, StateDisposed, b.State())
	assert.Equal(t, int32(1), released.Load())

	// Redundant attempts are harmless.
	assert.False(t, b.TryDispose(time.Millisecond))
	assert.Equal(t, int32(1), released.Load())

	// A disposed buffer can not be pinned again.
	assert.False(t, b.Pin())
}

func TestBuffer_TryDisposeTimesOutWhilePinned(t *testing.T) {
	b, released := newTrackedBuffer(8)
	require.True(t, b.Pin())

	start := time.Now()
	assert.False(t, b.TryDispose(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, StatePinned, b.State())
	assert.Equal(t, int32(0), released.Load())

	b.Release()
	assert.True(t, b.TryDispose(time.Second))
	assert.Equal(t, int32(1), released.Load())
}

func TestBuffer_TryDisposeWakesOnRelease(t *testing.T) {
	b, released := newTrackedBuffer(8)
	require.True(t, b.Pin())

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Release()
	}()

	assert.True(t, b.TryDispose(5*time.Second))
	assert.Equal(t, int32(1), released.Load())
}

func TestBuffer_ConcurrentDisposeFreesOnce(t *testing.T) {
	b, released := newTrackedBuffer(8)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryDispose(10 * time.Millisecond) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), released.Load())
}

// Randomized interleavings of pin/release against a concurrent disposer:
// release must happen after the last unpin.
func TestBuffer_NoPrematureFree(t *testing.T) {
	for iter := range 50 {
		var pinned atomic.Int32
		var freedWhilePinned atomic.Bool
		var released atomic.Int32

		b := NewBuffer(make([]byte, 4), func() {
			if pinned.Load() != 0 {
				freedWhilePinned.Store(true)
			}
			released.Add(1)
		})

		rng := rand.New(rand.NewPCG(uint64(iter), 7))
		readers := 1 + rng.IntN(8)

		var wg sync.WaitGroup
		for r := range readers {
			wg.Add(1)
			go func(seed uint64) {
				defer wg.Done()
				lr := rand.New(rand.NewPCG(seed, 11))
				for range 20 {
					if !b.Pin() {
						return
					}
					pinned.Add(1)
					time.Sleep(time.Duration(lr.IntN(50)) * time.Microsecond)
					pinned.Add(-1)
					b.Release()
				}
			}(uint64(iter*100 + r))
		}

		disposed := false
		for !disposed {
			disposed = b.TryDispose(time.Millisecond)
		}
		wg.Wait()

		assert.False(t, freedWhilePinned.Load(), "iteration %d", iter)
		assert.Equal(t, int32(1), released.Load())
	}
}
