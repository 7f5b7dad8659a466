package guardian

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/fibercache/fiber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBuffer(size int, released *atomic.Int64) *fiber.Buffer {
	return fiber.NewBuffer(make([]byte, size), func() { released.Add(1) })
}

func TestGuardian_DisposesUnpinned(t *testing.T) {
	var released atomic.Int64
	var disposedBytes atomic.Int64
	g := New(Config{
		DisposeTimeout: 50 * time.Millisecond,
		Logger:         quietLogger(),
		OnDispose:      func(_ fiber.Fiber, size int64) { disposedBytes.Add(size) },
	})
	g.Start()

	for i := range 10 {
		g.Offer(fiber.TestFiber{Name: fmt.Sprint(i)}, newBuffer(10, &released))
	}

	require.Eventually(t, func() bool { return released.Load() == 10 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return g.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), g.PendingSize())
	assert.Equal(t, int64(100), disposedBytes.Load())
	assert.Equal(t, int64(10), g.Disposed())

	require.NoError(t, g.Close(context.Background()))
}

func TestGuardian_WaitsForUnpin(t *testing.T) {
	var released atomic.Int64
	g := New(Config{DisposeTimeout: 10 * time.Millisecond, Logger: quietLogger()})
	g.Start()
	defer g.Close(context.Background())

	buf := newBuffer(64, &released)
	require.True(t, buf.Pin())

	g.Offer(fiber.TestFiber{Name: "pinned"}, buf)

	// Several attempts time out while the reader holds its pin.
	require.Eventually(t, func() bool { return g.Retries() >= 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int64(0), released.Load())
	assert.Equal(t, int64(64), g.PendingSize())
	assert.Equal(t, 1, g.PendingCount())

	buf.Release()
	require.Eventually(t, func() bool { return released.Load() == 1 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return g.PendingSize() == 0 }, time.Second, time.Millisecond)
}

func TestGuardian_StuckEntryDoesNotBlockOthers(t *testing.T) {
	var stuckReleased, released atomic.Int64
	g := New(Config{DisposeTimeout: 5 * time.Millisecond, Logger: quietLogger()})
	g.Start()
	defer g.Close(context.Background())

	stuck := newBuffer(8, &stuckReleased)
	require.True(t, stuck.Pin())
	g.Offer(fiber.TestFiber{Name: "stuck"}, stuck)

	for i := range 5 {
		g.Offer(fiber.TestFiber{Name: fmt.Sprint(i)}, newBuffer(8, &released))
	}

	require.Eventually(t, func() bool { return released.Load() == 5 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int64(0), stuckReleased.Load())
	assert.Equal(t, int64(8), g.PendingSize())

	stuck.Release()
	require.Eventually(t, func() bool { return stuckReleased.Load() == 1 }, 2*time.Second, time.Millisecond)
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.Level >= slog.LevelWarn {
		h.messages = append(h.messages, r.Message)
	}
	return nil
}
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

func TestGuardian_BackpressureWarning(t *testing.T) {
	h := &recordingHandler{}
	var released atomic.Int64
	g := New(Config{
		DisposeTimeout:        time.Millisecond,
		BackpressureThreshold: 100,
		Logger:                slog.New(h),
	})
	// Not started: entries accumulate.

	for i := range 3 {
		g.Offer(fiber.TestFiber{Name: fmt.Sprint(i)}, newBuffer(40, &released))
	}

	// 40, 80 under the threshold; 120 above.
	assert.Equal(t, 1, h.count())
	assert.Equal(t, int64(120), g.PendingSize())
	assert.Equal(t, 3, g.PendingCount())

	require.NoError(t, g.Close(context.Background()))
	assert.Equal(t, int64(3), released.Load())
	assert.Equal(t, int64(0), g.PendingSize())
}

func TestGuardian_ConcurrentOffers(t *testing.T) {
	var released atomic.Int64
	g := New(Config{DisposeTimeout: 10 * time.Millisecond, Logger: quietLogger()})
	g.Start()

	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				buf := newBuffer(4, &released)
				pinned := i%7 == 0 && buf.Pin()
				g.Offer(fiber.TestFiber{Name: fmt.Sprintf("%d-%d", p, i)}, buf)
				if pinned {
					time.Sleep(time.Millisecond)
					buf.Release()
				}
			}
		}()
	}
	wg.Wait()

	require.NoError(t, g.Close(context.Background()))
	assert.Equal(t, int64(400), released.Load())
	assert.Equal(t, int64(0), g.PendingSize())
	assert.Equal(t, 0, g.PendingCount())
}

func TestGuardian_CloseTimeoutKeepsPinnedMemory(t *testing.T) {
	var released atomic.Int64
	g := New(Config{DisposeTimeout: 5 * time.Millisecond, Logger: quietLogger()})
	g.Start()

	buf := newBuffer(16, &released)
	require.True(t, buf.Pin())
	g.Offer(fiber.TestFiber{Name: "leaked-reader"}, buf)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := g.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), released.Load())
	assert.False(t, buf.Disposed())

	// Idempotent
	assert.NoError(t, g.Close(context.Background()))
	buf.Release()
}

func TestGuardian_OfferAfterClose(t *testing.T) {
	var released atomic.Int64
	g := New(Config{Logger: quietLogger()})
	g.Start()
	require.NoError(t, g.Close(context.Background()))

	g.Offer(fiber.TestFiber{Name: "late"}, newBuffer(4, &released))
	assert.Equal(t, int64(1), released.Load())
	assert.Equal(t, int64(0), g.PendingSize())
}
