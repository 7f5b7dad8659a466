package guardian

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/fibercache/fiber"
)

// DefaultDisposeTimeout bounds how long one disposal attempt waits for a
// buffer to be unpinned before it is requeued.
const DefaultDisposeTimeout = 5 * time.Second

// Config configures a Guardian.
type Config struct {
	// DisposeTimeout is the wait per disposal attempt. Defaults to DefaultDisposeTimeout.
	DisposeTimeout time.Duration
	// BackpressureThreshold is the pending byte size above which every Offer
	// logs a warning. 0 disables the warning.
	BackpressureThreshold int64
	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// OnDispose is called after each successful disposal.
	OnDispose func(f fiber.Fiber, size int64)
}

type entry struct {
	fiber fiber.Fiber
	buf   *fiber.Buffer
}

// Guardian frees evicted buffers once their readers are gone.
//
// Entries are processed by a single worker in FIFO order. An entry whose
// buffer is still pinned when its attempt times out goes back to the tail.
type Guardian struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   *list.List
	closed  bool
	aborted bool
	started bool

	inFlight bool

	pendingSize atomic.Int64
	disposed    atomic.Int64
	retries     atomic.Int64

	done chan struct{}
}

// New creates a Guardian. Call Start to launch its worker.
func New(cfg Config) *Guardian {
	if cfg.DisposeTimeout <= 0 {
		cfg.DisposeTimeout = DefaultDisposeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Guardian{
		cfg:    cfg,
		logger: logger.With("component", "guardian"),
		queue:  list.New(),
		done:   make(chan struct{}),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Start launches the worker goroutine. It is a no-op after the first call.
func (g *Guardian) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started || g.closed {
		return
	}
	g.started = true
	go g.run()
}

// Offer schedules buf, cached under f, for disposal. It never blocks.
func (g *Guardian) Offer(f fiber.Fiber, buf *fiber.Buffer) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.disposeAfterClose(f, buf)
		return
	}
	g.queue.PushBack(entry{fiber: f, buf: buf})
	pending := g.pendingSize.Add(buf.Size())
	g.cond.Signal()
	g.mu.Unlock()

	if t := g.cfg.BackpressureThreshold; t > 0 && pending > t {
		g.logger.Warn("pending disposal size exceeds threshold",
			"pending_bytes", pending,
			"threshold_bytes", t,
			"pending_count", g.PendingCount(),
		)
	}
}

// PendingCount returns the number of entries waiting for disposal, counting
// an attempt currently in flight.
func (g *Guardian) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.queue.Len()
	if g.inFlight {
		n++
	}
	return n
}

// PendingSize returns the total byte size of entries waiting for disposal.
func (g *Guardian) PendingSize() int64 {
	return g.pendingSize.Load()
}

// Disposed returns the number of buffers disposed so far.
func (g *Guardian) Disposed() int64 {
	return g.disposed.Load()
}

// Retries returns the number of attempts that timed out and were requeued.
func (g *Guardian) Retries() int64 {
	return g.retries.Load()
}

// Close stops accepting work and waits for the worker to drain the queue.
// If ctx ends first the worker is told to stop after its current attempt and
// ctx.Err() is returned; buffers left in the queue are not freed.
func (g *Guardian) Close(ctx context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		<-g.done
		return nil
	}
	g.closed = true
	started := g.started
	g.cond.Broadcast()
	g.mu.Unlock()

	if !started {
		// Nothing will ever run the queue; drain it inline.
		close(g.done)
		return g.drainInline(ctx)
	}

	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		left := g.queue.Len()
		g.queue.Init()
		g.aborted = true
		g.cond.Broadcast()
		g.mu.Unlock()
		g.logger.Error("guardian closed with undisposed buffers",
			"count", left,
			"pending_bytes", g.pendingSize.Load(),
		)
		<-g.done
		return ctx.Err()
	}
}

func (g *Guardian) run() {
	defer close(g.done)
	for {
		e, ok := g.take()
		if !ok {
			return
		}
		requeue := g.process(e)

		g.mu.Lock()
		if requeue && !g.aborted {
			g.queue.PushBack(e)
		}
		g.inFlight = false
		g.mu.Unlock()
	}
}

// take blocks until an entry is available. It returns false once the
// guardian is closed and the queue is empty.
func (g *Guardian) take() (entry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.queue.Len() == 0 || g.aborted {
		if g.closed || g.aborted {
			return entry{}, false
		}
		g.cond.Wait()
	}
	e := g.queue.Remove(g.queue.Front()).(entry)
	g.inFlight = true
	return e, true
}

// process makes one disposal attempt and reports whether e must be requeued.
func (g *Guardian) process(e entry) bool {
	if e.buf.TryDispose(g.cfg.DisposeTimeout) {
		g.complete(e)
		return false
	}
	if e.buf.Disposed() {
		// Someone else released it; drop the accounting only.
		g.pendingSize.Add(-e.buf.Size())
		return false
	}

	g.retries.Add(1)
	g.logger.Debug("buffer still pinned, requeueing",
		"fiber", e.fiber.String(),
		"refs", e.buf.Refs(),
		"timeout", g.cfg.DisposeTimeout,
	)
	return true
}

func (g *Guardian) complete(e entry) {
	size := e.buf.Size()
	g.pendingSize.Add(-size)
	g.disposed.Add(1)
	g.logger.Debug("buffer disposed", "fiber", e.fiber.String(), "bytes", size)
	if g.cfg.OnDispose != nil {
		g.cfg.OnDispose(e.fiber, size)
	}
}

func (g *Guardian) drainInline(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.queue.Len() == 0 {
			g.mu.Unlock()
			return nil
		}
		e := g.queue.Remove(g.queue.Front()).(entry)
		g.mu.Unlock()

		if !g.process(e) {
			continue
		}
		if err := ctx.Err(); err != nil {
			g.logger.Error("guardian closed with undisposed buffers",
				"count", g.PendingCount()+1,
				"pending_bytes", g.pendingSize.Load(),
			)
			return err
		}
		g.mu.Lock()
		g.queue.PushBack(e)
		g.mu.Unlock()
	}
}

// disposeAfterClose handles an Offer that arrives after Close.
func (g *Guardian) disposeAfterClose(f fiber.Fiber, buf *fiber.Buffer) {
	if buf.TryDispose(0) {
		g.disposed.Add(1)
		if g.cfg.OnDispose != nil {
			g.cfg.OnDispose(f, buf.Size())
		}
		return
	}
	g.logger.Error("buffer offered after close is still pinned, dropping",
		"fiber", f.String(),
		"bytes", buf.Size(),
	)
}
