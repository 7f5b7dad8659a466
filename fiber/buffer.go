package fiber

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Buffer.
type State uint8

const (
	StateFree      State = iota // resident, nobody reading
	StatePinned                 // at least one reader holds a pin
	StateDisposing              // memory is being released
	StateDisposed               // memory has been released
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StatePinned:
		return "pinned"
	case StateDisposing:
		return "disposing"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Values of Buffer.word below zero encode terminal states; values >= 0 are pin counts.
const (
	wordDisposing int64 = -1
	wordDisposed  int64 = -2
)

// Retry cadence for TryDispose while the buffer is pinned.
const (
	minDisposePoll = 100 * time.Microsecond
	maxDisposePoll = 10 * time.Millisecond
)

// Buffer is a reference-counted handle over the decoded bytes of one fiber.
//
// A Buffer returned by the cache is pinned on behalf of the caller, who must
// call Release exactly once when done reading. Memory is released only by a
// successful TryDispose, which requires the pin count to be zero.
type Buffer struct {
	word    atomic.Int64
	data    []byte
	size    int64
	release func()

	// unpinned is closed and replaced whenever the pin count drops to zero
	// so a waiting disposer wakes up early.
	mu       sync.Mutex
	unpinned chan struct{}
}

// NewBuffer wraps data in an unpinned Buffer. release is called exactly
// once when the buffer is disposed; it may be nil for heap-backed data.
func NewBuffer(data []byte, release func()) *Buffer {
	return &Buffer{
		data:     data,
		size:     int64(len(data)),
		release:  release,
		unpinned: make(chan struct{}),
	}
}

// Pin adds a reader. It returns false once disposal has started, in which
// case the caller must not touch the buffer and should load it again.
func (b *Buffer) Pin() bool {
	for {
		w := b.word.Load()
		if w < 0 {
			return false
		}
		if b.word.CompareAndSwap(w, w+1) {
			return true
		}
	}
}

// Release removes a reader added by Pin or returned pinned by the cache.
func (b *Buffer) Release() {
	w := b.word.Add(-1)
	if w < 0 {
		panic("fiber: release of unpinned buffer")
	}
	if w == 0 {
		b.mu.Lock()
		close(b.unpinned)
		b.unpinned = make(chan struct{})
		b.mu.Unlock()
	}
}

// Bytes returns the decoded data. The slice is valid only while the caller
// holds a pin.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Size returns the length of the data in bytes.
func (b *Buffer) Size() int64 {
	return b.size
}

// Refs returns the current pin count, or 0 once disposal has started.
func (b *Buffer) Refs() int {
	w := b.word.Load()
	if w < 0 {
		return 0
	}
	return int(w)
}

// State returns the lifecycle state.
func (b *Buffer) State() State {
	switch w := b.word.Load(); {
	case w == wordDisposed:
		return StateDisposed
	case w == wordDisposing:
		return StateDisposing
	case w > 0:
		return StatePinned
	default:
		return StateFree
	}
}

// Disposed reports whether the memory has been released.
func (b *Buffer) Disposed() bool {
	return b.word.Load() == wordDisposed
}

// TryDispose releases the memory once the buffer is unpinned, waiting at
// most timeout for the pin count to reach zero. It returns false without
// side effects if the buffer is still pinned at the deadline or another
// caller disposed or is disposing it. Redundant calls are safe.
func (b *Buffer) TryDispose(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	poll := minDisposePoll
	for {
		if b.word.CompareAndSwap(0, wordDisposing) {
			if b.release != nil {
				b.release()
			}
			b.word.Store(wordDisposed)
			return true
		}
		if b.word.Load() < 0 {
			return false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}

		b.mu.Lock()
		ch := b.unpinned
		b.mu.Unlock()

		t := time.NewTimer(min(poll, remaining))
		select {
		case <-ch:
		case <-t.C:
		}
		t.Stop()
		poll = min(poll*2, maxDisposePoll)
	}
}
