package fiber

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/fibercache/internal/mmap"
	"github.com/hupe1980/fibercache/internal/resource"
)

// Allocator hands out off-heap Buffers and accounts their memory.
type Allocator struct {
	rc *resource.Controller

	allocated atomic.Int64
	live      atomic.Int64
}

// NewAllocator returns an allocator that reserves memory from rc.
// A nil rc only tracks usage locally.
func NewAllocator(rc *resource.Controller) *Allocator {
	return &Allocator{rc: rc}
}

// Allocate returns an unpinned, zeroed Buffer of size bytes backed by an
// anonymous mapping. Disposing the buffer unmaps it and returns the memory
// to the controller.
func (a *Allocator) Allocate(size int) (*Buffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("fiber: negative allocation size %d", size)
	}
	if err := a.rc.AcquireMemory(int64(size)); err != nil {
		return nil, err
	}

	m, err := mmap.MapAnon(size)
	if err != nil {
		a.rc.ReleaseMemory(int64(size))
		return nil, fmt.Errorf("fiber: map %d bytes: %w", size, err)
	}

	a.allocated.Add(int64(size))
	a.live.Add(1)

	return NewBuffer(m.Bytes(), func() {
		_ = m.Close()
		a.allocated.Add(-int64(size))
		a.live.Add(-1)
		a.rc.ReleaseMemory(int64(size))
	}), nil
}

// AllocateCopy allocates a Buffer holding a copy of data.
func (a *Allocator) AllocateCopy(data []byte) (*Buffer, error) {
	b, err := a.Allocate(len(data))
	if err != nil {
		return nil, err
	}
	copy(b.Bytes(), data)
	return b, nil
}

// Allocated returns the bytes currently held by undisposed buffers.
func (a *Allocator) Allocated() int64 {
	return a.allocated.Load()
}

// Live returns the number of undisposed buffers.
func (a *Allocator) Live() int64 {
	return a.live.Load()
}
