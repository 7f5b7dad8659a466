package fiber

import "sync"

// LockManager hands out one read/write lock per fiber.
//
// Locks are created on first access and live until Remove. Callers use them
// to keep readers of a fiber's data out while it is being rebuilt or
// invalidated; the cache itself never takes them.
type LockManager struct {
	locks sync.Map // Fiber -> *sync.RWMutex
}

// NewLockManager returns an empty registry.
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Acquire returns the lock for f, creating it if absent. Concurrent first
// callers observe the same instance.
func (m *LockManager) Acquire(f Fiber) *sync.RWMutex {
	if l, ok := m.locks.Load(f); ok {
		return l.(*sync.RWMutex)
	}
	l, _ := m.locks.LoadOrStore(f, &sync.RWMutex{})
	return l.(*sync.RWMutex)
}

// Remove drops the lock for f.
//
// The caller must guarantee nobody holds or is about to acquire the lock;
// otherwise two goroutines may end up with different locks for the same fiber.
func (m *LockManager) Remove(f Fiber) {
	m.locks.Delete(f)
}

// Len returns the number of registered locks.
func (m *LockManager) Len() int {
	n := 0
	m.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
