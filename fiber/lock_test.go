package fiber

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockManager_SameInstance(t *testing.T) {
	m := NewLockManager()
	f := DataFiber{File: "/t/part-0", RowGroup: 0, Column: 1}

	var wg sync.WaitGroup
	locks := make([]*sync.RWMutex, 32)
	for i := range locks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks[i] = m.Acquire(DataFiber{File: "/t/part-0", RowGroup: 0, Column: 1})
		}(i)
	}
	wg.Wait()

	for _, l := range locks {
		assert.Same(t, locks[0], l)
	}
	assert.Same(t, locks[0], m.Acquire(f))
	assert.Equal(t, 1, m.Len())
}

func TestLockManager_Remove(t *testing.T) {
	m := NewLockManager()
	f := BTreeFiber{File: "/idx", Node: 4}

	l1 := m.Acquire(f)
	m.Acquire(BTreeFiber{File: "/idx", Node: 5})
	assert.Equal(t, 2, m.Len())

	m.Remove(f)
	assert.Equal(t, 1, m.Len())

	l2 := m.Acquire(f)
	assert.NotSame(t, l1, l2)
}

func TestLockManager_Exclusion(t *testing.T) {
	m := NewLockManager()
	f := TestFiber{Name: "x"}

	var mu sync.Mutex
	counter := 0

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				l := m.Acquire(f)
				l.Lock()
				mu.Lock()
				counter++
				mu.Unlock()
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, counter)
}
