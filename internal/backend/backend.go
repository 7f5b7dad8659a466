package backend

import (
	"context"
	"time"

	"github.com/hupe1980/fibercache/fiber"
)

// Backend is a capacity-bounded map from fiber to pinned buffer.
//
// Buffers returned by Get and GetIfPresent are pinned on behalf of the
// caller, who must Release them. Removed entries are never freed in place;
// they go to the disposal guardian.
type Backend interface {
	// Get returns the buffer for f, loading it on a miss. Concurrent misses
	// for the same fiber share one load.
	Get(ctx context.Context, f fiber.Fiber) (*fiber.Buffer, error)
	// GetIfPresent returns the resident buffer for f, or nil. It never loads.
	GetIfPresent(f fiber.Fiber) *fiber.Buffer
	// Invalidate removes f. Subsequent Gets miss.
	Invalidate(f fiber.Fiber)
	// InvalidateAll removes every fiber in fs.
	InvalidateAll(fs []fiber.Fiber)
	// Keys returns a snapshot of the resident fibers.
	Keys() []fiber.Fiber
	// Size returns the resident bytes.
	Size() int64
	// Count returns the number of resident entries.
	Count() int
	// Stats returns cumulative counters.
	Stats() Stats
	// PendingCount returns the number of buffers waiting for disposal.
	PendingCount() int
	// PendingSize returns the bytes waiting for disposal.
	PendingSize() int64
	// Close removes every entry and drains the guardian. The backend must
	// not be used afterwards.
	Close(ctx context.Context) error
}

// Stats holds cumulative backend counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Loads         int64
	LoadFailures  int64
	Evictions     int64
	Invalidations int64
	TotalLoadTime time.Duration
}

// HitRatio returns hits / (hits + misses), or 0 before any request.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
