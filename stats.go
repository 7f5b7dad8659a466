package fibercache

import (
	"fmt"
	"strings"
	"time"
)

// Stats is a point-in-time snapshot of a Manager.
//
// The OffHeap and IO figures come from the manager's ResourceController;
// they cover the loader only when it shares that controller (see
// WithResourceController).
type Stats struct {
	Strategy       string
	ResidentBytes  int64
	ResidentCount  int
	Hits           int64
	Misses         int64
	Loads          int64
	LoadFailures   int64
	TotalLoadTime  time.Duration
	Evictions      int64
	Invalidations  int64
	PendingCount   int
	PendingBytes   int64
	Disposals      int64
	DisposeRetries int64
	DisposedBytes  int64
	OffHeapBytes   int64
	OffHeapPeak    int64
	OffHeapLimit   int64 // 0 if unlimited
	IOBytes        int64
	MetaEntries    int
	MetaBytes      int64
	LockEntries    int
	MaxMemoryBytes int64
}

// HitRatio returns hits / (hits + misses), or 0 before any request.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// AvgLoadTime returns the mean loader latency.
func (s Stats) AvgLoadTime() time.Duration {
	n := s.Loads + s.LoadFailures
	if n == 0 {
		return 0
	}
	return s.TotalLoadTime / time.Duration(n)
}

func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fibercache[%s]: ", s.Strategy)
	fmt.Fprintf(&b, "resident=%d (%s of %s)", s.ResidentCount, formatBytes(s.ResidentBytes), formatBytes(s.MaxMemoryBytes))
	fmt.Fprintf(&b, " hits=%d misses=%d hit_ratio=%.2f", s.Hits, s.Misses, s.HitRatio())
	fmt.Fprintf(&b, " loads=%d failures=%d avg_load=%s", s.Loads, s.LoadFailures, s.AvgLoadTime())
	fmt.Fprintf(&b, " evictions=%d invalidations=%d", s.Evictions, s.Invalidations)
	fmt.Fprintf(&b, " pending=%d (%s) disposed=%d (%s)", s.PendingCount, formatBytes(s.PendingBytes), s.Disposals, formatBytes(s.DisposedBytes))
	fmt.Fprintf(&b, " offheap=%s peak=%s", formatBytes(s.OffHeapBytes), formatBytes(s.OffHeapPeak))
	if s.OffHeapLimit > 0 {
		fmt.Fprintf(&b, " limit=%s", formatBytes(s.OffHeapLimit))
	}
	fmt.Fprintf(&b, " io=%s meta=%d (%s) locks=%d", formatBytes(s.IOBytes), s.MetaEntries, formatBytes(s.MetaBytes), s.LockEntries)
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
