package fibercache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    getHistogram   prometheus.Histogram
//	    disposedBytes  prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordGet(duration time.Duration, err error) {
//	    p.getHistogram.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordGet is called after each Get.
	// duration is the total time taken, err is nil if successful.
	RecordGet(duration time.Duration, err error)

	// RecordInvalidate is called after each invalidation with the number of
	// fibers requested.
	RecordInvalidate(count int)

	// RecordDisposal is called by the disposal worker after a buffer of
	// bytes has been freed.
	RecordDisposal(bytes int64)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(time.Duration, error) {}
func (NoopMetricsCollector) RecordInvalidate(int)           {}
func (NoopMetricsCollector) RecordDisposal(int64)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount          atomic.Int64
	GetErrors         atomic.Int64
	GetTotalNanos     atomic.Int64
	InvalidateCount   atomic.Int64
	InvalidatedFibers atomic.Int64
	DisposalCount     atomic.Int64
	DisposedBytes     atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordInvalidate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInvalidate(count int) {
	b.InvalidateCount.Add(1)
	b.InvalidatedFibers.Add(int64(count))
}

// RecordDisposal implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDisposal(bytes int64) {
	b.DisposalCount.Add(1)
	b.DisposedBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:          b.GetCount.Load(),
		GetErrors:         b.GetErrors.Load(),
		GetAvgNanos:       b.getAvgGetNanos(),
		InvalidateCount:   b.InvalidateCount.Load(),
		InvalidatedFibers: b.InvalidatedFibers.Load(),
		DisposalCount:     b.DisposalCount.Load(),
		DisposedBytes:     b.DisposedBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgGetNanos() int64 {
	count := b.GetCount.Load()
	if count == 0 {
		return 0
	}
	return b.GetTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCount          int64
	GetErrors         int64
	GetAvgNanos       int64
	InvalidateCount   int64
	InvalidatedFibers int64
	DisposalCount     int64
	DisposedBytes     int64
}
