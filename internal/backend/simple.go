package backend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/fibercache/fiber"
	"github.com/hupe1980/fibercache/internal/guardian"
)

// Simple is a pass-through backend with no capacity bound and no eviction.
//
// Every Get loads a fresh buffer. The buffer is handed to the guardian right
// away, so it is freed as soon as the caller releases it and nothing stays
// resident.
type Simple struct {
	loader   fiber.Loader
	guardian *guardian.Guardian
	closed   atomic.Bool

	misses       atomic.Int64
	loads        atomic.Int64
	loadFailures atomic.Int64
	loadNanos    atomic.Int64
}

// NewSimple creates a Simple backend.
func NewSimple(loader fiber.Loader, g *guardian.Guardian) (*Simple, error) {
	if loader == nil {
		return nil, errors.New("backend: loader is required")
	}
	if g == nil {
		return nil, errors.New("backend: guardian is required")
	}
	return &Simple{loader: loader, guardian: g}, nil
}

func (s *Simple) Get(ctx context.Context, f fiber.Fiber) (*fiber.Buffer, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.misses.Add(1)

	start := time.Now()
	buf, err := s.loader.Load(ctx, f)
	s.loadNanos.Add(int64(time.Since(start)))
	if err != nil {
		s.loadFailures.Add(1)
		return nil, err
	}
	if buf == nil {
		s.loadFailures.Add(1)
		return nil, fmt.Errorf("backend: loader returned no buffer for %s", f)
	}
	s.loads.Add(1)

	if !buf.Pin() {
		return nil, fmt.Errorf("backend: loader returned a disposed buffer for %s", f)
	}
	s.guardian.Offer(f, buf)
	return buf, nil
}

func (s *Simple) GetIfPresent(fiber.Fiber) *fiber.Buffer { return nil }

func (s *Simple) Invalidate(fiber.Fiber) {}

func (s *Simple) InvalidateAll([]fiber.Fiber) {}

func (s *Simple) Keys() []fiber.Fiber { return nil }

func (s *Simple) Size() int64 { return 0 }

func (s *Simple) Count() int { return 0 }

func (s *Simple) Stats() Stats {
	return Stats{
		Misses:        s.misses.Load(),
		Loads:         s.loads.Load(),
		LoadFailures:  s.loadFailures.Load(),
		TotalLoadTime: time.Duration(s.loadNanos.Load()),
	}
}

func (s *Simple) PendingCount() int {
	return s.guardian.PendingCount()
}

func (s *Simple) PendingSize() int64 {
	return s.guardian.PendingSize()
}

func (s *Simple) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.guardian.Close(ctx)
}
