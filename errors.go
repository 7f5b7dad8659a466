package fibercache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/fibercache/internal/resource"
)

var (
	// ErrInvalidConfig is matched by every configuration error returned by New.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrClosed is returned after Stop.
	ErrClosed = errors.New("fibercache: manager is stopped")
	// ErrMemoryLimitExceeded is returned by allocators whose resource
	// controller is out of memory.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded
)

// ErrUnsupportedStrategy indicates an unknown backend strategy name.
type ErrUnsupportedStrategy struct {
	Name string
}

func (e *ErrUnsupportedStrategy) Error() string {
	return fmt.Sprintf("unsupported cache strategy %q (want %q or %q)", e.Name, StrategyLRU, StrategySimple)
}

func (e *ErrUnsupportedStrategy) Is(target error) bool { return target == ErrInvalidConfig }

// ErrInvalidOption indicates an option value outside its valid range.
type ErrInvalidOption struct {
	Option string
	Value  any
}

func (e *ErrInvalidOption) Error() string {
	return fmt.Sprintf("invalid option %s: %v", e.Option, e.Value)
}

func (e *ErrInvalidOption) Is(target error) bool { return target == ErrInvalidConfig }
