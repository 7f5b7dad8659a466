package fibercache

import (
	"time"

	"github.com/hupe1980/fibercache/internal/guardian"
	"github.com/hupe1980/fibercache/internal/metacache"
	"github.com/hupe1980/fibercache/internal/resource"
)

// Backend strategy names accepted by WithStrategy.
const (
	StrategyLRU    = "lru"
	StrategySimple = "simple"
)

const (
	// DefaultMaxMemory is the memory budget split between resident fibers
	// and buffers awaiting disposal.
	DefaultMaxMemory int64 = 256 << 20
	// DefaultGuardianReserveRatio is the share of MaxMemory reserved for
	// buffers awaiting disposal.
	DefaultGuardianReserveRatio = 0.1
	// DefaultShutdownTimeout bounds Close.
	DefaultShutdownTimeout = 30 * time.Second
	// DefaultDisposeTimeout bounds one disposal attempt.
	DefaultDisposeTimeout = guardian.DefaultDisposeTimeout
	// DefaultMetaTTL is the idle expiry of cached file metadata.
	DefaultMetaTTL = metacache.DefaultTTL
)

type options struct {
	strategy         string
	maxMemory        int64
	reserveRatio     float64
	disposeTimeout   time.Duration
	metaTTL          time.Duration
	shutdownTimeout  time.Duration
	logger           *Logger
	metricsCollector MetricsCollector
	resources        *resource.Controller
}

func defaultOptions() options {
	return options{
		strategy:         StrategyLRU,
		maxMemory:        DefaultMaxMemory,
		reserveRatio:     DefaultGuardianReserveRatio,
		disposeTimeout:   DefaultDisposeTimeout,
		metaTTL:          DefaultMetaTTL,
		shutdownTimeout:  DefaultShutdownTimeout,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
}

func (o *options) validate() error {
	switch o.strategy {
	case StrategyLRU, StrategySimple:
	default:
		return &ErrUnsupportedStrategy{Name: o.strategy}
	}
	if o.maxMemory <= 0 {
		return &ErrInvalidOption{Option: "MaxMemory", Value: o.maxMemory}
	}
	if o.reserveRatio < 0 || o.reserveRatio >= 1 {
		return &ErrInvalidOption{Option: "GuardianReserveRatio", Value: o.reserveRatio}
	}
	if o.disposeTimeout <= 0 {
		return &ErrInvalidOption{Option: "DisposeTimeout", Value: o.disposeTimeout}
	}
	if o.metaTTL <= 0 {
		return &ErrInvalidOption{Option: "MetaTTL", Value: o.metaTTL}
	}
	if o.shutdownTimeout <= 0 {
		return &ErrInvalidOption{Option: "ShutdownTimeout", Value: o.shutdownTimeout}
	}
	return nil
}

// Option configures New.
type Option func(*options)

// WithStrategy selects the backend: StrategyLRU (default) keeps fibers
// resident within the memory budget, StrategySimple keeps nothing and frees
// each buffer once its reader releases it.
func WithStrategy(name string) Option {
	return func(o *options) {
		o.strategy = name
	}
}

// WithMaxMemory sets the total memory budget in bytes.
//
// The resident capacity is MaxMemory × (1 − GuardianReserveRatio); the rest
// is headroom for evicted buffers that still have readers.
func WithMaxMemory(bytes int64) Option {
	return func(o *options) {
		o.maxMemory = bytes
	}
}

// WithGuardianReserveRatio sets the share of MaxMemory reserved for
// buffers awaiting disposal. Above it, every eviction logs a backpressure
// warning. Valid range is [0, 1).
func WithGuardianReserveRatio(ratio float64) Option {
	return func(o *options) {
		o.reserveRatio = ratio
	}
}

// WithDisposeTimeout sets how long one disposal attempt waits for a buffer
// to be released before it is retried later.
func WithDisposeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.disposeTimeout = d
	}
}

// WithMetaTTL sets the idle expiry of cached file metadata.
func WithMetaTTL(d time.Duration) Option {
	return func(o *options) {
		o.metaTTL = d
	}
}

// WithShutdownTimeout bounds how long Close waits for the disposal queue
// to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// WithLogger configures the logger. If nil, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures the metrics sink. If nil, metrics are
// discarded.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithResourceController shares a resource controller with the loaders, so
// Stats can report their off-heap usage.
func WithResourceController(rc *ResourceController) Option {
	return func(o *options) {
		o.resources = rc
	}
}
