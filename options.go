package cellgc

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/cellgc/resource"
)

// DefaultCapacity is the number of cells per arena when WithCapacity is not given.
const DefaultCapacity = 4096

type options struct {
	capacity         int
	mode             Mode
	batchSize        int
	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
	tracerProvider   trace.TracerProvider
}

// Option configures a Heap.
type Option func(*options)

// WithCapacity sets the number of cells in each arena. The heap holds twice
// as many cells in total. Capacity is fixed for the lifetime of the heap.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		o.capacity = capacity
	}
}

// WithMode selects who drives collection cycles.
//
// ModeManual is meant for deterministic tests and cooperative hosts: a halted
// allocation then blocks until another goroutine calls CollectStep.
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithBatchSize bounds the number of cells traced or slots swept while the
// collector holds the heap lock. Smaller batches shorten the time a mutator
// waits for the lock; larger ones finish cycles sooner.
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &cellgc.BasicMetricsCollector{}
//	heap, _ := cellgc.New(roots, cellgc.WithMetricsCollector(metrics))
//	// ... use heap ...
//	stats := metrics.GetStats()
//	fmt.Printf("Cycles: %d, reclaimed: %d\n", stats.CycleCount, stats.CellsReclaimed)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := cellgc.NewJSONLogger(slog.LevelInfo)
//	heap, _ := cellgc.New(roots, cellgc.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController shares memory limits, background-cycle slots and
// sweep pacing with other heaps.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithTracerProvider records collection cycles and halts as spans.
// If not set, the global OpenTelemetry provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		capacity:         DefaultCapacity,
		mode:             ModeBackground,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
