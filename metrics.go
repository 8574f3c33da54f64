package cellgc

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordAllocate is called after each allocation.
	// duration includes any halt, err is nil if successful.
	RecordAllocate(duration time.Duration, err error)

	// RecordHalt is called when an allocation stops waiting for a
	// background cycle. err is non-nil if the wait was abandoned.
	RecordHalt(wait time.Duration, err error)

	// RecordCycle is called after each completed collection cycle.
	RecordCycle(stats CycleStats)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocate(time.Duration, error) {}
func (NoopMetricsCollector) RecordHalt(time.Duration, error)     {}
func (NoopMetricsCollector) RecordCycle(CycleStats)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocateCount      atomic.Int64
	AllocateErrors     atomic.Int64
	AllocateTotalNanos atomic.Int64
	HaltCount          atomic.Int64
	HaltErrors         atomic.Int64
	HaltTotalNanos     atomic.Int64
	CycleCount         atomic.Int64
	CellsMarked        atomic.Int64
	CellsReclaimed     atomic.Int64
	CycleTotalNanos    atomic.Int64
}

// RecordAllocate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocate(duration time.Duration, err error) {
	b.AllocateCount.Add(1)
	b.AllocateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AllocateErrors.Add(1)
	}
}

// RecordHalt implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHalt(wait time.Duration, err error) {
	b.HaltCount.Add(1)
	b.HaltTotalNanos.Add(wait.Nanoseconds())
	if err != nil {
		b.HaltErrors.Add(1)
	}
}

// RecordCycle implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCycle(s CycleStats) {
	b.CycleCount.Add(1)
	b.CellsMarked.Add(int64(s.Marked))
	b.CellsReclaimed.Add(int64(s.Reclaimed))
	b.CycleTotalNanos.Add((s.MarkDuration + s.SweepDuration).Nanoseconds())
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocateCount:    b.AllocateCount.Load(),
		AllocateErrors:   b.AllocateErrors.Load(),
		AllocateAvgNanos: avg(b.AllocateTotalNanos.Load(), b.AllocateCount.Load()),
		HaltCount:        b.HaltCount.Load(),
		HaltErrors:       b.HaltErrors.Load(),
		HaltTotalNanos:   b.HaltTotalNanos.Load(),
		CycleCount:       b.CycleCount.Load(),
		CellsMarked:      b.CellsMarked.Load(),
		CellsReclaimed:   b.CellsReclaimed.Load(),
		CycleAvgNanos:    avg(b.CycleTotalNanos.Load(), b.CycleCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocateCount    int64
	AllocateErrors   int64
	AllocateAvgNanos int64
	HaltCount        int64
	HaltErrors       int64
	HaltTotalNanos   int64
	CycleCount       int64
	CellsMarked      int64
	CellsReclaimed   int64
	CycleAvgNanos    int64
}
