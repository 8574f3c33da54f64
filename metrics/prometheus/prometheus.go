// Package prometheus exports cellgc metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, _ := cellgcprom.New(reg, "myapp")
//	heap, _ := cellgc.New(roots, cellgc.WithMetricsCollector(mc))
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/cellgc"
)

// Collector implements cellgc.MetricsCollector with Prometheus metrics.
type Collector struct {
	allocations   *prometheus.CounterVec
	allocLatency  prometheus.Histogram
	halts         *prometheus.CounterVec
	haltWait      prometheus.Histogram
	cycles        *prometheus.CounterVec
	marked        prometheus.Counter
	reclaimed     prometheus.Counter
	dangling      prometheus.Counter
	survivors     *prometheus.GaugeVec
	phaseDuration *prometheus.HistogramVec
}

var _ cellgc.MetricsCollector = (*Collector)(nil)

// New creates a Collector and registers its metrics with reg. If reg is nil
// prometheus.DefaultRegisterer is used.
func New(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "allocations_total",
			Help:      "Cell allocations by result.",
		}, []string{"result"}),
		allocLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "allocation_duration_seconds",
			Help:      "Allocation latency including halts.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 12),
		}),
		halts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "halts_total",
			Help:      "Allocations that waited for a background cycle, by result.",
		}, []string{"result"}),
		haltWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "halt_duration_seconds",
			Help:      "Time allocations spent halted for collection.",
			Buckets:   prometheus.DefBuckets,
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "cycles_total",
			Help:      "Completed collection cycles by collected arena.",
		}, []string{"arena"}),
		marked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "cells_marked_total",
			Help:      "Cells marked live.",
		}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "cells_reclaimed_total",
			Help:      "Cells returned to the free lists.",
		}),
		dangling: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "dangling_handles_total",
			Help:      "Stale handles reached while marking.",
		}),
		survivors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "survivors",
			Help:      "Cells that survived the last cycle of an arena.",
		}, []string{"arena"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cellgc",
			Name:      "phase_duration_seconds",
			Help:      "Duration of mark and sweep phases.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"phase"}),
	}

	for _, m := range []prometheus.Collector{
		c.allocations, c.allocLatency, c.halts, c.haltWait, c.cycles,
		c.marked, c.reclaimed, c.dangling, c.survivors, c.phaseDuration,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordAllocate implements cellgc.MetricsCollector.
func (c *Collector) RecordAllocate(d time.Duration, err error) {
	c.allocations.WithLabelValues(result(err)).Inc()
	c.allocLatency.Observe(d.Seconds())
}

// RecordHalt implements cellgc.MetricsCollector.
func (c *Collector) RecordHalt(wait time.Duration, err error) {
	c.halts.WithLabelValues(result(err)).Inc()
	c.haltWait.Observe(wait.Seconds())
}

// RecordCycle implements cellgc.MetricsCollector.
func (c *Collector) RecordCycle(s cellgc.CycleStats) {
	arena := s.Target.String()
	c.cycles.WithLabelValues(arena).Inc()
	c.marked.Add(float64(s.Marked))
	c.reclaimed.Add(float64(s.Reclaimed))
	c.dangling.Add(float64(s.Dangling))
	c.survivors.WithLabelValues(arena).Set(float64(s.Survivors))
	c.phaseDuration.WithLabelValues("mark").Observe(s.MarkDuration.Seconds())
	c.phaseDuration.WithLabelValues("sweep").Observe(s.SweepDuration.Seconds())
}
