package cellgc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	var m BasicMetricsCollector

	m.RecordAllocate(10*time.Nanosecond, nil)
	m.RecordAllocate(30*time.Nanosecond, errors.New("boom"))
	m.RecordHalt(time.Millisecond, nil)
	m.RecordCycle(CycleStats{Marked: 3, Reclaimed: 5, MarkDuration: 4, SweepDuration: 6})
	m.RecordCycle(CycleStats{Marked: 1, Reclaimed: 1, MarkDuration: 10, SweepDuration: 10})

	s := m.GetStats()
	assert.Equal(t, int64(2), s.AllocateCount)
	assert.Equal(t, int64(1), s.AllocateErrors)
	assert.Equal(t, int64(20), s.AllocateAvgNanos)
	assert.Equal(t, int64(1), s.HaltCount)
	assert.Equal(t, time.Millisecond.Nanoseconds(), s.HaltTotalNanos)
	assert.Equal(t, int64(2), s.CycleCount)
	assert.Equal(t, int64(4), s.CellsMarked)
	assert.Equal(t, int64(6), s.CellsReclaimed)
	assert.Equal(t, int64(15), s.CycleAvgNanos)
}

func TestBasicMetricsCollector_Empty(t *testing.T) {
	var m BasicMetricsCollector
	assert.Equal(t, BasicMetricsStats{}, m.GetStats())
}

func TestNoopMetricsCollector(t *testing.T) {
	var mc MetricsCollector = NoopMetricsCollector{}
	assert.NotPanics(t, func() {
		mc.RecordAllocate(time.Second, nil)
		mc.RecordHalt(time.Second, nil)
		mc.RecordCycle(CycleStats{})
	})
}
