// Package resource governs the resources shared by the heaps of a process.
//
// The Controller provides centralized management of three resource types:
//
//   - Memory: arena footprint reserved when a heap is created (non-blocking, fail-fast)
//   - Concurrency: number of background collection cycles running at once
//   - Sweep pacing: token bucket limiting how many slots per second are swept
//
// # Memory Management
//
// AcquireMemory is non-blocking and returns ErrMemoryLimitExceeded
// immediately if the limit would be exceeded:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//
//	heap, err := cellgc.New(roots, cellgc.WithResourceController(rc))
//	if errors.Is(err, resource.ErrMemoryLimitExceeded) {
//	    // too many heaps for the budget
//	}
//
// # Background Collection Limits
//
// Heaps sharing a controller run at most MaxBackgroundCollections cycles
// concurrently; further cycles wait for a slot.
//
// # Sweep Pacing
//
// A non-zero SweepSlotsPerSec throttles sweeping so a background cycle does
// not compete with the mutator for CPU. Pacing is skipped while a mutator is
// halted waiting for the cycle.
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for arena memory across heaps.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxBackgroundCollections is the maximum number of concurrent cycles.
	// If 0, defaults to 1.
	MaxBackgroundCollections int64

	// SweepSlotsPerSec is the maximum sweep throughput.
	// If 0, unlimited.
	SweepSlotsPerSec int64
}

// Controller manages shared resources (memory, concurrency, sweep pacing).
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Concurrency
	bgSem *semaphore.Weighted

	// Sweep pacing
	sweepLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundCollections <= 0 {
		cfg.MaxBackgroundCollections = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundCollections),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.SweepSlotsPerSec > 0 {
		c.sweepLimiter = rate.NewLimiter(rate.Limit(cfg.SweepSlotsPerSec), int(cfg.SweepSlotsPerSec))
	}

	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory attempts to reserve memory.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireBackground reserves a background collection slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background collection slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground releases a background collection slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// PaceSweep waits until the sweep budget allows scanning slots more slots.
// Requests larger than the bucket are paid in bucket-sized installments, so
// throughput never exceeds SweepSlotsPerSec.
func (c *Controller) PaceSweep(ctx context.Context, slots int) error {
	if c == nil || c.sweepLimiter == nil || slots <= 0 {
		return nil
	}
	burst := c.sweepLimiter.Burst()
	for slots > 0 {
		n := min(slots, burst)
		if err := c.sweepLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		slots -= n
	}
	return nil
}

// TryPaceSweep charges slots against the sweep budget without blocking.
// It returns false if the budget ran out before the whole request was paid;
// installments granted until then stay consumed.
func (c *Controller) TryPaceSweep(slots int) bool {
	if c == nil || c.sweepLimiter == nil || slots <= 0 {
		return true
	}
	burst := c.sweepLimiter.Burst()
	now := time.Now()
	for slots > 0 {
		n := min(slots, burst)
		if !c.sweepLimiter.AllowN(now, n) {
			return false
		}
		slots -= n
	}
	return true
}
