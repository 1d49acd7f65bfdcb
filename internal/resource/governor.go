// SPDX-License-Identifier: MIT

// Package resource bounds the process's concurrent load with per-kind
// permits and soft CPU/memory ceilings.
package resource

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/semaphore"

	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/metrics"
)

// SlotKind names one bounded concurrency domain.
type SlotKind string

const (
	SlotJob    SlotKind = "job"
	SlotTTS    SlotKind = "tts"
	SlotVisual SlotKind = "visual"
)

// ErrResourceExhausted is returned by TryAcquire when no permit became
// available within the timeout. The job stays queued; this is not terminal.
var ErrResourceExhausted = errors.New("resource exhausted")

// Limits configures the governor.
type Limits struct {
	MaxConcurrentJobs    int
	MaxConcurrentTTS     int
	MaxConcurrentVisual  int
	CPUSoftCeiling       float64 // percent
	MemorySoftCeiling    float64 // percent
	MemoryCleanupCeiling float64 // percent
}

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentJobs:    3,
		MaxConcurrentTTS:     2,
		MaxConcurrentVisual:  4,
		CPUSoftCeiling:       80,
		MemorySoftCeiling:    85,
		MemoryCleanupCeiling: 70,
	}
}

// Snapshot is the current load picture for health reporting.
type Snapshot struct {
	CPUPercent    float64          `json:"cpu_percent"`
	MemoryPercent float64          `json:"memory_percent"`
	InUse         map[SlotKind]int `json:"in_use"`
	Capacity      map[SlotKind]int `json:"capacity"`
}

// sampler abstracts system load sampling for tests.
type sampler interface {
	Sample(ctx context.Context) (cpuPct, memPct float64)
}

type psutilSampler struct{}

func (psutilSampler) Sample(ctx context.Context) (float64, float64) {
	var cpuPct, memPct float64
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		memPct = vm.UsedPercent
	}
	return cpuPct, memPct
}

// slot is one counting semaphore plus its bookkeeping.
type slot struct {
	sem      *semaphore.Weighted
	capacity int
	inUse    int
}

// Governor is the process-wide resource gate. Waiters on a kind are served
// FIFO by the underlying weighted semaphore.
type Governor struct {
	limits  Limits
	sampler sampler

	mu    sync.Mutex
	slots map[SlotKind]*slot

	// cleanup is invoked when memory exceeds the cleanup ceiling,
	// wired to the cache layer's eviction pass.
	cleanup func(ctx context.Context)

	// pressure re-check interval while above a soft ceiling.
	recheckEvery time.Duration
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithSampler overrides the system load sampler (tests).
func WithSampler(s sampler) GovernorOption {
	return func(g *Governor) { g.sampler = s }
}

// WithRecheckInterval overrides the pressure spin interval (tests).
func WithRecheckInterval(d time.Duration) GovernorOption {
	return func(g *Governor) { g.recheckEvery = d }
}

// NewGovernor creates a resource governor with the given limits.
func NewGovernor(limits Limits, opts ...GovernorOption) *Governor {
	if limits.MaxConcurrentJobs <= 0 {
		limits.MaxConcurrentJobs = 3
	}
	if limits.MaxConcurrentTTS <= 0 {
		limits.MaxConcurrentTTS = 2
	}
	if limits.MaxConcurrentVisual <= 0 {
		limits.MaxConcurrentVisual = 4
	}

	g := &Governor{
		limits:       limits,
		sampler:      psutilSampler{},
		recheckEvery: 500 * time.Millisecond,
		slots: map[SlotKind]*slot{
			SlotJob:    {sem: semaphore.NewWeighted(int64(limits.MaxConcurrentJobs)), capacity: limits.MaxConcurrentJobs},
			SlotTTS:    {sem: semaphore.NewWeighted(int64(limits.MaxConcurrentTTS)), capacity: limits.MaxConcurrentTTS},
			SlotVisual: {sem: semaphore.NewWeighted(int64(limits.MaxConcurrentVisual)), capacity: limits.MaxConcurrentVisual},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetCleanupFunc wires the eviction pass triggered above the cleanup ceiling.
func (g *Governor) SetCleanupFunc(fn func(ctx context.Context)) {
	g.mu.Lock()
	g.cleanup = fn
	g.mu.Unlock()
}

// Permit is a held slot. Release is idempotent and must run on every exit
// path of the caller.
type Permit struct {
	once sync.Once
	g    *Governor
	kind SlotKind
}

// Release returns the permit to the governor.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		s := p.g.slots[p.kind]
		s.sem.Release(1)
		p.g.mu.Lock()
		s.inUse--
		metrics.SetSlotsInUse(string(p.kind), s.inUse)
		p.g.mu.Unlock()
	})
}

// Acquire blocks until a permit of the requested kind is available and
// system load is below the soft ceilings. It fails only on cancellation.
func (g *Governor) Acquire(ctx context.Context, kind SlotKind) (*Permit, error) {
	if err := g.waitForHeadroom(ctx); err != nil {
		return nil, err
	}

	s, ok := g.slots[kind]
	if !ok {
		return nil, errors.New("unknown slot kind: " + string(kind))
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return g.granted(kind, s), nil
}

// TryAcquire is Acquire with a deadline; it fails with ErrResourceExhausted
// when no permit became available in time.
func (g *Governor) TryAcquire(ctx context.Context, kind SlotKind, timeout time.Duration) (*Permit, error) {
	s, ok := g.slots[kind]
	if !ok {
		return nil, errors.New("unknown slot kind: " + string(kind))
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.waitForHeadroom(tctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrResourceExhausted
	}
	if err := s.sem.Acquire(tctx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrResourceExhausted
	}
	return g.granted(kind, s), nil
}

func (g *Governor) granted(kind SlotKind, s *slot) *Permit {
	g.mu.Lock()
	s.inUse++
	metrics.SetSlotsInUse(string(kind), s.inUse)
	g.mu.Unlock()
	return &Permit{g: g, kind: kind}
}

// waitForHeadroom spins on short waits while CPU or memory sit above their
// soft ceilings. Above the cleanup ceiling it triggers the cache eviction
// pass before re-checking.
func (g *Governor) waitForHeadroom(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "governor")
	for {
		cpuPct, memPct := g.sampler.Sample(ctx)

		if memPct > g.limits.MemoryCleanupCeiling {
			g.mu.Lock()
			cleanup := g.cleanup
			g.mu.Unlock()
			if cleanup != nil {
				cleanup(ctx)
				_, memPct = g.sampler.Sample(ctx)
			}
		}

		cpuOK := g.limits.CPUSoftCeiling <= 0 || cpuPct < g.limits.CPUSoftCeiling
		memOK := g.limits.MemorySoftCeiling <= 0 || memPct < g.limits.MemorySoftCeiling
		if cpuOK && memOK {
			return nil
		}

		logger.Warn().
			Float64("cpu_percent", cpuPct).
			Float64("memory_percent", memPct).
			Msg("system load above soft ceiling, waiting")

		select {
		case <-time.After(g.recheckEvery):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Snapshot returns current CPU%, memory% and per-kind slot usage.
func (g *Governor) Snapshot(ctx context.Context) Snapshot {
	cpuPct, memPct := g.sampler.Sample(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
		InUse:         make(map[SlotKind]int, len(g.slots)),
		Capacity:      make(map[SlotKind]int, len(g.slots)),
	}
	for kind, s := range g.slots {
		snap.InUse[kind] = s.inUse
		snap.Capacity[kind] = s.capacity
	}
	return snap
}
