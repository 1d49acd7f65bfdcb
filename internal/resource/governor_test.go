// SPDX-License-Identifier: MIT

package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// calmSampler reports an idle system.
type calmSampler struct{}

func (calmSampler) Sample(context.Context) (float64, float64) { return 10, 20 }

// hotSampler reports load above the ceilings until released.
type hotSampler struct {
	hot atomic.Bool
}

func (s *hotSampler) Sample(context.Context) (float64, float64) {
	if s.hot.Load() {
		return 95, 95
	}
	return 10, 20
}

func testLimits() Limits {
	return Limits{
		MaxConcurrentJobs:    3,
		MaxConcurrentTTS:     2,
		MaxConcurrentVisual:  4,
		CPUSoftCeiling:       80,
		MemorySoftCeiling:    85,
		MemoryCleanupCeiling: 70,
	}
}

func TestAcquireBoundsConcurrency(t *testing.T) {
	g := NewGovernor(testLimits(), WithSampler(calmSampler{}))
	ctx := context.Background()

	// TTS capacity is 2: two acquisitions succeed immediately.
	p1, err := g.Acquire(ctx, SlotTTS)
	require.NoError(t, err)
	p2, err := g.Acquire(ctx, SlotTTS)
	require.NoError(t, err)

	// The third must block until a permit is released.
	third := make(chan struct{})
	go func() {
		p, err := g.Acquire(ctx, SlotTTS)
		assert.NoError(t, err)
		p.Release()
		close(third)
	}()

	select {
	case <-third:
		t.Fatal("third acquire should have blocked at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	p1.Release()
	select {
	case <-third:
	case <-time.After(time.Second):
		t.Fatal("third acquire never unblocked after release")
	}
	p2.Release()
}

func TestTryAcquireExhaustion(t *testing.T) {
	g := NewGovernor(testLimits(), WithSampler(calmSampler{}))
	ctx := context.Background()

	var held []*Permit
	for i := 0; i < 2; i++ {
		p, err := g.TryAcquire(ctx, SlotTTS, 100*time.Millisecond)
		require.NoError(t, err)
		held = append(held, p)
	}

	_, err := g.TryAcquire(ctx, SlotTTS, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrResourceExhausted)

	for _, p := range held {
		p.Release()
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := NewGovernor(testLimits(), WithSampler(calmSampler{}))
	ctx := context.Background()

	p, err := g.Acquire(ctx, SlotJob)
	require.NoError(t, err)
	p.Release()
	p.Release() // second release must not free a phantom permit

	// All three job permits remain available.
	for i := 0; i < 3; i++ {
		q, err := g.TryAcquire(ctx, SlotJob, 50*time.Millisecond)
		require.NoError(t, err)
		defer q.Release()
	}
	_, err = g.TryAcquire(ctx, SlotJob, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrResourceExhausted)
}

func TestAcquireWaitsForHeadroom(t *testing.T) {
	sampler := &hotSampler{}
	sampler.hot.Store(true)
	g := NewGovernor(testLimits(), WithSampler(sampler), WithRecheckInterval(5*time.Millisecond))

	acquired := make(chan struct{})
	go func() {
		p, err := g.Acquire(context.Background(), SlotJob)
		assert.NoError(t, err)
		p.Release()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should wait while load is above the ceiling")
	case <-time.After(30 * time.Millisecond):
	}

	sampler.hot.Store(false)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire never proceeded after load dropped")
	}
}

func TestCleanupTriggeredAboveCeiling(t *testing.T) {
	sampler := &hotSampler{}
	sampler.hot.Store(true)
	g := NewGovernor(testLimits(), WithSampler(sampler), WithRecheckInterval(5*time.Millisecond))

	var once sync.Once
	cleaned := make(chan struct{})
	g.SetCleanupFunc(func(context.Context) {
		once.Do(func() { close(cleaned) })
		sampler.hot.Store(false)
	})

	p, err := g.Acquire(context.Background(), SlotJob)
	require.NoError(t, err)
	p.Release()

	select {
	case <-cleaned:
	case <-time.After(time.Second):
		t.Fatal("cleanup was not invoked above the memory ceiling")
	}
}

func TestAcquireCancelled(t *testing.T) {
	g := NewGovernor(testLimits(), WithSampler(calmSampler{}))
	ctx := context.Background()

	p1, err := g.Acquire(ctx, SlotTTS)
	require.NoError(t, err)
	p2, err := g.Acquire(ctx, SlotTTS)
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := g.Acquire(cctx, SlotTTS)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not return")
	}

	p1.Release()
	p2.Release()
}

func TestSnapshot(t *testing.T) {
	g := NewGovernor(testLimits(), WithSampler(calmSampler{}))
	ctx := context.Background()

	p, err := g.Acquire(ctx, SlotVisual)
	require.NoError(t, err)
	defer p.Release()

	snap := g.Snapshot(ctx)
	assert.Equal(t, 10.0, snap.CPUPercent)
	assert.Equal(t, 1, snap.InUse[SlotVisual])
	assert.Equal(t, 4, snap.Capacity[SlotVisual])
	assert.Equal(t, 0, snap.InUse[SlotJob])
	assert.Equal(t, 3, snap.Capacity[SlotJob])
}
