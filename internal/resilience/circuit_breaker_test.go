// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

var errProvider = errors.New("provider down")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 30*time.Second)

	fail := func() error { return errProvider }

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.Execute(fail), errProvider)
		assert.Equal(t, StateClosed, cb.State())
	}

	// Third consecutive failure trips the breaker.
	require.ErrorIs(t, cb.Execute(fail), errProvider)
	assert.Equal(t, StateOpen, cb.State())
}

func TestOpenBreakerShortCircuits(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 30*time.Second, WithClock(clk))

	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "wrapped call must not run while open")
}

func TestHalfOpenProbe(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 30*time.Second, WithClock(clk))

	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.Equal(t, StateOpen, cb.State())

	clk.advance(31 * time.Second)

	// Failed probe reopens.
	require.ErrorIs(t, cb.Execute(func() error { return errProvider }), errProvider)
	assert.Equal(t, StateOpen, cb.State())

	clk.advance(31 * time.Second)

	// Successful probe closes.
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCancellationDoesNotCountAsFailure(t *testing.T) {
	cb := NewCircuitBreaker("tts", 3, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Several scenes of one cancelled job abandon their calls before the
	// provider is ever reached.
	for i := 0; i < 5; i++ {
		err := cb.Execute(func() error {
			return Retry(ctx, "tts_synthesize", RetryPolicy{MaxAttempts: 3}, func(context.Context) error {
				t.Fatal("provider must not be called after cancellation")
				return nil
			})
		})
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.State(), "other jobs' calls must still pass")

	// Genuine provider failures still trip the breaker.
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Execute(func() error { return errProvider }), errProvider)
	}
	assert.Equal(t, StateOpen, cb.State())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 30*time.Second)

	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.NoError(t, cb.Execute(func() error { return nil }))

	// The counter restarted; two more failures do not trip a threshold of 3.
	require.Error(t, cb.Execute(func() error { return errProvider }))
	require.Error(t, cb.Execute(func() error { return errProvider }))
	assert.Equal(t, StateClosed, cb.State())
}
