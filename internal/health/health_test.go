// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoangtv090103/text-to-video/internal/cache"
	"github.com/hoangtv090103/text-to-video/internal/resilience"
	"github.com/hoangtv090103/text-to-video/internal/resource"
)

type stubPinger struct {
	err error
}

func (p stubPinger) HealthCheck(context.Context) error { return p.err }

func newChecker(redis Pinger) *Checker {
	return New(Config{
		Governor: resource.NewGovernor(resource.Limits{
			MaxConcurrentJobs:   3,
			MaxConcurrentTTS:    2,
			MaxConcurrentVisual: 4,
		}),
		Cache:      cache.NewLayer(cache.NewMemoryBackend(0), cache.DefaultTTLs()),
		Redis:      redis,
		Breakers:   []*resilience.CircuitBreaker{resilience.NewCircuitBreaker("tts", 3, time.Second)},
		QueueLen:   func() int { return 5 },
		ActiveJobs: func() int { return 2 },
	})
}

func TestCheckMemoryBackend(t *testing.T) {
	report := newChecker(nil).Check(context.Background())

	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "memory", report.CacheStore)
	assert.Nil(t, report.RedisOK)
	assert.Equal(t, 5, report.QueueDepth)
	assert.Equal(t, 2, report.ActiveJobs)
	assert.Equal(t, 3, report.Resources.Capacity[resource.SlotJob])
	assert.Equal(t, "closed", report.Breakers["tts"])
}

func TestCheckRedisHealthy(t *testing.T) {
	report := newChecker(stubPinger{}).Check(context.Background())

	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "redis", report.CacheStore)
	require.NotNil(t, report.RedisOK)
	assert.True(t, *report.RedisOK)
}

func TestCheckRedisDownIsDegraded(t *testing.T) {
	report := newChecker(stubPinger{err: errors.New("refused")}).Check(context.Background())

	assert.Equal(t, "degraded", report.Status)
	require.NotNil(t, report.RedisOK)
	assert.False(t, *report.RedisOK)
}

func TestCheckProviderDownIsDegraded(t *testing.T) {
	checker := New(Config{
		Governor: resource.NewGovernor(resource.Limits{
			MaxConcurrentJobs:   1,
			MaxConcurrentTTS:    1,
			MaxConcurrentVisual: 1,
		}),
		Cache: cache.NewLayer(cache.NewMemoryBackend(0), cache.DefaultTTLs()),
		Providers: map[string]Pinger{
			"tts": stubPinger{err: errors.New("connection refused")},
			"llm": stubPinger{},
		},
		QueueLen:   func() int { return 0 },
		ActiveJobs: func() int { return 0 },
	})

	report := checker.Check(context.Background())
	assert.Equal(t, "degraded", report.Status)
	assert.False(t, report.Providers["tts"])
	assert.True(t, report.Providers["llm"])
}
