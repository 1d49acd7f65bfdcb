// SPDX-License-Identifier: MIT

// Package health aggregates liveness signals from the pipeline components.
package health

import (
	"context"
	"time"

	"github.com/hoangtv090103/text-to-video/internal/cache"
	"github.com/hoangtv090103/text-to-video/internal/resilience"
	"github.com/hoangtv090103/text-to-video/internal/resource"
)

// Pinger is the optional backing-store health probe (Redis).
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Report is the health endpoint payload.
type Report struct {
	Status     string            `json:"status"` // ok | degraded
	Uptime     string            `json:"uptime"`
	ActiveJobs int               `json:"active_jobs"`
	QueueDepth int               `json:"queue_depth"`
	Resources  resource.Snapshot `json:"resources"`
	Cache      cache.Stats       `json:"cache"`
	CacheStore string            `json:"cache_store"` // redis | memory
	RedisOK    *bool             `json:"redis_ok,omitempty"`
	Breakers   map[string]string `json:"breakers,omitempty"`  // provider -> state
	Providers  map[string]bool   `json:"providers,omitempty"` // provider -> reachable
}

// Checker gathers the report.
type Checker struct {
	governor   *resource.Governor
	cacheLayer *cache.Layer
	redis      Pinger
	breakers   []*resilience.CircuitBreaker
	providers  map[string]Pinger
	queueLen   func() int
	activeJobs func() int
	started    time.Time
}

// Config wires a Checker. Redis is nil when the in-memory backend is active.
type Config struct {
	Governor   *resource.Governor
	Cache      *cache.Layer
	Redis      Pinger
	Breakers   []*resilience.CircuitBreaker
	Providers  map[string]Pinger
	QueueLen   func() int
	ActiveJobs func() int
}

// New creates a health checker.
func New(cfg Config) *Checker {
	return &Checker{
		governor:   cfg.Governor,
		cacheLayer: cfg.Cache,
		redis:      cfg.Redis,
		breakers:   cfg.Breakers,
		providers:  cfg.Providers,
		queueLen:   cfg.QueueLen,
		activeJobs: cfg.ActiveJobs,
		started:    time.Now(),
	}
}

// Check returns the current health report. The daemon is degraded, never
// down, when Redis is unreachable; the memory cache keeps it serving.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		Status:     "ok",
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		ActiveJobs: c.activeJobs(),
		QueueDepth: c.queueLen(),
		Resources:  c.governor.Snapshot(ctx),
		Cache:      c.cacheLayer.Stats(),
		CacheStore: "memory",
	}

	if len(c.breakers) > 0 {
		report.Breakers = make(map[string]string, len(c.breakers))
		for _, cb := range c.breakers {
			report.Breakers[cb.Name()] = string(cb.State())
		}
	}

	if len(c.providers) > 0 {
		report.Providers = make(map[string]bool, len(c.providers))
		for name, p := range c.providers {
			ok := p.HealthCheck(ctx) == nil
			report.Providers[name] = ok
			if !ok {
				report.Status = "degraded"
			}
		}
	}

	if c.redis != nil {
		report.CacheStore = "redis"
		ok := c.redis.HealthCheck(ctx) == nil
		report.RedisOK = &ok
		if !ok {
			report.Status = "degraded"
		}
	}
	return report
}
