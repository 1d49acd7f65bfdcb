// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hoangtv090103/text-to-video/internal/log"
	"github.com/hoangtv090103/text-to-video/internal/metrics"
)

// Namespace partitions the cache by the kind of external call it fronts.
type Namespace string

const (
	NamespaceScript Namespace = "script"
	NamespaceAudio  Namespace = "audio"
	NamespaceVisual Namespace = "visual"
)

// TTLs holds per-namespace expiry hints. The governor may evict earlier.
type TTLs struct {
	Script time.Duration
	Audio  time.Duration
	Visual time.Duration
}

// DefaultTTLs returns the documented long TTLs.
func DefaultTTLs() TTLs {
	return TTLs{
		Script: 24 * time.Hour,
		Audio:  24 * time.Hour,
		Visual: 24 * time.Hour,
	}
}

func (t TTLs) forNamespace(ns Namespace) time.Duration {
	switch ns {
	case NamespaceScript:
		return t.Script
	case NamespaceAudio:
		return t.Audio
	default:
		return t.Visual
	}
}

// Layer is the namespaced, single-flighted cache over a Backend.
// Concurrent callers computing the same (namespace, key) share one producer
// run; producer failures are never memoised.
type Layer struct {
	backend Backend
	ttls    TTLs
	group   singleflight.Group
}

// NewLayer creates a cache layer over the given backend.
func NewLayer(backend Backend, ttls TTLs) *Layer {
	return &Layer{backend: backend, ttls: ttls}
}

func cacheKey(ns Namespace, key string) string {
	return string(ns) + ":" + key
}

// GetOrCompute returns the cached value for (ns, key) or runs producer to
// compute and cache it. Callers racing on the same key wait for and share
// the in-flight result; distinct keys proceed in parallel.
func (l *Layer) GetOrCompute(ctx context.Context, ns Namespace, key string, producer func(context.Context) ([]byte, error)) ([]byte, error) {
	full := cacheKey(ns, key)

	if val, ok := l.backend.Get(ctx, full); ok {
		metrics.RecordCacheOp(string(ns), "hit")
		return val, nil
	}
	metrics.RecordCacheOp(string(ns), "miss")

	val, err, shared := l.group.Do(full, func() (any, error) {
		// Re-check: another flight may have populated the entry
		// between our miss and acquiring the flight.
		if cached, ok := l.backend.Get(ctx, full); ok {
			return cached, nil
		}
		produced, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		l.backend.Set(ctx, full, produced, l.ttls.forNamespace(ns))
		return produced, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger := log.WithComponentFromContext(ctx, "cache")
		logger.Debug().
			Str("namespace", string(ns)).
			Str("key", key).
			Msg("shared in-flight cache computation")
	}
	return val.([]byte), nil
}

// GetOrComputeJSON is GetOrCompute for JSON-serializable values.
func GetOrComputeJSON[T any](ctx context.Context, l *Layer, ns Namespace, key string, producer func(context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := l.GetOrCompute(ctx, ns, key, func(ctx context.Context) ([]byte, error) {
		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Invalidate removes one entry.
func (l *Layer) Invalidate(ctx context.Context, ns Namespace, key string) {
	l.backend.Delete(ctx, cacheKey(ns, key))
}

// InvalidateAll removes every entry in a namespace.
func (l *Layer) InvalidateAll(ctx context.Context, ns Namespace) int {
	return l.backend.DeletePrefix(ctx, string(ns)+":")
}

// evictChunk bounds one eviction pass.
const evictChunk = 64

// EvictPass drops expired entries and a chunk of least-recently-used ones.
// The resource governor invokes this above the memory cleanup ceiling.
func (l *Layer) EvictPass(ctx context.Context) int {
	n := l.backend.EvictLRU(ctx, evictChunk)
	if n > 0 {
		metrics.RecordCacheOp("all", "evict")
		logger := log.WithComponentFromContext(ctx, "cache")
		logger.Info().
			Int("evicted", n).
			Msg("memory pressure eviction pass")
	}
	return n
}

// Stats exposes the backend counters.
func (l *Layer) Stats() Stats {
	return l.backend.Stats()
}
