// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus instruments shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "t2v_jobs_total",
		Help: "Jobs by terminal status",
	}, []string{"status"})

	jobPhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "t2v_job_phase_transitions_total",
		Help: "Job phase transitions",
	}, []string{"phase"})

	jobsInProcessing = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "t2v_jobs_processing",
		Help: "Jobs currently in processing",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "t2v_queue_depth",
		Help: "Jobs waiting in the priority queue",
	})

	sceneAssets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "t2v_scene_assets_total",
		Help: "Per-scene asset outcomes",
	}, []string{"kind", "outcome"})

	externalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "t2v_external_calls_total",
		Help: "Calls to external providers",
	}, []string{"provider", "outcome"})

	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "t2v_retry_attempts_total",
		Help: "Retry attempts by operation",
	}, []string{"operation"})

	cacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "t2v_cache_ops_total",
		Help: "Cache operations by namespace and outcome",
	}, []string{"namespace", "outcome"})

	slotsInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "t2v_resource_slots_in_use",
		Help: "Resource governor slots currently held",
	}, []string{"kind"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "t2v_circuit_breaker_state",
		Help: "Circuit breaker state by component (active state is 1, others 0)",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "t2v_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to open",
	}, []string{"component", "reason"})
)

// RecordJobDone increments the terminal status counter.
func RecordJobDone(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// RecordPhase increments the phase transition counter.
func RecordPhase(phase string) {
	jobPhaseTransitions.WithLabelValues(phase).Inc()
}

// SetJobsProcessing records the number of jobs holding a job slot.
func SetJobsProcessing(n int) {
	jobsInProcessing.Set(float64(n))
}

// SetQueueDepth records the current queue depth.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordSceneAsset records one audio/visual outcome ("success" or "failed").
func RecordSceneAsset(kind, outcome string) {
	sceneAssets.WithLabelValues(kind, outcome).Inc()
}

// RecordExternalCall records a provider call outcome.
func RecordExternalCall(provider, outcome string) {
	externalCalls.WithLabelValues(provider, outcome).Inc()
}

// RecordRetry increments the retry counter for an operation.
func RecordRetry(operation string) {
	retryAttempts.WithLabelValues(operation).Inc()
}

// RecordCacheOp records "hit", "miss" or "evict" per namespace.
func RecordCacheOp(namespace, outcome string) {
	cacheOps.WithLabelValues(namespace, outcome).Inc()
}

// SetSlotsInUse records held permits for a slot kind.
func SetSlotsInUse(kind string, n int) {
	slotsInUse.WithLabelValues(kind).Set(float64(n))
}

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(value)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when a breaker opens.
func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}
