// Package metrics provides a Prometheus-compatible registry for entropid.
package metrics

import "time"

// EntropidMetrics holds every metric entropid exposes over --metrics-addr.
type EntropidMetrics struct {
	registry *Registry

	CollectionsTotal    *Counter
	BytesHarvestedTotal *Counter
	BytesEmittedTotal   *Counter
	SourceFailuresTotal *Counter
	SessionsTotal       *Counter

	ActiveSources  *Gauge
	DegradedSources *Gauge
	UptimeSeconds  *Gauge

	CollectionDuration *Histogram
	ConditioningLatency *Histogram
	SourceMinEntropy    *Histogram
}

var startTime = time.Now()

// NewEntropidMetrics creates and registers every entropid metric against
// registry (Default() if nil).
func NewEntropidMetrics(registry *Registry) *EntropidMetrics {
	if registry == nil {
		registry = Default()
	}

	return &EntropidMetrics{
		registry: registry,

		CollectionsTotal: registry.RegisterCounter(
			"collections_total", "Total number of parallel collection rounds run", nil),
		BytesHarvestedTotal: registry.RegisterCounter(
			"bytes_harvested_total", "Total raw bytes harvested across all sources", nil),
		BytesEmittedTotal: registry.RegisterCounter(
			"bytes_emitted_total", "Total conditioned bytes emitted to callers", nil),
		SourceFailuresTotal: registry.RegisterCounter(
			"source_failures_total", "Total transient or panic-recovered source failures", nil),
		SessionsTotal: registry.RegisterCounter(
			"sessions_total", "Total analysis sessions persisted", nil),

		ActiveSources: registry.RegisterGauge(
			"active_sources", "Number of sources currently reporting healthy", nil),
		DegradedSources: registry.RegisterGauge(
			"degraded_sources", "Number of sources currently reporting degraded", nil),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds", "Seconds since this process started", nil),

		CollectionDuration: registry.RegisterHistogram(
			"collection_duration_seconds", "Duration of a parallel collection round", nil, DurationBuckets),
		ConditioningLatency: registry.RegisterHistogram(
			"conditioning_latency_seconds", "Duration of a conditioning gateway call", nil,
			[]float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}),
		SourceMinEntropy: registry.RegisterHistogram(
			"source_min_entropy_bits_per_byte", "Distribution of per-source min-entropy estimates", nil,
			[]float64{0, 1, 2, 3, 4, 5, 6, 7, 7.5, 7.9, 8}),
	}
}

// RecordCollection records one completed parallel collection round.
func (m *EntropidMetrics) RecordCollection(duration time.Duration, rawBytes int, failures int) {
	m.CollectionsTotal.Inc()
	m.CollectionDuration.ObserveDuration(duration)
	m.BytesHarvestedTotal.Add(uint64(rawBytes))
	if failures > 0 {
		m.SourceFailuresTotal.Add(uint64(failures))
	}
}

// RecordEmission records n conditioned bytes handed back to a caller.
func (m *EntropidMetrics) RecordEmission(n int) {
	m.BytesEmittedTotal.Add(uint64(n))
}

// RecordConditioning times one conditioning gateway call.
func (m *EntropidMetrics) RecordConditioning(d time.Duration) {
	m.ConditioningLatency.ObserveDuration(d)
}

// RecordSourceMinEntropy records one source's min-entropy estimate for this
// round, in bits per byte.
func (m *EntropidMetrics) RecordSourceMinEntropy(bitsPerByte float64) {
	m.SourceMinEntropy.Observe(bitsPerByte)
}

// SetHealth sets the active/degraded source gauges from a pool health
// report's tallies.
func (m *EntropidMetrics) SetHealth(active, degraded int) {
	m.ActiveSources.Set(int64(active))
	m.DegradedSources.Set(int64(degraded))
}

// SessionSaved records one persisted analysis session.
func (m *EntropidMetrics) SessionSaved() {
	m.SessionsTotal.Inc()
}

// UpdateUptime refreshes the uptime gauge from this process's start time.
func (m *EntropidMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

var defaultEntropidMetrics *EntropidMetrics

// GetMetrics returns the global entropid metrics instance, creating it
// against the default registry on first use.
func GetMetrics() *EntropidMetrics {
	if defaultEntropidMetrics == nil {
		defaultEntropidMetrics = NewEntropidMetrics(Default())
	}
	return defaultEntropidMetrics
}
