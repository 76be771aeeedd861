// Package metrics provides Prometheus instrumentation for the ddnsd engine.
// Metric names use the ddnsd_ prefix.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the common Prometheus namespace for every collector below.
const Namespace = "ddnsd"

// Recorder owns the engine's Prometheus collectors. Unlike a set of package
// globals, a Recorder is constructed against a caller-supplied Registerer so
// that tests can register it against a private registry and multiple engine
// instances in the same process never collide on collector registration.
type Recorder struct {
	BuildInfo              *prometheus.GaugeVec
	IPChangesTotal         prometheus.Counter
	UpdateAttemptsTotal    *prometheus.CounterVec
	UpdateDurationSeconds  *prometheus.HistogramVec
	RecordsStateTotal      prometheus.Gauge
	StateStoreErrorsTotal  prometheus.Counter
	EventChannelDropped    prometheus.Counter
}

// NewRecorder creates and registers the ddnsd collector set against reg. Use
// prometheus.NewRegistry() in tests and prometheus.DefaultRegisterer in the
// running daemon.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		BuildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "build_info",
			Help:      "Build metadata, value is always 1.",
		}, []string{"version", "go_version"}),

		IPChangesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ip_changes_total",
			Help:      "Total number of IP change events processed by the engine.",
		}),

		UpdateAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "update_attempts_total",
			Help:      "Total provider update attempts, by record and outcome.",
		}, []string{"record", "outcome"}),

		UpdateDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "update_duration_seconds",
			Help:      "Wall-clock time spent in a single provider update call, by record.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"record"}),

		RecordsStateTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "records_state_total",
			Help:      "Number of records currently tracked in the state store.",
		}),

		StateStoreErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_store_errors_total",
			Help:      "Total state store read/write failures.",
		}),

		EventChannelDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "event_channel_dropped_total",
			Help:      "Total EngineEvent values dropped because the outbound channel was full.",
		}),
	}
}

// SetBuildInfo records the running build's version and Go runtime version.
func (r *Recorder) SetBuildInfo(version, goVersion string) {
	r.BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// Outcome labels used with UpdateAttemptsTotal.
const (
	OutcomeUpdated   = "updated"
	OutcomeCreated   = "created"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// The methods below satisfy pkg/engine.Recorder, letting the engine
// instrument itself through this collector set without importing
// internal/metrics or Prometheus directly.

// IPChange increments IPChangesTotal.
func (r *Recorder) IPChange() { r.IPChangesTotal.Inc() }

// UpdateAttempt increments UpdateAttemptsTotal for record and outcome.
func (r *Recorder) UpdateAttempt(record, outcome string) {
	r.UpdateAttemptsTotal.WithLabelValues(record, outcome).Inc()
}

// UpdateDuration observes d in UpdateDurationSeconds for record.
func (r *Recorder) UpdateDuration(record string, d time.Duration) {
	r.UpdateDurationSeconds.WithLabelValues(record).Observe(d.Seconds())
}

// EventDropped increments EventChannelDropped.
func (r *Recorder) EventDropped() { r.EventChannelDropped.Inc() }

// StateStoreError increments StateStoreErrorsTotal.
func (r *Recorder) StateStoreError() { r.StateStoreErrorsTotal.Inc() }

// RecordsState sets RecordsStateTotal to n.
func (r *Recorder) RecordsState(n int) { r.RecordsStateTotal.Set(float64(n)) }
