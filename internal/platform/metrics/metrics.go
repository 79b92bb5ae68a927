// Package metrics records deploy metrics on a private registry. A CLI run has
// no scrape endpoint, so the registry is written to a textfile at exit.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "apideploy"

// Recorder holds the deploy collectors. A nil Recorder discards everything.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	operations    *prometheus.CounterVec
	failures      *prometheus.CounterVec
	publishes     *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		// Labels: stage (loading, building_integrations, ...)
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each deploy pipeline stage in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		// Labels: kind (role, policy, function), operation (Creation, Update)
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "operations_total",
			Help:      "Entities created or updated on the provider",
		}, []string{"kind", "operation"}),
		// Labels: kind
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "failures_total",
			Help:      "Entity deploys that failed",
		}, []string{"kind"}),
		// Labels: outcome (success, failed)
		publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "publishes_total",
			Help:      "API publications by outcome",
		}, []string{"outcome"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last deploy that completed",
		}),
	}
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) Operation(kind, operation string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(kind, operation).Inc()
}

func (r *Recorder) Failure(kind string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(kind).Inc()
}

func (r *Recorder) Publish(ok bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failed"
	}
	r.publishes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Completed(at time.Time) {
	if r == nil {
		return
	}
	r.lastSuccess.Set(float64(at.Unix()))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes every metric in text exposition format to path, for
// pickup by a node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
