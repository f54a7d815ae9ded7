// Package metrics exposes Prometheus collectors for margin computations.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/simm/internal/modules/simm"
)

// Registry holds all margin metrics. It implements simm.Observer and
// runs.Recorder.
type Registry struct {
	registry *prometheus.Registry

	ComputeDuration *prometheus.HistogramVec
	FloorEvents     *prometheus.CounterVec
	Runs            *prometheus.CounterVec
	MemoEntries     prometheus.Gauge
}

// NewRegistry creates a registry with the margin metrics and the Go runtime
// collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		ComputeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simm_compute_duration_seconds",
				Help:    "Duration of margin computations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"result"},
		),

		FloorEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simm_variance_floor_events_total",
				Help: "Negative variances floored at zero, by risk class and margin type",
			},
			[]string{"risk_class", "margin_type"},
		),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simm_runs_total",
				Help: "Stored margin runs by outcome",
			},
			[]string{"result"},
		),

		MemoEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "simm_memo_entries",
				Help: "Bucket results currently held in the memo",
			},
		),
	}

	r.registry.MustRegister(
		r.ComputeDuration,
		r.FloorEvents,
		r.Runs,
		r.MemoEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) ObserveCompute(d time.Duration, err error) {
	r.ComputeDuration.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

func (r *Registry) ObserveFloor(ev simm.FloorEvent) {
	r.FloorEvents.WithLabelValues(ev.RiskClass.String(), ev.MarginType.String()).Inc()
}

func (r *Registry) ObserveMemo(entries int) {
	r.MemoEntries.Set(float64(entries))
}

func (r *Registry) ObserveRun(err error) {
	r.Runs.WithLabelValues(outcome(err)).Inc()
}

// outcome classifies an error into a bounded label value.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, simm.ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, simm.ErrEnsembleMismatch):
		return "ensemble_mismatch"
	default:
		return "error"
	}
}
