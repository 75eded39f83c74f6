package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/crucible/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for test runs.
type Metrics struct {
	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	OutputLines *prometheus.CounterVec
	Active      prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the collectors and registers them on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crucible_runs_total",
				Help: "Total number of finished test runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crucible_run_duration_seconds",
				Help:    "Duration of test runs by outcome",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		OutputLines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crucible_output_lines_total",
				Help: "Total number of classified output lines",
			},
			[]string{"origin", "severity"},
		),
		Active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crucible_run_active",
				Help: "1 while a verification process is running or stopping",
			},
		),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.Runs, m.RunDuration, m.OutputLines, m.Active)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(_ context.Context, ev domain.StateEvent) {
			switch {
			case ev.To == domain.StateRunning:
				m.Active.Set(1)
			case ev.To.IsTerminal() && ev.From.IsActive():
				m.Active.Set(0)
			}
		},
		OnLog: func(_ context.Context, ev domain.LogEvent) {
			m.OutputLines.WithLabelValues(string(ev.Origin), string(ev.Severity)).Inc()
		},
		OnRunFinish: func(_ context.Context, run domain.TestRun) {
			outcome := string(run.State)
			m.Runs.WithLabelValues(outcome).Inc()
			m.RunDuration.WithLabelValues(outcome).Observe(run.Duration().Seconds())
		},
	}
}
