// Package metrics exports run and step counters for prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"releasegate/internal/core"
)

const namespace = "releasegate"

// Webhook outcomes counted by EventReceived.
const (
	EventQueued    = "queued"
	EventIgnored   = "ignored"
	EventDuplicate = "duplicate"
	EventRejected  = "rejected"
)

// Metrics owns its registry so several instances can live in one process.
type Metrics struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	events       *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished release runs by status and failure kind.",
		}, []string{"status", "failure_kind"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Finished steps by phase and status.",
		}, []string{"phase", "status"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Received push events by outcome.",
		}, []string{"result"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of each step.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Runs currently executing.",
		}),
	}
	m.registry.MustRegister(
		m.runs, m.steps, m.events, m.stepDuration, m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// StepFinished implements core.Observer.
func (m *Metrics) StepFinished(_ core.Run, step core.StepResult) {
	m.steps.WithLabelValues(string(step.Phase), string(step.Status)).Inc()
	m.stepDuration.WithLabelValues(string(step.Phase)).Observe(step.Duration.Seconds())
}

// RunFinished implements core.Observer.
func (m *Metrics) RunFinished(run core.Run) {
	m.runs.WithLabelValues(string(run.Status), string(run.FailureKind)).Inc()
}

func (m *Metrics) RunStarted() { m.inFlight.Inc() }
func (m *Metrics) RunEnded() { m.inFlight.Dec() }

func (m *Metrics) EventReceived(result string) {
	m.events.WithLabelValues(result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
