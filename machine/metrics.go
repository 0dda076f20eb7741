package machine

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/machina-run/machina/machine/decide"
)

// Metrics collects Prometheus instruments for machine executions.
//
// Instruments (all namespaced "machina_"):
//
//   - steps_total (counter): execution steps taken across all executions.
//   - path_failures_total (counter): paths that entered the failed status.
//   - barrier_merges_total (counter): barrier releases that merged paths.
//   - active_paths (gauge): paths currently in the active status.
//   - waiting_paths (gauge): paths currently parked at barriers.
//   - decision_latency_ms (histogram, label "status"): decision provider
//     round-trip duration. Status is success, error, timeout, or pending.
//
// Register with a dedicated registry for isolation, then expose it:
//
//	registry := prometheus.NewRegistry()
//	metrics := machine.NewMetrics(registry)
//	exec, _ := machine.New(model, provider, machine.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe for concurrent use.
type Metrics struct {
	steps           prometheus.Counter
	pathFailures    prometheus.Counter
	barrierMerges   prometheus.Counter
	activePaths     prometheus.Gauge
	waitingPaths    prometheus.Gauge
	decisionLatency *prometheus.HistogramVec
}

// NewMetrics creates and registers the execution instruments. A nil
// registry falls back to the default global registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "machina",
			Name:      "steps_total",
			Help:      "Execution steps taken across all machine executions",
		}),
		pathFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "machina",
			Name:      "path_failures_total",
			Help:      "Execution paths that terminated in the failed status",
		}),
		barrierMerges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "machina",
			Name:      "barrier_merges_total",
			Help:      "Barrier releases that merged waiting paths into one continuation",
		}),
		activePaths: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "machina",
			Name:      "active_paths",
			Help:      "Paths currently active across live executions",
		}),
		waitingPaths: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "machina",
			Name:      "waiting_paths",
			Help:      "Paths currently parked at barrier nodes",
		}),
		decisionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "machina",
			Name:      "decision_latency_ms",
			Help:      "Decision provider round-trip duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
		}, []string{"status"}),
	}
}

func (m *Metrics) countStep() {
	m.steps.Inc()
}

func (m *Metrics) countPathFailure() {
	m.pathFailures.Inc()
}

func (m *Metrics) countBarrierMerge() {
	m.barrierMerges.Inc()
}

func (m *Metrics) setPathGauges(active, waiting int) {
	m.activePaths.Set(float64(active))
	m.waitingPaths.Set(float64(waiting))
}

func (m *Metrics) observeDecision(elapsed time.Duration, err error) {
	status := "success"
	switch {
	case errors.Is(err, decide.ErrDecisionTimeout), errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case errors.Is(err, decide.ErrAwaitingInput):
		status = "pending"
	case err != nil:
		status = "error"
	}
	m.decisionLatency.WithLabelValues(status).Observe(float64(elapsed.Milliseconds()))
}
