package agent

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/checkagent/internal/agent/jsoncodec"
	"github.com/drblury/checkagent/internal/agent/logging"
	"github.com/drblury/checkagent/internal/agent/pool"
)

// agentMetrics holds the Prometheus collectors for job processing. Collectors
// live on the agent's own registry so multiple agents in one process never
// collide.
type agentMetrics struct {
	jobsStarted   prometheus.Counter
	jobsSucceeded prometheus.Counter
	jobsFailed    *prometheus.CounterVec
	poisonTotal   *prometheus.CounterVec
}

func newAgentMetrics(registerer prometheus.Registerer, inFlight func() float64) *agentMetrics {
	m := &agentMetrics{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkagent",
			Subsystem: "jobs",
			Name:      "started_total",
			Help:      "Total number of jobs admitted into the worker pool",
		}),
		jobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkagent",
			Subsystem: "jobs",
			Name:      "succeeded_total",
			Help:      "Total number of jobs that completed successfully",
		}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkagent",
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Total number of jobs that failed, by failure kind",
		}, []string{"kind"}),
		poisonTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkagent",
			Subsystem: "poison",
			Name:      "messages_total",
			Help:      "Total number of messages forwarded to the poison queue, by reason",
		}, []string{"reason"}),
	}

	inFlightGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "checkagent",
		Subsystem: "jobs",
		Name:      "in_flight",
		Help:      "Number of jobs currently holding a worker pool slot",
	}, inFlight)

	collectors := []prometheus.Collector{
		m.jobsStarted,
		m.jobsSucceeded,
		m.jobsFailed,
		m.poisonTotal,
		inFlightGauge,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}

func (m *agentMetrics) recordStart() {
	m.jobsStarted.Inc()
}

func (m *agentMetrics) recordDone(string) {
	m.jobsSucceeded.Inc()
}

func (m *agentMetrics) recordError(kind string) {
	m.jobsFailed.WithLabelValues(kind).Inc()
}

func (m *agentMetrics) recordPoison(reason string) {
	m.poisonTotal.WithLabelValues(reason).Inc()
}

// hooks returns job hooks that feed the counters.
func (m *agentMetrics) hooks() pool.JobHooks {
	return pool.MetricsHooks(m.recordStart, m.recordDone, m.recordError)
}

// statsHandler serves a JSON snapshot of the worker pool statistics.
func (a *Agent) statsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := jsoncodec.Encode(w, a.controller.Stats()); err != nil {
			a.Logger.Error("Failed to write stats snapshot", err, logging.LogFields{})
		}
	})
}
