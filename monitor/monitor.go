// Package monitor exposes the Prometheus metrics of the game server.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing,
// so components can run without a registry in tests.
type Metrics struct {
	Moves           *prometheus.CounterVec
	Merges          prometheus.Counter
	GamesStarted    prometheus.Counter
	AgentRequests   *prometheus.CounterVec
	StaleResponses  *prometheus.CounterVec
	MalformedResult prometheus.Counter
	ActiveSessions  prometheus.Gauge
	DecisionLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Number of moves that changed the grid",
		}, []string{"source"}),
		Merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "Number of tile merges",
		}),
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Number of fresh games set up",
		}),
		AgentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_requests_total",
			Help:      "Number of decision requests sent to agents",
		}, []string{"kind"}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_stale_responses_total",
			Help:      "Number of agent responses dropped for a superseded game",
		}, []string{"kind"}),
		MalformedResult: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_malformed_results_total",
			Help:      "Number of opponent placements that pointed at an unusable cell",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions held in memory",
		}),
		DecisionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_decision_seconds",
			Help:      "Time taken by an agent to answer a request",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.Moves,
		m.Merges,
		m.GamesStarted,
		m.AgentRequests,
		m.StaleResponses,
		m.MalformedResult,
		m.ActiveSessions,
		m.DecisionLatency,
	)

	return m
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) IncMoves(source string) {
	if m == nil {
		return
	}
	m.Moves.WithLabelValues(source).Inc()
}

func (m *Metrics) AddMerges(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Merges.Add(float64(n))
}

func (m *Metrics) IncGamesStarted() {
	if m == nil {
		return
	}
	m.GamesStarted.Inc()
}

func (m *Metrics) IncAgentRequests(kind string) {
	if m == nil {
		return
	}
	m.AgentRequests.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncStaleResponses(kind string) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncMalformedResults() {
	if m == nil {
		return
	}
	m.MalformedResult.Inc()
}

func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

func (m *Metrics) ObserveDecision(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.DecisionLatency.WithLabelValues(kind).Observe(d.Seconds())
}
