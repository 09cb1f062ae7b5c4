// Package metrics exposes Prometheus collectors for practice sessions, the
// conversation gateway and the deal ledger.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "doorknock"

// Metrics groups every collector the bot reports. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	turns           *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	dealsDecided    *prometheus.CounterVec
	integritySkips  *prometheus.CounterVec
	commands        *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNewMetrics registers a fresh set of collectors with reg and panics on
// duplicate registration.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "practice", Name: "sessions_started_total",
			Help: "Practice sessions started.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "practice", Name: "sessions_ended_total",
			Help: "Practice sessions terminated, by end reason and scoring outcome.",
		}, []string{"reason", "outcome"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "practice", Name: "sessions_active",
			Help: "Practice sessions currently active.",
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "practice", Name: "turns_total",
			Help: "Conversation turns submitted, by result.",
		}, []string{"result"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "request_duration_seconds",
			Help:    "Latency of conversation partner calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		dealsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "deals_decided_total",
			Help: "Deals approved or rejected.",
		}, []string{"outcome"}),
		integritySkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "integrity_skips_total",
			Help: "Stored rows skipped during aggregation because they were malformed.",
		}, []string{"table"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "discord", Name: "commands_total",
			Help: "Slash commands handled, by command and result.",
		}, []string{"command", "result"}),
	}
	reg.MustRegister(
		m.sessionsStarted,
		m.sessionsEnded,
		m.sessionsActive,
		m.turns,
		m.gatewayLatency,
		m.dealsDecided,
		m.integritySkips,
		m.commands,
	)
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
}

// SessionRestored counts a session reloaded from storage as active without
// counting it as newly started.
func (m *Metrics) SessionRestored() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded(reason string, scored bool) {
	if m == nil {
		return
	}
	outcome := "scored"
	if !scored {
		outcome = "unscored"
	}
	m.sessionsEnded.WithLabelValues(reason, outcome).Inc()
	m.sessionsActive.Dec()
}

func (m *Metrics) Turn(result string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(result).Inc()
}

// ObserveGateway records one gateway call.
func (m *Metrics) ObserveGateway(op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.gatewayLatency.WithLabelValues(op, status).Observe(took.Seconds())
}

func (m *Metrics) DealDecided(outcome string) {
	if m == nil {
		return
	}
	m.dealsDecided.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IntegritySkip(table string) {
	if m == nil {
		return
	}
	m.integritySkips.WithLabelValues(table).Inc()
}

// Command counts one handled slash command. result is "ok" or "error".
func (m *Metrics) Command(name, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, result).Inc()
}
