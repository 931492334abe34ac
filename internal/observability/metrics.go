// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Voting metrics
	VotesCast        *prometheus.CounterVec
	VotesRejected    *prometheus.CounterVec
	Finalizations    *prometheus.CounterVec
	Settlements      *prometheus.CounterVec
	NotifyFailures   *prometheus.CounterVec
	ReplayMismatches prometheus.Counter

	// Q&A metrics
	QuestionsCreated prometheus.Counter
	AnswersCreated   prometheus.Counter
	RankingLatency   prometheus.Histogram

	// Ledger metrics
	LedgerCallLatency *prometheus.HistogramVec
	LedgerCallErrors  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Live feed metrics
	WSSubscribers prometheus.Gauge

	// Health metrics
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "bounty_qa"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Voting metrics
		VotesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voting",
			Name:      "votes_cast_total",
			Help:      "Total number of votes recorded by verdict",
		}, []string{"verdict"}),
		VotesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voting",
			Name:      "votes_rejected_total",
			Help:      "Total number of rejected vote attempts by reason",
		}, []string{"reason"}),
		Finalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voting",
			Name:      "finalizations_total",
			Help:      "Total number of answers finalized by disposition",
		}, []string{"disposition"}),
		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voting",
			Name:      "settlements_total",
			Help:      "Total number of escrow settlements by status",
		}, []string{"status"}),
		NotifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voting",
			Name:      "notify_failures_total",
			Help:      "Total number of failed event deliveries by sink",
		}, []string{"sink"}),
		ReplayMismatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voting",
			Name:      "replay_mismatches_total",
			Help:      "Total number of answers whose stored tally diverged from replay",
		}),

		// Q&A metrics
		QuestionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qa",
			Name:      "questions_created_total",
			Help:      "Total number of questions created",
		}),
		AnswersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "qa",
			Name:      "answers_created_total",
			Help:      "Total number of answers created",
		}),
		RankingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "qa",
			Name:      "ranking_latency_seconds",
			Help:      "Question ranking latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Ledger metrics
		LedgerCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_latency_seconds",
			Help:      "Ledger service call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		LedgerCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_errors_total",
			Help:      "Total number of failed ledger service calls",
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Live feed metrics
		WSSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of connected websocket subscribers",
		}),

		// Health metrics
		UptimeSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordVoteCast increments the votes cast counter.
func RecordVoteCast(verdict bool) {
	DefaultMetrics.VotesCast.WithLabelValues(strconv.FormatBool(verdict)).Inc()
}

// RecordVoteRejected increments the rejected votes counter.
func RecordVoteRejected(reason string) {
	DefaultMetrics.VotesRejected.WithLabelValues(reason).Inc()
}

// RecordFinalization increments the finalizations counter.
func RecordFinalization(disposition string) {
	DefaultMetrics.Finalizations.WithLabelValues(disposition).Inc()
}

// RecordSettlement records an escrow settlement attempt.
func RecordSettlement(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.Settlements.WithLabelValues(status).Inc()
}

// RecordNotifyFailure records a failed event delivery.
func RecordNotifyFailure(sink string) {
	DefaultMetrics.NotifyFailures.WithLabelValues(sink).Inc()
}

// RecordReplayMismatch increments the replay mismatch counter.
func RecordReplayMismatch() {
	DefaultMetrics.ReplayMismatches.Inc()
}

// RecordQuestionCreated increments the questions created counter.
func RecordQuestionCreated() {
	DefaultMetrics.QuestionsCreated.Inc()
}

// RecordAnswerCreated increments the answers created counter.
func RecordAnswerCreated() {
	DefaultMetrics.AnswersCreated.Inc()
}

// RecordRankingLatency records question ranking latency.
func RecordRankingLatency(seconds float64) {
	DefaultMetrics.RankingLatency.Observe(seconds)
}

// RecordLedgerCall records ledger call metrics.
func RecordLedgerCall(method string, seconds float64, err error) {
	DefaultMetrics.LedgerCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.LedgerCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetSubscribers updates the websocket subscribers gauge.
func SetSubscribers(n int) {
	DefaultMetrics.WSSubscribers.Set(float64(n))
}
