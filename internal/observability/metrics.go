// Package observability provides Prometheus metrics and component health
// checks for the bot.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streme"

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Pipeline metrics
	MentionsProcessed *prometheus.CounterVec
	PipelineDuration  prometheus.Histogram
	PipelineFaults    *prometheus.CounterVec

	// Deployment metrics
	DeployAttempts   prometheus.Counter
	NonceConflicts   prometheus.Counter
	DeploysSucceeded prometheus.Counter
	DeploysFailed    *prometheus.CounterVec
	DeployDuration   prometheus.Histogram
	SignersAvailable prometheus.Gauge

	// External service metrics
	AILatency            prometheus.Histogram
	AIErrors             prometheus.Counter
	NotificationsSent    *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec

	// Intake metrics
	MentionsConsumed   prometheus.Counter
	MentionsUndecoded  prometheus.Counter
	StakingEventsSeen  prometheus.Counter
	AnalyticsFlushRows prometheus.Counter
}

// NewMetrics registers every metric on reg. A nil reg uses the default
// Prometheus registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		MentionsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "mentions_processed_total",
			Help:      "Mentions processed by outcome",
		}, []string{"outcome"}),
		PipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end mention processing time in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		PipelineFaults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "faults_total",
			Help:      "Unexpected pipeline faults by stage",
		}, []string{"stage"}),

		DeployAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "attempts_total",
			Help:      "Deployment transaction submissions",
		}),
		NonceConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "nonce_conflicts_total",
			Help:      "Submissions rejected with a retryable nonce conflict",
		}),
		DeploysSucceeded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "succeeded_total",
			Help:      "Tokens deployed",
		}),
		DeploysFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "failed_total",
			Help:      "Deployments that ended in a fatal failure by cause",
		}, []string{"cause"}),
		DeployDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "duration_seconds",
			Help:      "Time from address prediction to confirmed receipt in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		SignersAvailable: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "signers_available",
			Help:      "Signer keys not currently leased",
		}),

		AILatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "latency_seconds",
			Help:      "AI chat endpoint latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		AIErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "errors_total",
			Help:      "Failed or unparseable AI replies",
		}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Replies posted by outcome",
		}, []string{"outcome"}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Replies that could not be posted by outcome",
		}, []string{"outcome"}),

		MentionsConsumed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "mentions_consumed_total",
			Help:      "Mention records read from the intake topic",
		}),
		MentionsUndecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "mentions_undecoded_total",
			Help:      "Intake records dropped because they did not decode",
		}),
		StakingEventsSeen: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "staking_events_total",
			Help:      "StakedTokenCreated logs received from the websocket subscription",
		}),
		AnalyticsFlushRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clickhouse",
			Name:      "rows_flushed_total",
			Help:      "Deployment rows written to ClickHouse",
		}),
	}
}

// Handler returns the /metrics HTTP handler for the registry the metrics
// were created on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
