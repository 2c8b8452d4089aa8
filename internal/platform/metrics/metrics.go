package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	BatchItems      *prometheus.CounterVec
	BatchDuration   *prometheus.HistogramVec
	OracleCalls     *prometheus.CounterVec
	OracleLatency   prometheus.Histogram
	ReviewDecisions *prometheus.CounterVec
	LinksCreated    prometheus.Counter
	OutboxPublished prometheus.Counter
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics with reg. Tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BatchItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promises_batch_items_total",
			Help: "Items processed by batch runs, by stage and outcome",
		}, []string{"stage", "outcome"}),
		BatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promises_batch_duration_seconds",
			Help:    "Wall time of batch runs by stage",
			Buckets: durationBuckets,
		}, []string{"stage"}),
		OracleCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promises_oracle_calls_total",
			Help: "Scoring oracle calls by outcome",
		}, []string{"outcome"}),
		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "promises_oracle_latency_seconds",
			Help:    "Latency of scoring oracle calls",
			Buckets: durationBuckets,
		}),
		ReviewDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "promises_review_decisions_total",
			Help: "Review decisions by action and result",
		}, []string{"action", "result"}),
		LinksCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "promises_links_created_total",
			Help: "Potential links written by the link generator",
		}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "promises_outbox_published_total",
			Help: "Outbox entries delivered to Kafka",
		}),
	}
}

func (m *Metrics) IncBatchItem(stage, outcome string) {
	if m == nil {
		return
	}
	m.BatchItems.WithLabelValues(stage, outcome).Inc()
}

// ObserveBatch records a batch run's duration. Call with the run's start time.
func (m *Metrics) ObserveBatch(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveOracle(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.OracleCalls.WithLabelValues(outcome).Inc()
	m.OracleLatency.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncReviewDecision(action, result string) {
	if m == nil {
		return
	}
	m.ReviewDecisions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) AddLinksCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinksCreated.Add(float64(n))
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboxPublished.Add(float64(n))
}
