package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Posting outcomes used as label values.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "failed"
)

type postingCollectors struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

func newPostingCollectors(registerer prometheus.Registerer) *postingCollectors {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_postings_total",
		Help: "Ledger postings partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_posting_duration_seconds",
		Help:    "Wall time of a posting including its retry.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_posting_retries_total",
		Help: "Postings retried after a concurrency conflict.",
	}, []string{"operation"})
	registerer.MustRegister(total, duration, retries)
	return &postingCollectors{total: total, duration: duration, retries: retries}
}

// ObservePosting records the outcome and duration of one posting operation.
func (m *Metrics) ObservePosting(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.postings == nil {
		return
	}
	m.postings.total.WithLabelValues(operation, outcome).Inc()
	m.postings.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveRetry counts a conflict retry.
func (m *Metrics) ObserveRetry(operation string) {
	if m == nil || m.postings == nil {
		return
	}
	m.postings.retries.WithLabelValues(operation).Inc()
}
