// Package metrics holds the Prometheus counters of the backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bili_comment"

// Metrics groups the backend counters.
type Metrics struct {
	CommentsSent     *prometheus.CounterVec // by result: success, failed, error
	BatchesStarted   prometheus.Counter
	BatchesCancelled prometheus.Counter
	QRPolls          *prometheus.CounterVec // by login status
}

// New registers the counters on reg. A nil reg uses a private registry,
// which keeps tests independent of each other.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		CommentsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_sent_total",
			Help:      "Comments submitted to the platform, by result.",
		}, []string{"result"}),
		BatchesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_started_total",
			Help:      "Comment batches started.",
		}),
		BatchesCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_cancelled_total",
			Help:      "Comment batches cancelled before finishing.",
		}),
		QRPolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qr_polls_total",
			Help:      "QR login status polls, by reported status.",
		}, []string{"status"}),
	}
}
