// Package metrics exposes issuance counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aws_cwt_issuer"

// Recorder collects issuance metrics. A nil Recorder discards everything.
type Recorder struct {
	issued   *prometheus.CounterVec
	failures *prometheus.CounterVec
	size     prometheus.Histogram
	duration prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		issued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_issued_total",
				Help:      "Number of tokens issued",
			},
			[]string{"algorithm"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issue_failures_total",
				Help:      "Number of failed issuance requests",
			},
			[]string{"reason"},
		),
		size: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_size_bytes",
				Help:      "Size of issued tokens in bytes",
				Buckets:   prometheus.ExponentialBuckets(64, 2, 8),
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "issue_duration_seconds",
				Help:      "Time spent handling an issuance request",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	for _, c := range []prometheus.Collector{r.issued, r.failures, r.size, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Issued records a successfully issued token.
func (r *Recorder) Issued(algorithm string, size int) {
	if r == nil {
		return
	}
	r.issued.WithLabelValues(algorithm).Inc()
	r.size.Observe(float64(size))
}

// Failed records a failed request under its error code.
func (r *Recorder) Failed(reason string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(reason).Inc()
}

// Observe records how long a request took.
func (r *Recorder) Observe(d time.Duration) {
	if r == nil {
		return
	}
	r.duration.Observe(d.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
