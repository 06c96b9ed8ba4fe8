package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nmead",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nmead",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	sentences = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nmead",
			Subsystem: "dispatch",
			Name:      "sentences_total",
			Help:      "Dispatched lines by sentence id and outcome.",
		},
		[]string{"sentence_id", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nmead",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Dispatch duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nmead",
			Subsystem: "conn",
			Name:      "active",
			Help:      "Currently open sentence connections.",
		},
	)
	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nmead",
			Subsystem: "conn",
			Name:      "accepted_total",
			Help:      "Accepted sentence connections.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sentences,
			dispatchDuration,
			connectionsActive,
			connectionsTotal,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDispatch counts one dispatched line. Callers pass a bounded
// sentence id label (registered ids only) to keep cardinality fixed.
func RecordDispatch(sentenceID, outcome string, duration time.Duration) {
	RegisterMetrics()
	if sentenceID == "" {
		sentenceID = "-"
	}
	sentences.WithLabelValues(sentenceID, outcome).Inc()
	dispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func ConnectionOpened() {
	RegisterMetrics()
	connectionsTotal.Inc()
	connectionsActive.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	connectionsActive.Dec()
}
