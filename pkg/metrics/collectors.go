package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nfury",
		Subsystem: "engine",
		Name:      "requests_total",
		Help:      "Total number of load-test requests broken down by status class.",
	}, []string{"class"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nfury",
		Subsystem: "engine",
		Name:      "request_latency_seconds",
		Help:      "Latency distribution for load-test requests.",
		Buckets: []float64{
			0.001, 0.002, 0.005,
			0.01, 0.02, 0.05,
			0.1, 0.2, 0.5,
			1, 2, 5, 10,
		},
	}, []string{"class"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nfury",
		Subsystem: "runs",
		Name:      "total",
		Help:      "Total number of finished runs broken down by terminal status.",
	}, []string{"status"})

	activeRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nfury",
		Subsystem: "runs",
		Name:      "active",
		Help:      "Whether a run is currently executing (1/0).",
	})
)

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// RecordRequest counts one completed request and observes its latency.
func RecordRequest(statusCode int, latency time.Duration) {
	class := statusClass(statusCode)
	requestsTotal.WithLabelValues(class).Inc()
	requestLatency.WithLabelValues(class).Observe(latency.Seconds())
}

// RecordRunStarted marks the single run slot as occupied.
func RecordRunStarted() {
	activeRuns.Set(1)
}

// RecordRunFinished counts a run reaching a terminal status and frees the slot gauge.
func RecordRunFinished(status string) {
	runsTotal.WithLabelValues(status).Inc()
	activeRuns.Set(0)
}
