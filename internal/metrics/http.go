package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpReqTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	httpReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request duration in ms",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"route", "method"},
	)

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blackjack_feed_clients",
		Help: "Connected settlement feed websocket clients",
	})
)

// RecordHTTP records a served request. route is the mux pattern, not the raw
// path, so round ids do not explode label cardinality.
func RecordHTTP(route, method string, status int, started time.Time) {
	httpReqTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpReqDuration.WithLabelValues(route, method).Observe(float64(time.Since(started).Microseconds()) / 1000)
}

// FeedClients adjusts the connected websocket client gauge by delta.
func FeedClients(delta int) {
	wsClients.Add(float64(delta))
}
