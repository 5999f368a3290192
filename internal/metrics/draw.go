package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	drawTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackjack_draws_total",
			Help: "Card draw calls by source and result",
		},
		[]string{"source", "result"},
	)

	drawDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blackjack_draw_duration_ms",
			Help:    "Card draw latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"source"},
	)

	deckInitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackjack_deck_initializations_total",
			Help: "Deck (re)initializations by source",
		},
		[]string{"source"},
	)
)

// RecordDraw records one draw call against a card source.
func RecordDraw(source string, err error, started time.Time) {
	res := "success"
	if err != nil {
		res = "fail"
	}
	drawTotal.WithLabelValues(source, res).Inc()
	drawDuration.WithLabelValues(source).Observe(float64(time.Since(started).Microseconds()) / 1000)
}

// RecordDeckInit counts a new shuffled deck.
func RecordDeckInit(source string) {
	deckInitTotal.WithLabelValues(source).Inc()
}
