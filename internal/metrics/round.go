// Package metrics exposes Prometheus instruments for round commands,
// settlements, card draws and HTTP traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackjack_commands_total",
			Help: "Round commands by command and result",
		},
		[]string{"command", "result"},
	)

	commandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blackjack_command_duration_ms",
			Help:    "Round command duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"command", "result"},
	)

	settledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackjack_rounds_settled_total",
			Help: "Settled rounds by outcome",
		},
		[]string{"outcome"},
	)

	chipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackjack_chips_total",
			Help: "Chips moved by direction (staked, paid)",
		},
		[]string{"direction"},
	)
)

// RecordCommand records one engine command. A nil err counts as success;
// anything else is labelled with the supplied error kind.
func RecordCommand(command, kind string, started time.Time) {
	if kind == "" {
		kind = "success"
	}
	commandTotal.WithLabelValues(command, kind).Inc()
	durMs := float64(time.Since(started).Microseconds()) / 1000
	commandDuration.WithLabelValues(command, kind).Observe(durMs)
}

// RecordStake counts chips deducted when a round starts.
func RecordStake(stake int64) {
	chipsTotal.WithLabelValues("staked").Add(float64(stake))
}

// RecordSettlement counts a settled round and the chips paid back.
func RecordSettlement(outcome string, payout int64) {
	settledTotal.WithLabelValues(outcome).Inc()
	chipsTotal.WithLabelValues("paid").Add(float64(payout))
}
