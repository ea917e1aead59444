package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CandlesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomomentum_candles_closed_total",
			Help: "Total number of candles finalized by the aggregator.",
		},
		[]string{"asset"},
	)

	FeedAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomomentum_feed_anomalies_total",
			Help: "Observations dropped as out-of-order or malformed.",
		},
		[]string{"asset"},
	)

	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomomentum_signals_emitted_total",
			Help: "Momentum signals emitted, by direction.",
		},
		[]string{"asset", "direction"},
	)

	PriceAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomomentum_price_anomalies_total",
			Help: "Cycles skipped because the quoted price failed validation.",
		},
		[]string{"asset"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomomentum_orders_submitted_total",
			Help: "Order submissions by final result (success, fatal, exhausted, canceled, skipped).",
		},
		[]string{"asset", "result"},
	)

	RequestRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomomentum_exchange_retries_total",
			Help: "Exchange request retries, by cause.",
		},
		[]string{"cause"},
	)

	SubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gomomentum_submit_duration_seconds",
			Help:    "Wall time of a submission including retries and sleeps.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	SubmissionInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gomomentum_submission_in_flight",
			Help: "1 while an order submission is running.",
		},
	)

	LastSignalStrength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gomomentum_last_signal_strength",
			Help: "Absolute z-score of the most recent signal.",
		},
		[]string{"asset"},
	)
)

func init() {
	prometheus.MustRegister(
		CandlesClosed,
		FeedAnomalies,
		SignalsEmitted,
		PriceAnomalies,
		OrdersSubmitted,
		RequestRetries,
		SubmitDuration,
		SubmissionInFlight,
		LastSignalStrength,
	)
}
