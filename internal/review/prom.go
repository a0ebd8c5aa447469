package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions is the number of live sessions in the store.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apreview",
			Subsystem: "review",
			Name:      "active_sessions",
			Help:      "Number of live review sessions",
		},
	)

	// RowsRecorded counts rows appended to the tabular sink.
	RowsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apreview",
			Subsystem: "review",
			Name:      "rows_recorded_total",
			Help:      "Total number of submission rows appended to the tabular sink",
		},
	)

	// DeliveryStatus counts webhook responses.
	// Labels: status (HTTP status code, or "error" when no response arrived)
	DeliveryStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apreview",
			Subsystem: "review",
			Name:      "delivery_responses_total",
			Help:      "Total number of webhook responses by status code",
		},
		[]string{"status"},
	)

	// LastSubmission is the Unix time of the most recent recorded row.
	LastSubmission = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apreview",
			Subsystem: "review",
			Name:      "last_submission_timestamp_seconds",
			Help:      "Unix time of the most recent recorded submission",
		},
	)
)
