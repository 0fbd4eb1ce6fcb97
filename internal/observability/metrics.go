package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "she_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	HoldsAcquired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "she_holds_acquired_total",
			Help: "Seats successfully placed on hold",
		},
	)

	HoldConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "she_hold_conflicts_total",
			Help: "Hold batches rejected because a seat was taken",
		},
	)

	HoldsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "she_holds_released_total",
			Help: "Holds released before expiry",
		},
	)

	SweepReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "she_sweep_reclaimed_total",
			Help: "Expired holds reclaimed by the sweeper",
		},
	)

	SeatsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "she_seats_sold_total",
			Help: "Seats converted from hold to sale",
		},
	)

	FinalizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "she_finalize_seconds",
			Help:    "Duration of purchase finalization",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "she_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
