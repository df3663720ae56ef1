package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionTransitions counts applied session events by type.
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusride_session_transitions_total",
		Help: "Session state transitions by event.",
	}, []string{"event"})

	// RideFetches counts ride listing fetches by outcome (ok, error, stale).
	RideFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusride_ride_fetches_total",
		Help: "Ride listing fetches by outcome.",
	}, []string{"outcome"})

	// BackendRequestDuration observes backend API round trips.
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campusride_backend_request_duration_seconds",
		Help:    "Backend API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// Notifications counts raised user-facing notifications by level.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campusride_notifications_total",
		Help: "User-facing notifications by level.",
	}, []string{"level"})
)
