package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rentcal"

var (
	once sync.Once

	reservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Count of reservations committed, by resource.",
		},
		[]string{"resource_id"},
	)

	reservationsCanceled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_canceled_total",
			Help:      "Count of reservations canceled.",
		},
	)

	reservationRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_rejected_total",
			Help:      "Count of reservation commits rejected by the store, by reason.",
		},
		[]string{"reason"},
	)

	tapOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_taps_total",
			Help:      "Count of calendar taps by outcome.",
		},
		[]string{"outcome"},
	)

	blockedMapBuilds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "blocked_map_build_seconds",
			Help:      "Time spent building a blocked map from the store.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	blockedMapCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_map_cache_total",
			Help:      "Blocked map cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "selection_sessions",
			Help:      "Selection sessions currently held in memory.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationsCreated,
			reservationsCanceled,
			reservationRejected,
			tapOutcomes,
			blockedMapBuilds,
			blockedMapCache,
			httpRequests,
			activeSessions,
		)
	})
}

func IncReservationCreated(resourceID string) {
	reservationsCreated.WithLabelValues(resourceID).Inc()
}

func IncReservationCanceled() {
	reservationsCanceled.Inc()
}

func IncReservationRejected(reason string) {
	reservationRejected.WithLabelValues(reason).Inc()
}

// IncTap records a tap; an empty reason means accepted.
func IncTap(reason string) {
	if reason == "" {
		reason = "accepted"
	}
	tapOutcomes.WithLabelValues(reason).Inc()
}

func ObserveBlockedMapBuild(seconds float64) {
	blockedMapBuilds.Observe(seconds)
}

func IncCacheHit() {
	blockedMapCache.WithLabelValues("hit").Inc()
}

func IncCacheMiss() {
	blockedMapCache.WithLabelValues("miss").Inc()
}

func IncHTTPRequest(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
