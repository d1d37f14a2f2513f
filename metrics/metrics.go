// Package metrics declares the Prometheus collectors of the matching service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SwipesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_swipes_total",
			Help: "Swipes written to the ledger by decision",
		},
		[]string{"decision"},
	)

	MatchesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_matches_created_total",
			Help: "Matches created",
		},
	)

	// Concurrent reciprocal swipes that lost the insert race.
	MatchRacesAbsorbed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_match_races_absorbed_total",
			Help: "Duplicate match inserts absorbed as success",
		},
	)

	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_quota_rejections_total",
			Help: "Actions rejected because the daily quota was exhausted",
		},
		[]string{"action", "plan"},
	)

	CandidatesServed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_candidates_page_size",
			Help:    "Number of candidates returned per discovery call",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
	)

	SweepAffected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_sweep_affected_total",
			Help: "Profiles changed by scheduled sweeps",
		},
		[]string{"sweep"},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_sweep_runs_total",
			Help: "Scheduled sweep executions by outcome",
		},
		[]string{"sweep", "outcome"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_notification_failures_total",
			Help: "Notification events that could not be published",
		},
		[]string{"kind"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_events_published_total",
			Help: "Events handed to the message bus by topic",
		},
		[]string{"topic"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matching_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matching_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RecordSwipe(decision string) {
	SwipesRecorded.WithLabelValues(decision).Inc()
}

func RecordQuotaRejection(action, plan string) {
	QuotaRejections.WithLabelValues(action, plan).Inc()
}

// RecordSweep counts one sweep run; err decides the outcome label.
func RecordSweep(sweep string, affected int64, err error) {
	if err != nil {
		SweepRuns.WithLabelValues(sweep, "error").Inc()
		return
	}
	SweepRuns.WithLabelValues(sweep, "ok").Inc()
	SweepAffected.WithLabelValues(sweep).Add(float64(affected))
}

func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
