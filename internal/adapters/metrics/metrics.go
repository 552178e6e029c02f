// Package metrics exposes the Prometheus collectors shared by the server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gymhub_db_query_duration_seconds",
		Help:    "Duration of database calls by operation.",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"op"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gymhub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	// RealtimeSubscribers is the number of open realtime connections per topic.
	RealtimeSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gymhub_realtime_subscribers",
		Help: "Open realtime subscriptions by topic.",
	}, []string{"topic"})

	// RealtimeOnline is the number of distinct tracked users per topic.
	RealtimeOnline = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gymhub_realtime_online_users",
		Help: "Distinct users present by topic.",
	}, []string{"topic"})

	// RealtimeEvents counts events fanned out to subscribers.
	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymhub_realtime_events_total",
		Help: "Realtime events delivered by topic and type.",
	}, []string{"topic", "type"})

	// RealtimeDropped counts subscribers disconnected for falling behind.
	RealtimeDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymhub_realtime_dropped_total",
		Help: "Subscribers dropped because their send buffer was full.",
	}, []string{"topic"})

	// MessagesSent counts persisted staff chat messages.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gymhub_chat_messages_total",
		Help: "Staff chat messages persisted.",
	})

	// BroadcastsCreated counts persisted voice broadcasts.
	BroadcastsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gymhub_voice_broadcasts_total",
		Help: "Voice broadcasts persisted.",
	})

	// BroadcastsSwept counts expired broadcasts removed by the sweeper.
	BroadcastsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gymhub_voice_broadcasts_swept_total",
		Help: "Expired voice broadcasts deleted.",
	})

	// RateLimited counts requests rejected by a limiter, labelled by limiter name.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gymhub_rate_limited_total",
		Help: "Requests rejected by rate limiting.",
	}, []string{"limiter"})
)

// Recorder adapts the package histograms to the timing hooks used by
// storage.TimedDB and middleware.Timing.
type Recorder struct{}

// ObserveQuery records one database call.
func (Recorder) ObserveQuery(op string, d time.Duration) {
	queryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRequest records one HTTP request. Paths are not used as a label
// to keep cardinality bounded.
func (Recorder) ObserveRequest(method string, status int, d time.Duration) {
	requestDuration.WithLabelValues(method, statusClass(status)).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
