package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the XP service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	ActivitiesRecorded *prometheus.CounterVec
	XPAwarded          *prometheus.CounterVec
	LevelUps           *prometheus.CounterVec
	TransactionRetries prometheus.Counter
	RecordingFailures  prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
	RequestsInFlight   prometheus.Gauge
}

// NewMetrics registers every collector on reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ActivitiesRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "medquest",
				Subsystem: "xp",
				Name:      "activities_recorded_total",
				Help:      "Activities committed, by track and activity type",
			},
			[]string{"track", "activity"},
		),
		XPAwarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "medquest",
				Subsystem: "xp",
				Name:      "awarded_total",
				Help:      "XP awarded, by track",
			},
			[]string{"track"},
		),
		LevelUps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "medquest",
				Subsystem: "xp",
				Name:      "level_ups_total",
				Help:      "Level ups, by scope (a track name or overall)",
			},
			[]string{"scope"},
		),
		TransactionRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "medquest",
			Subsystem: "xp",
			Name:      "transaction_retries_total",
			Help:      "Recording transactions retried after a conflict",
		}),
		RecordingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "medquest",
			Subsystem: "xp",
			Name:      "recording_failures_total",
			Help:      "Activities that could not be recorded",
		}),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "medquest",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		RequestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "medquest",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of requests currently being processed",
		}),
	}
}

func (m *Metrics) ActivityRecorded(track, activity string, xp int) {
	if m == nil {
		return
	}
	m.ActivitiesRecorded.WithLabelValues(track, activity).Inc()
	m.XPAwarded.WithLabelValues(track).Add(float64(xp))
}

func (m *Metrics) LevelUp(scope string) {
	if m == nil {
		return
	}
	m.LevelUps.WithLabelValues(scope).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.TransactionRetries.Inc()
}

func (m *Metrics) Failure() {
	if m == nil {
		return
	}
	m.RecordingFailures.Inc()
}

// GinMiddleware observes request latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
