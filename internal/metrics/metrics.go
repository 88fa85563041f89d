package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// HTTPRequestsTotal counts handled requests by route and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patrolvision",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests handled, labeled by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patrolvision",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "Time spent handling HTTP requests, labeled by method and route.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})

	// ViolationsCreatedTotal counts stored reports by violation type.
	ViolationsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patrolvision",
		Subsystem: "violations",
		Name:      "created_total",
		Help:      "Total number of violation reports stored, labeled by violation type.",
	}, []string{"violation_type"})

	// GeocodeDurationSeconds is the time spent resolving addresses during report creation.
	GeocodeDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "patrolvision",
		Subsystem: "geocode",
		Name:      "duration_seconds",
		Help:      "Time spent reverse geocoding a report location.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// FeedClients is the number of connected violation feed websocket clients.
	FeedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "patrolvision",
		Subsystem: "feed",
		Name:      "clients",
		Help:      "Current number of websocket clients subscribed to the violation feed.",
	})
)

// Register registers server metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			ViolationsCreatedTotal,
			GeocodeDurationSeconds,
			FeedClients,
		)
	})
}

// GinMiddleware records request counts and latencies per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
