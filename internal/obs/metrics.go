package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outbound request metrics plus counters for the resilience machinery.
var (
	requestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "client_in_flight_requests",
		Help: "In-flight outbound HTTP requests.",
	})

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_requests_total",
			Help: "Total number of outbound HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "client_request_duration_seconds",
			Help:    "Outbound HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	fetchRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Automatic entity fetch retries.",
		},
		[]string{"entity"},
	)

	watchdogTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_watchdog_timeouts_total",
			Help: "Entity fetches terminated by the watchdog.",
		},
		[]string{"entity"},
	)

	failoversTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "endpoint_failovers_total",
		Help: "Successful rebinds of the active base endpoint.",
	})

	tokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	rollbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "optimistic_rollbacks_total",
		Help: "Optimistic mutations rolled back after remote failure.",
	})
)

var initOnce sync.Once

// Init registers all client metrics in the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			requestsInFlight,
			requestsTotal,
			requestDuration,
			fetchRetriesTotal,
			watchdogTimeoutsTotal,
			failoversTotal,
			tokenRefreshesTotal,
			rollbacksTotal,
		)
	})
}

// Handler exposes the metrics endpoint for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RequestStarted marks an outbound request in flight. The returned func
// records latency and status when the exchange settles; status 0 means no
// response was received.
func RequestStarted(method, path string) func(status int) {
	requestsInFlight.Inc()
	start := time.Now()
	canonical := CanonicalPath(path)
	return func(status int) {
		requestsInFlight.Dec()
		code := strconv.Itoa(status)
		requestDuration.WithLabelValues(method, canonical, code).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(method, canonical, code).Inc()
	}
}

// FetchRetried counts an automatic retry of the named entity.
func FetchRetried(entity string) { fetchRetriesTotal.WithLabelValues(entity).Inc() }

// WatchdogFired counts a fetch terminated by its watchdog.
func WatchdogFired(entity string) { watchdogTimeoutsTotal.WithLabelValues(entity).Inc() }

// FailoverSucceeded counts a rebind of the active base endpoint.
func FailoverSucceeded() { failoversTotal.Inc() }

// TokenRefreshed counts a refresh attempt; outcome is "success" or "failure".
func TokenRefreshed(outcome string) { tokenRefreshesTotal.WithLabelValues(outcome).Inc() }

// RollbackApplied counts an optimistic mutation rolled back.
func RollbackApplied() { rollbacksTotal.Inc() }

// CanonicalPath collapses entity identifiers in well-known API paths so the
// path label stays low-cardinality. Unknown paths pass through with the
// query string stripped.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" {
		switch len(parts) {
		case 3:
			// /api/{resource}/{id}
			return "/api/" + parts[1] + "/:id"
		case 4:
			// /api/{resource}/{id}/{sub}
			return "/api/" + parts[1] + "/:id/" + parts[3]
		}
	}
	return path
}
