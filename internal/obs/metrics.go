package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	registryOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_operations_total",
			Help: "Registry operations by name and outcome.",
		},
		[]string{"op", "outcome"},
	)

	broadcastFanOut = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "broadcast_fan_out_members",
		Help:    "Number of members addressed per community broadcast.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})
)

// Init registers the service metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		registryOpsTotal, broadcastFanOut)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOperation counts one registry operation.
func ObserveOperation(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	registryOpsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveBroadcastFanOut records how many members a broadcast addressed.
func ObserveBroadcastFanOut(members int) {
	broadcastFanOut.Observe(float64(members))
}

// Instrument wraps a handler with RPS, latency and in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

var userLeaves = map[string]bool{
	"attribute":   true,
	"friends":     true,
	"fans":        true,
	"idols":       true,
	"communities": true,
}

var communityLeaves = map[string]bool{
	"members":     true,
	"owner":       true,
	"description": true,
	"messages":    true,
}

// CanonicalPath collapses per-resource path segments so metric label
// cardinality stays bounded. Unknown shapes pass through unchanged.
func CanonicalPath(raw string) string {
	path := raw
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	switch {
	case strings.HasPrefix(path, "/v1/users/"):
		parts := strings.Split(strings.Trim(path[len("/v1/users/"):], "/"), "/")
		if len(parts) == 1 && parts[0] != "" {
			return "/v1/users/:login"
		}
		if len(parts) == 2 && userLeaves[parts[1]] {
			return "/v1/users/:login/" + parts[1]
		}
	case strings.HasPrefix(path, "/v1/communities/"):
		parts := strings.Split(strings.Trim(path[len("/v1/communities/"):], "/"), "/")
		if len(parts) == 1 && parts[0] != "" {
			return "/v1/communities/:name"
		}
		if len(parts) == 2 && communityLeaves[parts[1]] {
			return "/v1/communities/:name/" + parts[1]
		}
	}
	return path
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
