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

// Console HTTP metrics.
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
)

// Backend API client metrics.
var (
	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admintable_backend_requests_total",
			Help: "Requests sent to the admin backend API.",
		},
		[]string{"op", "status"},
	)

	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admintable_backend_request_duration_seconds",
			Help:    "Admin backend API latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// Live subscription metrics.
var (
	LiveSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admintable_live_subscriptions",
			Help: "Live value subscriptions by connection state.",
		},
		[]string{"state"},
	)

	LiveReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admintable_live_reconnects_total",
		Help: "Reconnect attempts made by live value subscriptions.",
	})
)

var initOnce sync.Once

// Init registers all metrics in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			BackendRequests, BackendDuration,
			LiveSubscriptions, LiveReconnects,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses resource names and identifiers so metric label
// cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "resource" && (parts[2] == "list" || parts[2] == "create"):
		return "/resource/:name/" + parts[2]
	case len(parts) == 4 && parts[0] == "resource" && parts[2] == "detail":
		return "/resource/:name/detail/:id"
	case len(parts) == 6 && parts[0] == "resource" && parts[2] == "detail" && parts[4] == "action":
		return "/resource/:name/detail/:id/action/:ref"
	case len(parts) == 2 && (parts[0] == "page" || parts[0] == "forms"):
		return "/" + parts[0] + "/:name"
	}
	return p
}

// statusWriter keeps the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the instrumented writer.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
