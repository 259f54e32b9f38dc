package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// EnvLatencyBuckets overrides the latency buckets, formatted like "100,200,300,400" in milliseconds.
	EnvLatencyBuckets     = "CROPDESK_LATENCY_BUCKETS"
	RequestsCollectorName = "http_requests_total"
	LatencyCollectorName  = "http_request_duration_milliseconds"
)

// uploads block until the tool is done, so the upper buckets reach minutes
var defaultBuckets = []float64{50, 300, 1000, 5000, 30000, 120000, 600000}

// Middleware is a handler that exposes prometheus metrics for the number of requests,
// the latency, and the response size partitioned by status code, method, and HTTP path.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func latencyBuckets() ([]float64, error) {
	conf, ok := os.LookupEnv(EnvLatencyBuckets)
	if !ok || conf == "" {
		return defaultBuckets, nil
	}

	var buckets []float64
	for _, v := range strings.Split(conf, ",") {
		f64v, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvLatencyBuckets, err)
		}
		buckets = append(buckets, f64v)
	}
	return buckets, nil
}

// NewMiddleware returns a new prometheus middleware for the provided service name.
func NewMiddleware(name string) (*Middleware, error) {
	buckets, err := latencyBuckets()
	if err != nil {
		return nil, err
	}

	var m Middleware
	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        RequestsCollectorName,
			Help:        "Number of HTTP requests partitioned by status code, method and HTTP path.",
			ConstLabels: prometheus.Labels{"service": name},
		}, []string{"code", "method", "path"})

	m.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        LatencyCollectorName,
		Help:        "Time spent on the request partitioned by status code, method and HTTP path.",
		ConstLabels: prometheus.Labels{"service": name},
		Buckets:     buckets,
	}, []string{"code", "method", "path"})

	return &m, nil
}

// Handler returns a handler for the middleware pattern.
func (m Middleware) Handler(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			rp := rctx.RoutePattern()
			code := strconv.Itoa(ww.Status())
			m.requests.WithLabelValues(code, r.Method, rp).Inc()
			m.latency.WithLabelValues(code, r.Method, rp).Observe(float64(time.Since(start).Milliseconds()))
		}
	}
	return http.HandlerFunc(fn)
}

// Collectors returns collector for your own collector registry.
func (m Middleware) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.latency}
}

// Register registers the collectors to reg. When an equal middleware was
// registered before, its collectors are reused so that routers built more
// than once keep reporting to the same series.
func (m *Middleware) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.requests); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		m.requests = are.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(m.latency); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		m.latency = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	return nil
}
