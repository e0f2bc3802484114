// Package metrics exposes the console's Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gestionale/internal/api"
	"gestionale/internal/listing"
)

// Metrics holds Prometheus metric collectors
type Metrics struct {
	gatherer prometheus.Gatherer

	listingFetches  *prometheus.CounterVec
	listingStale    *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	workspaces      prometheus.Gauge
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "gestionale"
	}
	f := promauto.With(reg)
	buckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

	return &Metrics{
		gatherer: reg,
		listingFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "fetches_total",
			Help:      "Completed listing requests by resource, mode and result",
		}, []string{"resource", "mode", "result"}),
		listingStale: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "stale_responses_total",
			Help:      "Listing responses discarded because a newer request was issued",
		}, []string{"resource"}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "mutations_total",
			Help:      "Create, update and delete attempts by resource, operation and result",
		}, []string{"resource", "operation", "result"}),
		backendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Requests sent to the REST backend",
		}, []string{"method", "endpoint", "status"}),
		backendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "REST backend latency in seconds",
			Buckets:   buckets,
		}, []string{"method", "endpoint"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of console HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Console HTTP latency in seconds",
			Buckets:   buckets,
		}, []string{"method", "route"}),
		workspaces: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workspaces_active",
			Help:      "Signed-in sessions with live screen state",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the registry backing m.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.gatherer }

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case listing.IsUnauthorized(err):
		return "unauthorized"
	case api.IsNetwork(err):
		return "network"
	default:
		return "error"
	}
}

// ListingHooks returns controller hooks that feed the listing collectors.
func (m *Metrics) ListingHooks() listing.Hooks {
	return listing.Hooks{
		OnFetch: func(resource string, mode listing.Mode, err error) {
			m.listingFetches.WithLabelValues(resource, mode.String(), result(err)).Inc()
		},
		OnStale: func(resource string) {
			m.listingStale.WithLabelValues(resource).Inc()
		},
		OnMutation: func(_ context.Context, resource string, op listing.Op, _ string, err error) {
			m.mutations.WithLabelValues(resource, string(op), result(err)).Inc()
		},
	}
}

// BackendObserver returns an api.Observer feeding the backend collectors.
func (m *Metrics) BackendObserver() api.Observer {
	return func(method, endpoint string, status int, elapsed time.Duration) {
		code := "none"
		if status > 0 {
			code = strconv.Itoa(status)
		}
		m.backendRequests.WithLabelValues(method, endpoint, code).Inc()
		m.backendDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
	}
}

// WorkspaceOpened and WorkspaceClosed track live sessions.
func (m *Metrics) WorkspaceOpened() { m.workspaces.Inc() }
func (m *Metrics) WorkspaceClosed() { m.workspaces.Dec() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next, labelling its samples with route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RegisterCacheStats exposes a cache's hit and miss counters.
func RegisterCacheStats(reg prometheus.Registerer, namespace, name string, stats func() (uint64, uint64)) {
	f := promauto.With(reg)
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hits_total",
		Help:        "Cache hits",
		ConstLabels: prometheus.Labels{"cache": name},
	}, func() float64 { h, _ := stats(); return float64(h) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "misses_total",
		Help:        "Cache misses",
		ConstLabels: prometheus.Labels{"cache": name},
	}, func() float64 { _, m := stats(); return float64(m) })
}
