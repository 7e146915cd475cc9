package internal

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

var _metricsNamespace = "cereal"

// NewMetrics creates a new Prometheus registry with default collectors
// already registered.
func NewMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: _metricsNamespace,
		}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

// WorkerMetrics counts pipeline activity by worker.
type WorkerMetrics struct {
	ticks  *prometheus.CounterVec
	items  *prometheus.CounterVec
	errors *prometheus.CounterVec
}

// NewWorkerMetrics registers the pipeline counters. A nil registry keeps
// the counters local, which tests use.
func NewWorkerMetrics(reg *prometheus.Registry) *WorkerMetrics {
	ticks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "worker",
			Name:      "ticks",
			Help:      "Completed poll loops by worker.",
		},
		[]string{"worker"},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "worker",
			Name:      "items",
			Help:      "Items processed by worker (chapters discovered, hydrated, converted, or deliveries shipped).",
		},
		[]string{"worker"},
	)
	errors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "worker",
			Name:      "errors",
			Help:      "Per-item failures by worker.",
		},
		[]string{"worker"},
	)
	if reg != nil {
		reg.MustRegister(ticks, items, errors)
	}
	return &WorkerMetrics{ticks: ticks, items: items, errors: errors}
}

func (wm *WorkerMetrics) tickInc(worker string) {
	wm.ticks.WithLabelValues(worker).Inc()
}

func (wm *WorkerMetrics) itemsAdd(worker string, delta int) {
	if delta <= 0 {
		return
	}
	wm.items.WithLabelValues(worker).Add(float64(delta))
}

func (wm *WorkerMetrics) errorInc(worker string) {
	wm.errors.WithLabelValues(worker).Inc()
}

func (wm *WorkerMetrics) itemsGet(worker string) int64 {
	m := &dto.Metric{}
	err := wm.items.WithLabelValues(worker).Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

// instrument wraps an HTTP handler to automatically record timing and
// status codes.
func instrument(reg *prometheus.Registry, next http.Handler) http.Handler {
	requests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: _metricsNamespace,
			Subsystem: "http",
			Name:      "requests",
			Help:      "HTTP request latencies by method & path",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: _metricsNamespace,
			Subsystem: "http",
			Name:      "inflight",
			Help:      "Current number of inbound in-flight HTTP requests.",
		},
	)

	reg.MustRegister(requests, inflight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.Pattern == "" {
			// Don't record traffic for unrecognized endpoints.
			return
		}

		duration := time.Since(start).Seconds()
		requests.WithLabelValues(r.Method, r.Pattern, fmt.Sprint(ww.Status())).Observe(duration)
	})
}
