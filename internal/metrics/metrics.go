package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "garden_relay"

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Metrics - метрики relay на отдельном реестре приложения
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	detectionsTotal   *prometheus.CounterVec
	detectionDuration *prometheus.HistogramVec
	cleanupFailures   *prometheus.CounterVec

	upstreamCallsTotal *prometheus.CounterVec
	upstreamDuration   *prometheus.HistogramVec

	websocketSessions prometheus.Gauge
}

// New создает и регистрирует все метрики
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		detectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Total number of detector calls",
		}, []string{"backend", "outcome"}),
		detectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Duration of detector calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"backend"}),
		cleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_cleanup_failures_total",
			Help:      "Temporary detector files that could not be removed",
		}, []string{"backend"}),
		upstreamCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Total number of video platform calls",
		}, []string{"operation", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_call_duration_seconds",
			Help:      "Duration of video platform calls in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		}, []string{"operation"}),
		websocketSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_sessions",
			Help:      "Open detection websocket sessions",
		}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.detectionsTotal,
		m.detectionDuration,
		m.cleanupFailures,
		m.upstreamCallsTotal,
		m.upstreamDuration,
		m.websocketSessions,
	)
	return m
}

// Registry возвращает реестр для тестов и внешних коллекторов
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware считает запросы по шаблону маршрута, а не по фактическому пути
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveDetection реализует detector.Observer
func (m *Metrics) ObserveDetection(backend string, err error, elapsed time.Duration) {
	m.detectionsTotal.WithLabelValues(backend, outcome(err)).Inc()
	m.detectionDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// ObserveCleanupFailure реализует detector.Observer
func (m *Metrics) ObserveCleanupFailure(backend string) {
	m.cleanupFailures.WithLabelValues(backend).Inc()
}

// ObserveUpstream реализует upstream.CallObserver
func (m *Metrics) ObserveUpstream(operation string, err error, elapsed time.Duration) {
	m.upstreamCallsTotal.WithLabelValues(operation, outcome(err)).Inc()
	m.upstreamDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SessionOpened и SessionClosed ведут счетчик открытых websocket сессий
func (m *Metrics) SessionOpened() { m.websocketSessions.Inc() }

func (m *Metrics) SessionClosed() { m.websocketSessions.Dec() }

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeSuccess
}
