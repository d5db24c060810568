package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
)

// Ingest outcomes recorded by IngestResult
const (
	ResultAccepted     = "accepted"
	ResultUnauthorized = "unauthorized"
	ResultInvalid      = "invalid"
	ResultStorageError = "storage_error"
)

// Metrics holds the prometheus collectors of the dashboard service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ingestTotal       *prometheus.CounterVec
	storeDuration     *prometheus.HistogramVec
	liveness          *prometheus.GaugeVec
	bridgeForwarded   *prometheus.CounterVec
	breakerState      prometheus.Gauge
}

// NewMetrics builds the collectors on a private registry so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqm_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqm_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqm_ingest_total",
			Help: "Sensor payloads received, by outcome.",
		}, []string{"result"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqm_store_operation_duration_seconds",
			Help:    "Histogram of reading store call durations by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		liveness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aqm_sensor_liveness",
			Help: "1 for the current sensor liveness state, 0 for the others.",
		}, []string{"state"}),
		bridgeForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqm_bridge_messages_total",
			Help: "MQTT messages handled by the bridge, by outcome.",
		}, []string{"result"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqm_api_client_circuit_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}),
	}

	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.ingestTotal,
		m.storeDuration,
		m.liveness,
		m.bridgeForwarded,
		m.breakerState,
	)

	m.SetLiveness(aqmmodels.LivenessUnknown)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency keyed by the matched route
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) IngestResult(result string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) StoreOperation(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetLiveness flips the gauge so exactly one state reads 1
func (m *Metrics) SetLiveness(state aqmmodels.LivenessState) {
	if m == nil {
		return
	}
	for _, s := range []aqmmodels.LivenessState{aqmmodels.LivenessOnline, aqmmodels.LivenessOffline, aqmmodels.LivenessUnknown} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.liveness.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) BridgeMessage(result string) {
	if m == nil {
		return
	}
	m.bridgeForwarded.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.breakerState.Set(state)
}
