package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/rpcguard/internal/domain/interceptor"
)

const namespace = "rpcguard"

// DefaultTrackedKeysMetric is the gauge name used for the rate limiter's
// tracked key count.
const DefaultTrackedKeysMetric = namespace + "_rate_limit_number_rate_limits"

// Metrics holds all Prometheus metrics for rpcguard.
// Pass to components that need to record metrics.
type Metrics struct {
	HTTPRequestsTotal *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	RPCRequestsTotal  *prometheus.CounterVec
	RPCErrorsTotal    *prometheus.CounterVec

	reg      prometheus.Registerer
	gatherer prometheus.Gatherer
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "status"}, // method=POST, status=2xx/4xx/5xx
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		RPCRequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_total_requests",
				Help:      "Total number of RPC requests",
			},
			[]string{"method"},
		),
		RPCErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_total_errors",
				Help:      "Total number of RPC errors",
			},
			[]string{"method"},
		),
		reg:      reg,
		gatherer: reg,
	}
}

// IncRequests counts an RPC request for method.
func (m *Metrics) IncRequests(method string) {
	m.RPCRequestsTotal.WithLabelValues(method).Inc()
}

// IncErrors counts a failed RPC request for method.
func (m *Metrics) IncErrors(method string) {
	m.RPCErrorsTotal.WithLabelValues(method).Inc()
}

// RegisterTrackedKeys exposes fn as a gauge named name (DefaultTrackedKeysMetric
// when empty). fn is evaluated at scrape time.
func (m *Metrics) RegisterTrackedKeys(name string, fn func() int) error {
	if name == "" {
		name = DefaultTrackedKeysMetric
	}
	return m.RegisterGauge(name, "Number of rate limit buckets that are not full", fn)
}

// RegisterGauge exposes fn as a gauge evaluated at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() int) error {
	return m.reg.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(fn()) },
	))
}

// RegisterCounter exposes fn as a counter evaluated at scrape time.
func (m *Metrics) RegisterCounter(name, help string, fn func() int64) error {
	return m.reg.Register(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(fn()) },
	))
}

var _ interceptor.StatsRecorder = (*Metrics)(nil)
