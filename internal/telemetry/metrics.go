package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "hearth",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// PoolsOpen tracks how many per-schema connection pools are currently open.
var PoolsOpen = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "hearth",
		Subsystem: "db",
		Name:      "pools_open",
		Help:      "Number of open per-schema connection pools.",
	},
)

// PoolCreates counts pool creation attempts by result (created, error).
var PoolCreates = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "db",
		Name:      "pool_creates_total",
		Help:      "Connection pool creation attempts by result.",
	},
	[]string{"result"},
)

// TenantOps counts home provisioning and teardown runs by operation and result.
var TenantOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "tenant",
		Name:      "ops_total",
		Help:      "Home provisioning and teardown runs by operation and result.",
	},
	[]string{"op", "result"},
)

// GateRejections counts requests the tenant gate refused, by reason.
var GateRejections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "gate",
		Name:      "rejections_total",
		Help:      "Requests rejected by the tenant gate, by reason.",
	},
	[]string{"reason"},
)

// LoginAttempts counts web login attempts by result (ok, invalid, rate_limited).
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hearth",
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Web login attempts by result.",
	},
	[]string{"result"},
)

// CatalogTables tracks how many table shapes the reflector has cached.
var CatalogTables = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "hearth",
		Subsystem: "catalog",
		Name:      "tables_cached",
		Help:      "Number of table shapes held by the reflector cache.",
	},
)

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared application metrics, and any additional collectors passed as
// arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		PoolsOpen,
		PoolCreates,
		TenantOps,
		GateRejections,
		LoginAttempts,
		CatalogTables,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
