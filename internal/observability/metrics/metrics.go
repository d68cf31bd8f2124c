// Package metrics provides Prometheus instrumentation for the DEX client.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	initOnce    sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Node RPC metrics
	rpcCallsTotal *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec

	// Deploy metrics
	deployBuildTotal  *prometheus.CounterVec
	deploySubmitTotal *prometheus.CounterVec
	deployResultTotal *prometheus.CounterVec

	// Balance resolution metrics
	balanceProbeTotal   *prometheus.CounterVec
	balanceResolveTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Collectors are registered once per
// process; later calls only toggle the enabled flag.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	initOnce.Do(register)
}

func register() {
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "node_rpc_calls_total",
			Help: "Total number of JSON-RPC calls made to the Casper node",
		},
		[]string{"method", "result"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "node_rpc_duration_seconds",
			Help:    "Casper node JSON-RPC latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	deployBuildTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_build_total",
			Help: "Total number of deploys built",
		},
		[]string{"operation", "status"},
	)

	deploySubmitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_submit_total",
			Help: "Total number of deploy submissions",
		},
		[]string{"status"},
	)

	deployResultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_execution_result_total",
			Help: "Total number of observed deploy execution outcomes",
		},
		[]string{"result"},
	)

	balanceProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_probe_total",
			Help: "Total number of dictionary probes made while resolving token balances",
		},
		[]string{"kind", "result"},
	)

	balanceResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_resolve_total",
			Help: "Total number of token balance resolutions",
		},
		[]string{"token", "result"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
