package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "service"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "service"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of map engine calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	compiledLayers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomet_climate_compiled_layers_total",
			Help: "Catalog layers compiled, by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	compileDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geomet_climate_compile_duration_seconds",
			Help:    "Duration of a full catalog compilation.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"service"},
	)

	artifacts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomet_climate_artifacts_total",
			Help: "Generated artifacts by kind and result (written, unchanged, failed).",
		},
		[]string{"kind", "result"},
	)

	timeValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomet_climate_time_validations_total",
			Help: "TIME parameter validations by outcome.",
		},
		[]string{"outcome"},
	)

	extentCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geomet_climate_extent_cache_results_total",
			Help: "Extent cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	extentStoreOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geomet_climate_extent_store_op_duration_seconds",
			Help:    "Latency of extent store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)
)

// Collectors returns the service collectors for registration in a
// dedicated registry. Build info is left out; providers publish their own.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		compiledLayers,
		compileDurationSeconds,
		artifacts,
		timeValidations,
		extentCacheResults,
		extentStoreOpSeconds,
	}
}

func ObserveHTTP(method, route, service string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, service).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, service).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncCompiled(service, outcome string) {
	compiledLayers.WithLabelValues(service, outcome).Inc()
}

func ObserveCompile(service string, durationSeconds float64) {
	compileDurationSeconds.WithLabelValues(service).Observe(durationSeconds)
}

func IncArtifact(kind, result string) {
	artifacts.WithLabelValues(kind, result).Inc()
}

func IncTimeValidation(outcome string) {
	timeValidations.WithLabelValues(outcome).Inc()
}

func IncExtentCacheHit()  { extentCacheResults.WithLabelValues("hit").Inc() }
func IncExtentCacheMiss() { extentCacheResults.WithLabelValues("miss").Inc() }

func ObserveExtentOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	extentStoreOpSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
