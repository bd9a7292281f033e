// Package metrics defines Prometheus metrics for the proxy data plane: cache
// outcomes, rate-limit decisions, upstream calls, and admin actions.
// All helpers below encapsulate label normalization and consistent
// observation patterns so call sites never touch a prometheus.Collector
// directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// proxyRequestsTotal counts client-facing proxy responses by method, status, and cache outcome.
	// Labels:
	// - method: HTTP method (GET/POST)
	// - status: numeric HTTP status
	// - cache: HIT/MISS/STALE/BYPASS
	proxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Total proxy responses by method, status and cache outcome",
		},
		[]string{"method", "status", "cache"},
	)
	// proxyReqDuration captures end-to-end proxy latency (client-facing).
	proxyReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_request_duration_seconds",
			Help:    "End-to-end proxy request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "cache"},
	)
	// admissionRejectedTotal counts requests shed by the admission-control stage.
	admissionRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_admission_rejected_total",
			Help: "Total requests rejected because the admission queue was full",
		},
	)
	// admissionTimeoutsTotal counts requests that timed out waiting for an admission slot.
	admissionTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_admission_timeouts_total",
			Help: "Total requests that timed out while waiting for an admission slot",
		},
	)
	// admissionWaitSeconds measures time spent waiting for an admission slot.
	admissionWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "proxy_admission_wait_seconds",
			Help:    "Observed wait time for an admission slot",
			Buckets: prometheus.DefBuckets,
		},
	)
	// admissionDepth reports requests currently waiting for an admission slot.
	admissionDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proxy_admission_depth",
			Help: "Current admission queue depth (waiting only)",
		},
	)

	// rateLimitDecisionsTotal counts allow/deny outcomes by scope.
	rateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Total rate limit decisions by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	// upstreamRequestsTotal counts outbound upstream calls by method and status.
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total outbound upstream requests by method and status",
		},
		[]string{"method", "status"},
	)
	// upstreamRequestDuration measures outbound upstream call latency.
	upstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Outbound upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	// upstreamRetriesTotal counts retry attempts issued by the upstream client.
	upstreamRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_retries_total",
			Help: "Total retry attempts issued by the upstream client",
		},
	)

	// cacheSWRRefreshTotal counts background SWR refreshes by outcome.
	cacheSWRRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_swr_refresh_total",
			Help: "Total background stale-while-revalidate refreshes by outcome",
		},
		[]string{"outcome"},
	)

	// adminActionsTotal counts admin actions by action name and result.
	adminActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_actions_total",
			Help: "Total admin actions by action and result",
		},
		[]string{"action", "result"},
	)

	// stateStoreFallback reports 1 when the state store is in fallback (degraded) mode.
	stateStoreFallback = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "statestore_fallback",
			Help: "1 if the state store is currently in fallback/degraded mode, else 0",
		},
	)
)

func init() {
	prometheus.MustRegister(
		proxyRequestsTotal,
		proxyReqDuration,
		admissionRejectedTotal,
		admissionTimeoutsTotal,
		admissionWaitSeconds,
		admissionDepth,
		rateLimitDecisionsTotal,
		upstreamRequestsTotal,
		upstreamRequestDuration,
		upstreamRetriesTotal,
		cacheSWRRefreshTotal,
		adminActionsTotal,
		stateStoreFallback,
	)
}

// normCacheLabel normalizes the cache label to a bounded set of values.
func normCacheLabel(v string) string {
	if v == "" {
		return "BYPASS"
	}
	return v
}

// ObserveProxyResponse records a client-facing proxy response.
func ObserveProxyResponse(method string, status int, cache string, dur time.Duration) {
	cache = normCacheLabel(cache)
	proxyRequestsTotal.WithLabelValues(method, strconv.Itoa(status), cache).Inc()
	proxyReqDuration.WithLabelValues(method, cache).Observe(dur.Seconds())
}

// AdmissionRejectedInc increments the count of requests rejected due to a full admission queue.
func AdmissionRejectedInc() { admissionRejectedTotal.Inc() }

// AdmissionTimeoutsInc increments the count of requests that timed out awaiting admission.
func AdmissionTimeoutsInc() { admissionTimeoutsTotal.Inc() }

// AdmissionWaitObserve observes time spent waiting for an admission slot.
func AdmissionWaitObserve(d time.Duration) { admissionWaitSeconds.Observe(d.Seconds()) }

// AdmissionDepthSet sets the current admission queue depth (waiting only).
func AdmissionDepthSet(depth int64) { admissionDepth.Set(float64(depth)) }

// RateLimitDecision records an allow/deny outcome for a given scope.
func RateLimitDecision(scope string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	rateLimitDecisionsTotal.WithLabelValues(scope, outcome).Inc()
}

// ObserveUpstreamResponse records an outbound upstream call.
func ObserveUpstreamResponse(method string, status int, dur time.Duration) {
	upstreamRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	upstreamRequestDuration.WithLabelValues(method).Observe(dur.Seconds())
}

// UpstreamRetryInc increments the retry-attempt counter.
func UpstreamRetryInc() { upstreamRetriesTotal.Inc() }

// CacheSWRRefreshObserve records a background SWR refresh outcome ("ok" or "error").
func CacheSWRRefreshObserve(outcome string) { cacheSWRRefreshTotal.WithLabelValues(outcome).Inc() }

// AdminActionObserve records an admin action outcome ("ok" or "error").
func AdminActionObserve(action, result string) {
	adminActionsTotal.WithLabelValues(action, result).Inc()
}

// StateStoreFallbackSet sets the fallback/degraded gauge.
func StateStoreFallbackSet(fallback bool) {
	if fallback {
		stateStoreFallback.Set(1)
		return
	}
	stateStoreFallback.Set(0)
}
