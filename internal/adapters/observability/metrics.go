package observability

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "repscore", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "repscore", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	CollectorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "repscore", Name: "collector_requests_total", Help: "Outbound collector requests."},
		[]string{"endpoint", "status"},
	)
	CollectorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "repscore", Name: "collector_request_duration_seconds",
			Help:    "Outbound collector request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	SnapshotAppends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "repscore", Name: "snapshot_appends_total", Help: "Snapshots appended."},
		[]string{"method"}, // manual|import|live-collect
	)
	ReconcileRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "repscore", Name: "reconcile_rows_total", Help: "Reconciled rows by outcome."},
		[]string{"outcome"}, // created|updated|snapshot-added|rejected
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "repscore", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"},
	)
)

// Serve exposes reg on METRICS_ADDR in a background goroutine so the
// sidecar port reports the same instruments as the API's /metrics mount.
// An empty METRICS_ADDR disables it.
func Serve(reg *prometheus.Registry) {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, CollectorRequests, CollectorLatency,
		SnapshotAppends, ReconcileRows, CacheEvents)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveCollector(endpoint string, status int, dur time.Duration) {
	CollectorRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	CollectorLatency.WithLabelValues(endpoint).Observe(dur.Seconds())
}

func ObserveSnapshotAppend(method string) {
	SnapshotAppends.WithLabelValues(method).Inc()
}

func ObserveReconcileRow(outcome string) {
	ReconcileRows.WithLabelValues(outcome).Inc()
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}
