// Package metrics provides Prometheus metrics for the consensus engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SourceFetchTotal is a counter of adapter invocations by outcome.
	SourceFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_total",
			Help: "Total number of source fetches by outcome",
		},
		[]string{"source", "outcome"},
	)

	// SourceFetchDuration is a histogram of adapter latency including retries.
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Duration of source fetches",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	// SourceLastSuccess is a gauge of the last successful fetch timestamp per source.
	SourceLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_last_success_timestamp",
			Help: "Unix timestamp of last successful fetch from source",
		},
		[]string{"source"},
	)

	// OutlierRejectionsTotal is a counter of rejected outlier prices.
	OutlierRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outlier_rejections_total",
			Help: "Total number of outlier prices rejected",
		},
		[]string{"symbol"},
	)

	// ConsensusRequestsTotal is a counter of consensus requests by result.
	ConsensusRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_requests_total",
			Help: "Total number of consensus requests by result",
		},
		[]string{"result"},
	)

	// ConsensusStageDuration is a histogram of pipeline stage durations.
	ConsensusStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensus_stage_duration_seconds",
			Help:    "Duration of consensus pipeline stages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// ConsensusConfidence is a gauge of the last computed confidence per symbol.
	ConsensusConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consensus_confidence",
			Help: "Confidence of the last consensus computed for a symbol",
		},
		[]string{"symbol"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"endpoint"},
	)
)

// Init initializes Prometheus metrics registry.
func Init() {
	prometheus.MustRegister(
		SourceFetchTotal,
		SourceFetchDuration,
		SourceLastSuccess,
		OutlierRejectionsTotal,
		ConsensusRequestsTotal,
		ConsensusStageDuration,
		ConsensusConfidence,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceFetch records the outcome of a single adapter invocation.
func RecordSourceFetch(source, outcome string, duration time.Duration) {
	SourceFetchTotal.WithLabelValues(source, outcome).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
	if outcome == "ok" {
		SourceLastSuccess.WithLabelValues(source).SetToCurrentTime()
	}
}

// RecordStage records the duration of a pipeline stage.
func RecordStage(stage string, duration time.Duration) {
	ConsensusStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordOutlierRejection records an outlier rejection.
func RecordOutlierRejection(symbol string) {
	OutlierRejectionsTotal.WithLabelValues(symbol).Inc()
}

// RecordConsensus records a finished consensus request.
func RecordConsensus(symbol, result string, confidence float64) {
	ConsensusRequestsTotal.WithLabelValues(result).Inc()
	ConsensusConfidence.WithLabelValues(symbol).Set(confidence)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
