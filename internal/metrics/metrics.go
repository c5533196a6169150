// Package metrics holds Kestrel's Prometheus instruments.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_scores_total",
		Help: "Total number of identity scoring results by final risk level",
	}, []string{"risk_level"})

	scoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_score_duration_seconds",
		Help:    "Ensemble analysis duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	collaboratorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_collaborator_failures_total",
		Help: "Total number of degraded collaborator calls during scoring",
	}, []string{"collaborator"})

	bustOutPredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_bustout_predictions_total",
		Help: "Total number of bust-out predictions by risk level",
	}, []string{"risk_level"})

	clusterRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kestrel_cluster_run_duration_seconds",
		Help:    "Cluster detection run duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"algorithm"})

	clusterRunClusters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kestrel_cluster_run_clusters",
		Help: "Number of clusters reported by the most recent run",
	})

	busMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_bus_messages_processed_total",
		Help: "Total number of event bus messages processed by workers",
	}, []string{"topic", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kestrel_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by route and status code",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveScore records one ensemble result.
func ObserveScore(riskLevel string, d time.Duration) {
	scoresTotal.WithLabelValues(riskLevel).Inc()
	scoreDuration.Observe(d.Seconds())
}

// CollaboratorFailure counts a degraded collaborator call.
func CollaboratorFailure(collaborator string) {
	collaboratorFailuresTotal.WithLabelValues(collaborator).Inc()
}

// ObserveBustOut records one bust-out prediction.
func ObserveBustOut(riskLevel string) {
	bustOutPredictionsTotal.WithLabelValues(riskLevel).Inc()
}

// ObserveClusterRun records a completed cluster run.
func ObserveClusterRun(algorithm string, d time.Duration, clusters int) {
	clusterRunDuration.WithLabelValues(algorithm).Observe(d.Seconds())
	clusterRunClusters.Set(float64(clusters))
}

// BusMessage counts a processed bus message; status is "ok" or "error".
func BusMessage(topic, status string) {
	busMessagesTotal.WithLabelValues(topic, status).Inc()
}

// ObserveHTTPRequest records one served request. route is the matched
// pattern, not the raw path.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
