// Package metrics provides Prometheus instrumentation for the scoring service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hed1ad/spendguard/pkg/detectors"
	"github.com/hed1ad/spendguard/pkg/detectors/iforest"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PredictionsTotal counts scoring outcomes.
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendguard",
			Name:      "predictions_total",
			Help:      "Scored expenses by result (anomaly, normal, not_ready, invalid).",
		},
		[]string{"result"},
	)

	// AnomalyScore observes raw isolation scores.
	AnomalyScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "spendguard",
		Name:      "anomaly_score",
		Help:      "Isolation score of scored expenses.",
		Buckets:   prometheus.LinearBuckets(0.3, 0.05, 12),
	})

	// ModelLoaded is 1 while an ensemble is installed.
	ModelLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spendguard", Name: "model_loaded",
		Help: "Whether a trained ensemble is loaded.",
	})
	// ModelTrees reports the tree count of the installed ensemble.
	ModelTrees = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "spendguard", Name: "model_trees",
		Help: "Number of trees in the loaded ensemble.",
	})
	// ModelReloadsTotal counts artifact reloads by result.
	ModelReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spendguard", Name: "model_reloads_total",
		Help: "Artifact reload attempts by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PredictionsTotal,
		AnomalyScore,
		ModelLoaded,
		ModelTrees,
		ModelReloadsTotal,
	)
}

// ObservePrediction records a successful scoring result.
func ObservePrediction(r detectors.ScoreResult) {
	AnomalyScore.Observe(r.AnomalyScore)
	if r.IsAnomaly {
		PredictionsTotal.WithLabelValues("anomaly").Inc()
	} else {
		PredictionsTotal.WithLabelValues("normal").Inc()
	}
}

// SetModel updates the model gauges for e, which may be nil.
func SetModel(e *iforest.Ensemble) {
	if e.Len() == 0 {
		ModelLoaded.Set(0)
		ModelTrees.Set(0)
		return
	}
	ModelLoaded.Set(1)
	ModelTrees.Set(float64(e.Len()))
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
