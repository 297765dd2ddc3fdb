package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/hed1ad/spendguard/pkg/detectors"
	"github.com/hed1ad/spendguard/pkg/detectors/iforest"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{409, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusBucket(tt.code), "code %d", tt.code)
	}
}

func TestObservePrediction(t *testing.T) {
	anomalies := testutil.ToFloat64(PredictionsTotal.WithLabelValues("anomaly"))
	normals := testutil.ToFloat64(PredictionsTotal.WithLabelValues("normal"))

	ObservePrediction(detectors.NewScoreResult(0.72, 0.5))
	ObservePrediction(detectors.NewScoreResult(0.41, 0.5))
	ObservePrediction(detectors.NewScoreResult(0.44, 0.5))

	assert.Equal(t, anomalies+1, testutil.ToFloat64(PredictionsTotal.WithLabelValues("anomaly")))
	assert.Equal(t, normals+2, testutil.ToFloat64(PredictionsTotal.WithLabelValues("normal")))
}

func TestSetModel(t *testing.T) {
	SetModel(nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(ModelLoaded))

	SetModel(&iforest.Ensemble{Trees: make([]*iforest.Tree, 3)})
	assert.Equal(t, 1.0, testutil.ToFloat64(ModelLoaded))
	assert.Equal(t, 3.0, testutil.ToFloat64(ModelTrees))
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	for _, name := range []string{
		"spendguard_model_loaded",
		"spendguard_model_trees",
	} {
		assert.Contains(t, w.Body.String(), name)
	}
}
