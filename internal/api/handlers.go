// Package api exposes the anomaly scorer over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hed1ad/spendguard/internal/metrics"
	"github.com/hed1ad/spendguard/pkg/detectors"
	"github.com/hed1ad/spendguard/pkg/detectors/iforest"
	"github.com/hed1ad/spendguard/pkg/expense"
	"github.com/hed1ad/spendguard/pkg/store"
)

const (
	serviceName        = "spendguard"
	healthCheckTimeout = 2 * time.Second
)

// Handler serves scoring requests against the ensemble published in a Holder.
type Handler struct {
	holder    *iforest.Holder
	store     store.HealthChecker
	logger    logrus.FieldLogger
	startTime time.Time
}

// PredictRequest is the body of POST /predict/anomaly. Pointers distinguish a
// missing field from a legitimate zero such as Monday.
type PredictRequest struct {
	Amount      *float64 `json:"amount" binding:"required"`
	CategoryID  *int     `json:"category_id" binding:"required"`
	DayOfWeek   *int     `json:"day_of_week" binding:"required"`
	RoleEncoded *int     `json:"role_encoded" binding:"required"`
}

func (r PredictRequest) vector() expense.FeatureVector {
	return expense.FeatureVector{
		Amount:      *r.Amount,
		CategoryID:  *r.CategoryID,
		DayOfWeek:   *r.DayOfWeek,
		RoleEncoded: *r.RoleEncoded,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse reports liveness, whether a model is being served and, for
// remote artifact stores, whether the store answers.
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	ModelLoaded bool   `json:"model_loaded"`
	Store       string `json:"store,omitempty"`
	Uptime      string `json:"uptime"`
}

// ModelResponse describes the ensemble currently served.
type ModelResponse struct {
	ID            string  `json:"id"`
	Trees         int     `json:"trees"`
	SubsampleSize int     `json:"subsample_size"`
	HeightLimit   int     `json:"height_limit"`
	NumFeatures   int     `json:"num_features"`
	Contamination float64 `json:"contamination"`
	Threshold     float64 `json:"threshold"`
}

// NewHandler serves the ensemble in holder. checker may be nil when the
// artifact store has nothing to probe.
func NewHandler(holder *iforest.Holder, checker store.HealthChecker, logger logrus.FieldLogger) *Handler {
	return &Handler{
		holder:    holder,
		store:     checker,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Root answers GET /.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "spendguard anomaly engine is running"})
}

// Health answers GET /health. An unreachable store turns the response into
// a 503 with status "degraded".
func (h *Handler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:      "active",
		Service:     serviceName,
		ModelLoaded: h.holder.Ready(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
	}
	code := http.StatusOK

	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		resp.Store = "ok"
		if err := h.store.HealthCheck(ctx); err != nil {
			h.logger.WithError(err).Warn("artifact store health check failed")
			resp.Status = "degraded"
			resp.Store = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, resp)
}

// Predict scores one expense. The ensemble is read once, so a concurrent
// reload cannot change the model halfway through a request.
func (h *Handler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.PredictionsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{Status: "error", Code: "invalid_request", Message: err.Error()})
		return
	}

	v := req.vector()
	if err := v.Validate(); err != nil {
		metrics.PredictionsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{Status: "error", Code: "invalid_request", Message: err.Error()})
		return
	}

	e := h.holder.Load()
	if e.Len() == 0 {
		h.modelNotReady(c)
		return
	}

	result, err := iforest.Score(e, v.Features())
	if err != nil {
		if errors.Is(err, detectors.ErrModelNotReady) {
			h.modelNotReady(c)
			return
		}
		h.logger.WithError(err).Error("scoring failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Status: "error", Code: "internal", Message: err.Error()})
		return
	}

	metrics.ObservePrediction(result)
	if result.IsAnomaly {
		h.logger.WithFields(logrus.Fields{
			"amount":         v.Amount,
			"category_id":    v.CategoryID,
			"day_of_week":    v.DayOfWeek,
			"severity_score": result.SeverityScore,
			"request_id":     c.GetString(requestIDKey),
		}).Info("expense flagged as anomaly")
	}

	c.JSON(http.StatusOK, result)
}

// Model answers GET /model with the served ensemble's metadata, or 409 when
// none is loaded.
func (h *Handler) Model(c *gin.Context) {
	e := h.holder.Load()
	if e.Len() == 0 {
		h.modelNotReady(c)
		return
	}

	c.JSON(http.StatusOK, ModelResponse{
		ID:            e.ID.String(),
		Trees:         e.Len(),
		SubsampleSize: e.SubsampleSize,
		HeightLimit:   e.HeightLimit,
		NumFeatures:   e.NumFeatures,
		Contamination: e.Contamination,
		Threshold:     e.Threshold,
	})
}

func (h *Handler) modelNotReady(c *gin.Context) {
	metrics.PredictionsTotal.WithLabelValues("not_ready").Inc()
	c.JSON(http.StatusConflict, ErrorResponse{
		Status:  "error",
		Code:    "model_not_ready",
		Message: "model not trained yet",
	})
}
