// Package detectors holds the types shared by the anomaly detection engines:
// the scoring result, the decision configuration and the error taxonomy.
package detectors

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTrainingConfig is returned for malformed builder input: an empty
	// or undersized training set, a subsample size out of range, a non-positive
	// tree count or an out-of-range contamination.
	ErrInvalidTrainingConfig = errors.New("invalid training config")

	// ErrModelNotReady is returned when scoring is attempted without a trained
	// ensemble. It is an expected operational state, not an internal fault.
	ErrModelNotReady = errors.New("model not ready")

	// ErrDimensionMismatch is returned when a sample does not have the number of
	// features the ensemble was trained on.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
)

// DefaultThreshold is the anomaly score cutoff used when no contamination is set.
const DefaultThreshold = 0.5

// ScoreResult is the per-transaction output of the scorer.
type ScoreResult struct {
	// IsAnomaly is true when SeverityScore is negative.
	IsAnomaly bool `json:"is_anomaly"`
	// SeverityScore is threshold - anomalyScore. Lower is more abnormal,
	// negative means anomaly.
	SeverityScore float64 `json:"severity_score"`
	// Confidence is |SeverityScore| rendered with four decimals.
	Confidence string `json:"confidence"`
	// AnomalyScore is the raw isolation score in (0, 1]. Not part of the wire
	// contract.
	AnomalyScore float64 `json:"-"`
}

// NewScoreResult derives the reported result from a raw anomaly score and the
// decision threshold.
func NewScoreResult(anomalyScore, threshold float64) ScoreResult {
	severity := threshold - anomalyScore
	return ScoreResult{
		IsAnomaly:     severity < 0,
		SeverityScore: severity,
		Confidence:    FormatConfidence(severity),
		AnomalyScore:  anomalyScore,
	}
}

// FormatConfidence renders the magnitude of a severity score with four decimals.
func FormatConfidence(severity float64) string {
	return decimal.NewFromFloat(math.Abs(severity)).StringFixed(4)
}

// ConfidenceValue is the numeric form of the confidence field.
func (r ScoreResult) ConfidenceValue() float64 {
	return math.Abs(r.SeverityScore)
}

// Config holds the decision-related configuration shared by detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in training data.
	// Zero keeps the fixed DefaultThreshold.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns the default detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0,
		RandomSeed:    42,
	}
}

// Score is a streamed scoring result paired with the input it was computed
// for.
type Score struct {
	Result   ScoreResult
	Features []float64
	Err      error
}
