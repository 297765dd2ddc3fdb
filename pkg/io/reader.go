// Package io provides input/output contracts for training data and scoring
// results.
package io

import (
	"context"

	"github.com/hed1ad/spendguard/pkg/detectors"
	"github.com/hed1ad/spendguard/pkg/expense"
)

// TrainingSource loads the historical expenses an ensemble is trained on.
type TrainingSource interface {
	// Read returns the complete training set.
	Read(ctx context.Context) ([]expense.FeatureVector, error)

	// Close releases resources.
	Close() error
}

// Writer is the interface for writing detection results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// Close releases resources.
	Close() error
}

// Result pairs a scored expense with its decision.
type Result struct {
	Timestamp int64                 `json:"timestamp"`
	Expense   expense.FeatureVector `json:"expense"`
	detectors.ScoreResult
}
