// Package expense defines the numeric feature vector scored for each expense
// line item and the helpers that derive it from raw expense fields.
package expense

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// NumFeatures is the dimension of a FeatureVector.
const NumFeatures = 4

// Role codes for the role_encoded feature.
const (
	RoleEmployee = 1
	RoleManager  = 2
)

// ErrInvalidFeature is returned by Validate.
var ErrInvalidFeature = errors.New("invalid feature vector")

// FeatureVector is the input to the anomaly scorer.
type FeatureVector struct {
	Amount     float64 `json:"amount"`
	CategoryID int     `json:"category_id"`
	// DayOfWeek is 0=Monday .. 6=Sunday.
	DayOfWeek   int `json:"day_of_week"`
	RoleEncoded int `json:"role_encoded"`
}

// Features returns the vector in model column order.
func (v FeatureVector) Features() []float64 {
	return []float64{
		v.Amount,
		float64(v.CategoryID),
		float64(v.DayOfWeek),
		float64(v.RoleEncoded),
	}
}

// Validate checks the value ranges of every field.
func (v FeatureVector) Validate() error {
	switch {
	case math.IsNaN(v.Amount) || math.IsInf(v.Amount, 0):
		return fmt.Errorf("%w: amount must be finite", ErrInvalidFeature)
	case v.Amount < 0:
		return fmt.Errorf("%w: amount must be non-negative, got %v", ErrInvalidFeature, v.Amount)
	case v.CategoryID < 0:
		return fmt.Errorf("%w: category_id must be non-negative, got %d", ErrInvalidFeature, v.CategoryID)
	case v.DayOfWeek < 0 || v.DayOfWeek > 6:
		return fmt.Errorf("%w: day_of_week must be in [0, 6], got %d", ErrInvalidFeature, v.DayOfWeek)
	case v.RoleEncoded < 1:
		return fmt.Errorf("%w: role_encoded must be positive, got %d", ErrInvalidFeature, v.RoleEncoded)
	}
	return nil
}

// FromFeatures is the inverse of Features.
func FromFeatures(row []float64) (FeatureVector, error) {
	if len(row) != NumFeatures {
		return FeatureVector{}, fmt.Errorf("%w: got %d columns, want %d", ErrInvalidFeature, len(row), NumFeatures)
	}
	v := FeatureVector{
		Amount:      row[0],
		CategoryID:  int(row[1]),
		DayOfWeek:   int(row[2]),
		RoleEncoded: int(row[3]),
	}
	return v, v.Validate()
}

// Matrix converts vectors into model rows.
func Matrix(vs []FeatureVector) [][]float64 {
	rows := make([][]float64, len(vs))
	for i, v := range vs {
		rows[i] = v.Features()
	}
	return rows
}

// DayOfWeek maps t to 0=Monday .. 6=Sunday.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// EncodeRole maps a submitter role name to its code. Unknown roles are
// treated as employees.
func EncodeRole(role string) int {
	if strings.EqualFold(strings.TrimSpace(role), "manager") {
		return RoleManager
	}
	return RoleEmployee
}

// FeatureNames returns the column names in model order.
func FeatureNames() []string {
	return []string{"amount", "category_id", "day_of_week", "role_encoded"}
}
