package iforest

import (
	"sync/atomic"

	"github.com/hed1ad/spendguard/pkg/detectors"
)

// Holder publishes the active ensemble. Readers always observe either the old
// or the new ensemble in full; an ensemble is never modified once stored.
type Holder struct {
	current atomic.Pointer[Ensemble]
}

// NewHolder returns a Holder serving e, which may be nil.
func NewHolder(e *Ensemble) *Holder {
	h := &Holder{}
	if e != nil {
		h.current.Store(e)
	}
	return h
}

// Load returns the active ensemble or nil.
func (h *Holder) Load() *Ensemble {
	return h.current.Load()
}

// Swap installs e and returns the previously active ensemble.
func (h *Holder) Swap(e *Ensemble) *Ensemble {
	return h.current.Swap(e)
}

// Ready reports whether a non-empty ensemble is installed.
func (h *Holder) Ready() bool {
	return h.Load().Len() > 0
}

// Score scores sample against the ensemble active at the time of the call.
func (h *Holder) Score(sample []float64) (detectors.ScoreResult, error) {
	return Score(h.Load(), sample)
}
