package iforest

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/hed1ad/spendguard/pkg/detectors"
)

const eulerGamma = 0.5772156649

// averagePathLength is c(n), the average path length of an unsuccessful
// search in a binary search tree of n points:
// c(n) = 2*(ln(n-1) + gamma) - 2*(n-1)/n, with c(n) = 0 for n <= 1.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}

// Score returns the decision for a single sample.
func Score(e *Ensemble, sample []float64) (detectors.ScoreResult, error) {
	if err := checkReady(e, sample); err != nil {
		return detectors.ScoreResult{}, err
	}
	return detectors.NewScoreResult(anomalyScore(e, sample), e.Threshold), nil
}

// AnomalyScore returns the raw isolation score of sample, in (0, 1]. Values
// close to 1 mean the sample was isolated quickly.
func AnomalyScore(e *Ensemble, sample []float64) (float64, error) {
	if err := checkReady(e, sample); err != nil {
		return 0, err
	}
	return anomalyScore(e, sample), nil
}

// ScoreBatch scores every sample against the same ensemble.
func ScoreBatch(e *Ensemble, samples [][]float64) ([]detectors.ScoreResult, error) {
	if e.Len() == 0 {
		return nil, detectors.ErrModelNotReady
	}

	results := make([]detectors.ScoreResult, len(samples))
	for i, sample := range samples {
		r, err := Score(e, sample)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		results[i] = r
	}
	return results, nil
}

// ScoreStream scores samples from input until it is closed or ctx is done.
// Samples that cannot be scored are forwarded with Err set.
func ScoreStream(ctx context.Context, e *Ensemble, input <-chan []float64, output chan<- detectors.Score) error {
	if e.Len() == 0 {
		return detectors.ErrModelNotReady
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return nil
			}

			r, err := Score(e, sample)
			select {
			case output <- detectors.Score{Result: r, Features: sample, Err: err}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func checkReady(e *Ensemble, sample []float64) error {
	if e.Len() == 0 {
		return detectors.ErrModelNotReady
	}
	if len(sample) != e.NumFeatures {
		return fmt.Errorf("%w: got %d features, want %d", detectors.ErrDimensionMismatch, len(sample), e.NumFeatures)
	}
	return nil
}

// anomalyScore computes 2^(-E[h(x)] / c(psi)). Summation runs over trees in
// order, so results are bit-identical across runs.
func anomalyScore(e *Ensemble, sample []float64) float64 {
	var totalPath, totalSize float64
	for _, tree := range e.Trees {
		totalPath += pathLength(sample, tree.Root)
		totalSize += float64(tree.SubsampleSize)
	}
	n := float64(len(e.Trees))
	avgPath := totalPath / n

	norm := averagePathLength(totalSize / n)
	return math.Pow(2, -avgPath/norm)
}

// percentile returns the p-th percentile of data using the lower nearest rank.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}
