// Package iforest implements the Isolation Forest algorithm for anomaly detection.
//
// Build grows an immutable Ensemble of randomized partitioning trees from a
// batch of historical feature vectors. Score turns a new vector into an
// isolation score and an anomaly decision. An Ensemble is never mutated after
// Build returns, so any number of goroutines may score against it; retraining
// produces a new Ensemble which is published through a Holder.
package iforest

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/spendguard/pkg/detectors"
)

const (
	// DefaultTrees is the number of trees in an ensemble.
	DefaultTrees = 100
	// MaxAutoSampleSize caps the automatic subsample size min(256, N).
	MaxAutoSampleSize = 256
	// MinTrainingSize is the smallest training set Build accepts.
	MinTrainingSize = 10
)

// Ensemble is the trained artifact: a fixed set of independently built
// isolation trees plus the parameters needed to score against them.
type Ensemble struct {
	ID            uuid.UUID
	Trees         []*Tree
	SubsampleSize int
	HeightLimit   int
	NumFeatures   int
	Contamination float64
	// Threshold is the anomaly score above which a sample is an anomaly.
	Threshold float64
}

// Len returns the number of trees.
func (e *Ensemble) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Trees)
}

// Option configures Build.
type Option func(*builder)

type builder struct {
	nTrees        int
	sampleSize    int
	heightLimit   int
	contamination float64
	seed          int64
	workers       int
}

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(b *builder) {
		b.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree. Zero selects
// min(256, N).
func WithSampleSize(n int) Option {
	return func(b *builder) {
		b.sampleSize = n
	}
}

// WithHeightLimit sets the maximum tree depth. Zero selects
// ceil(log2(subsample size)).
func WithHeightLimit(h int) Option {
	return func(b *builder) {
		b.heightLimit = h
	}
}

// WithContamination sets the expected proportion of anomalies. A positive
// value moves the decision threshold to the matching percentile of training
// scores; zero keeps the fixed 0.5 cutoff.
func WithContamination(c float64) Option {
	return func(b *builder) {
		b.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(b *builder) {
		b.seed = seed
	}
}

// WithWorkers bounds the number of trees built concurrently.
func WithWorkers(n int) Option {
	return func(b *builder) {
		b.workers = n
	}
}

// WithConfig applies the shared detector configuration, overriding earlier
// WithContamination and WithSeed options.
func WithConfig(cfg detectors.Config) Option {
	return func(b *builder) {
		b.contamination = cfg.Contamination
		b.seed = cfg.RandomSeed
	}
}

// Build trains an Ensemble on data, where each row is a sample and each column
// a feature. The same data, options and seed always yield the same trees,
// whatever the worker count.
func Build(data [][]float64, opts ...Option) (*Ensemble, error) {
	cfg := detectors.DefaultConfig()
	b := &builder{
		nTrees:        DefaultTrees,
		contamination: cfg.Contamination,
		seed:          cfg.RandomSeed,
		workers:       runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(b)
	}

	nFeatures, err := validateTrainingSet(data)
	if err != nil {
		return nil, err
	}
	if err := b.resolve(len(data)); err != nil {
		return nil, err
	}

	// Seeds are drawn up front so tree i gets the same stream no matter
	// which worker builds it.
	master := rand.New(rand.NewSource(b.seed))
	seeds := make([]int64, b.nTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*Tree, b.nTrees)
	var g errgroup.Group
	g.SetLimit(b.workers)
	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			trees[i] = buildTree(rng, data, b.sampleSize, b.heightLimit, nFeatures)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e := &Ensemble{
		ID:            uuid.New(),
		Trees:         trees,
		SubsampleSize: b.sampleSize,
		HeightLimit:   b.heightLimit,
		NumFeatures:   nFeatures,
		Contamination: b.contamination,
		Threshold:     detectors.DefaultThreshold,
	}

	if b.contamination > 0 {
		scores := make([]float64, len(data))
		for i, row := range data {
			scores[i] = anomalyScore(e, row)
		}
		e.Threshold = percentile(scores, 100*(1-b.contamination))
	}

	return e, nil
}

func (b *builder) resolve(n int) error {
	if b.nTrees < 1 {
		return fmt.Errorf("%w: tree count must be positive, got %d", detectors.ErrInvalidTrainingConfig, b.nTrees)
	}
	if b.workers < 1 {
		b.workers = 1
	}

	if b.sampleSize == 0 {
		b.sampleSize = min(MaxAutoSampleSize, n)
	}
	if b.sampleSize < 2 || b.sampleSize > n {
		return fmt.Errorf("%w: subsample size must be in [2, %d], got %d",
			detectors.ErrInvalidTrainingConfig, n, b.sampleSize)
	}

	if b.heightLimit == 0 {
		b.heightLimit = int(math.Ceil(math.Log2(float64(b.sampleSize))))
	}
	if b.heightLimit < 1 {
		return fmt.Errorf("%w: height limit must be positive, got %d", detectors.ErrInvalidTrainingConfig, b.heightLimit)
	}

	if b.contamination < 0 || b.contamination >= 0.5 || math.IsNaN(b.contamination) {
		return fmt.Errorf("%w: contamination must be in [0, 0.5), got %v",
			detectors.ErrInvalidTrainingConfig, b.contamination)
	}
	return nil
}

func validateTrainingSet(data [][]float64) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty training set", detectors.ErrInvalidTrainingConfig)
	}
	if len(data) < MinTrainingSize {
		return 0, fmt.Errorf("%w: need at least %d samples, got %d",
			detectors.ErrInvalidTrainingConfig, MinTrainingSize, len(data))
	}

	nFeatures := len(data[0])
	if nFeatures == 0 {
		return 0, fmt.Errorf("%w: samples have no features", detectors.ErrInvalidTrainingConfig)
	}
	for i, row := range data {
		if len(row) != nFeatures {
			return 0, fmt.Errorf("%w: sample %d has %d features, want %d",
				detectors.ErrInvalidTrainingConfig, i, len(row), nFeatures)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: sample %d feature %d is not finite",
					detectors.ErrInvalidTrainingConfig, i, j)
			}
		}
	}
	return nFeatures, nil
}
