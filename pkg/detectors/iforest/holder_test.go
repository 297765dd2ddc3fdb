package iforest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/spendguard/pkg/detectors"
	"github.com/hed1ad/spendguard/pkg/expense"
)

func TestHolder(t *testing.T) {
	h := NewHolder(nil)
	assert.False(t, h.Ready())
	assert.Nil(t, h.Load())

	_, err := h.Score([]float64{1, 1, 1, 1})
	assert.ErrorIs(t, err, detectors.ErrModelNotReady)

	first := buildExpenseEnsemble(t)
	assert.Nil(t, h.Swap(first))
	assert.True(t, h.Ready())
	assert.Same(t, first, h.Load())

	second, err := Build(expense.Matrix(expense.Synthetic(1, 100, 50)), WithTrees(10))
	require.NoError(t, err)
	assert.Same(t, first, h.Swap(second))
	assert.Same(t, second, h.Load())
}

func TestHolderConcurrentSwap(t *testing.T) {
	a := buildExpenseEnsemble(t)
	b, err := Build(expense.Matrix(expense.Synthetic(2, 100, 50)), WithTrees(20), WithSeed(2))
	require.NoError(t, err)

	probe := expense.FeatureVector{Amount: 52, CategoryID: 1, DayOfWeek: 2, RoleEncoded: 1}.Features()
	wantA, err := Score(a, probe)
	require.NoError(t, err)
	wantB, err := Score(b, probe)
	require.NoError(t, err)

	h := NewHolder(a)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				if i == 0 && j%10 == 0 {
					if j%20 == 0 {
						h.Swap(b)
					} else {
						h.Swap(a)
					}
				}
				got, err := h.Score(probe)
				if !assert.NoError(t, err) {
					return
				}
				// Each call sees one whole ensemble, never a mix.
				assert.True(t, got == wantA || got == wantB)
			}
		}()
	}
	wg.Wait()
}
