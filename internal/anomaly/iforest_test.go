package anomaly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvgPathLength(t *testing.T) {
	assert.Equal(t, 0.0, avgPathLength(1))
	assert.Equal(t, 1.0, avgPathLength(2))
	assert.InDelta(t, 2*(math.Log(2)+eulerGamma)-4.0/3.0, avgPathLength(3), 1e-12)
}

func TestIsolationForestScoresOutlierHighest(t *testing.T) {
	X := [][]float64{{10, 1}, {10, 1}, {10, 1}, {10, 1}, {11, 1}, {9, 1}, {10, 1}, {50, 1}}
	f := NewIsolationForest(WithTrees(50), WithSeed(3))
	require.NoError(t, f.Fit(X))
	s, err := f.Score(X)
	require.NoError(t, err)
	for i := 0; i < len(X)-1; i++ {
		assert.Greater(t, s[len(X)-1], s[i], "row %d", i)
	}
	for _, v := range s {
		assert.True(t, v > 0 && v <= 1)
	}
}

func TestIsolationForestSubsampleAndErrors(t *testing.T) {
	f := NewIsolationForest(WithMaxSamples(4))
	X := make([][]float64, 10)
	for i := range X {
		X[i] = []float64{float64(i)}
	}
	require.NoError(t, f.Fit(X))
	assert.Equal(t, 4, f.psi)
	assert.Len(t, f.roots, 100)

	_, err := NewIsolationForest().Score(X)
	assert.Error(t, err)
	assert.Error(t, NewIsolationForest().Fit([][]float64{{1}}))
	assert.Error(t, NewIsolationForest().Fit([][]float64{{1}, {1, 2}}))
	assert.Error(t, NewIsolationForest(WithTrees(0)).Fit(X))
}

func TestQuantileEqualValues(t *testing.T) {
	v := 0.3141592653589793
	assert.Equal(t, v, quantile([]float64{v, v, v}, 0.9))
	assert.InDelta(t, 2.8, quantile([]float64{1, 2, 3}, 0.9), 1e-12)
}
