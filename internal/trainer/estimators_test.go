package trainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfoundry/foresight/internal/contracts"
)

func TestFitScaler(t *testing.T) {
	X := [][]float64{
		{1, 10},
		{3, 10},
	}
	s := FitScaler(X)

	assert.Equal(t, []float64{2, 10}, s.Mean)
	require.Len(t, s.Std, 2)
	assert.InDelta(t, 1.0, s.Std[0], 1e-9)
	assert.Equal(t, 0.0, s.Std[1]) // constant column; Apply treats it as 1

	scaled := s.Apply([]float64{3, 10})
	assert.Equal(t, []float64{1, 0}, scaled)
}

func TestFitLogit_SeparatesDirections(t *testing.T) {
	X := [][]float64{{-2}, {-1}, {-0.5}, {0.5}, {1}, {2}}
	y := []int{0, 0, 0, 1, 1, 1}

	m := FitLogit(X, y, 0.05, FitConfig{Epochs: 500, LearnRate: 0.5})

	dir, upProb, abstained := m.Predict([]float64{1.5})
	assert.False(t, abstained)
	assert.Equal(t, 1, dir)
	assert.Greater(t, upProb, 0.6)

	dir, upProb, abstained = m.Predict([]float64{-1.5})
	assert.False(t, abstained)
	assert.Equal(t, -1, dir)
	assert.Less(t, upProb, 0.4)
}

func TestFitLinear_RecoversSlope(t *testing.T) {
	// y = 2x + 1, noiseless
	X := [][]float64{{-2}, {-1}, {0}, {1}, {2}}
	y := []float64{-3, -1, 1, 3, 5}

	m := FitLinear(X, y, FitConfig{Epochs: 2000, LearnRate: 0.1})

	assert.InDelta(t, 2.0, m.Weights[0], 0.05)
	assert.InDelta(t, 1.0, m.Bias, 0.05)
	assert.InDelta(t, 7.0, m.Predict([]float64{3}), 0.2)
}

func TestFitSoftmax_LearnsOrderedClasses(t *testing.T) {
	var X [][]float64
	var labels []contracts.PredictedAction
	for i := 0; i < 20; i++ {
		X = append(X,
			[]float64{1.5}, []float64{0.6}, []float64{0}, []float64{-0.6}, []float64{-1.5})
		labels = append(labels,
			contracts.ActionStrongBuy, contracts.ActionBuy, contracts.ActionHold,
			contracts.ActionSell, contracts.ActionStrongSell)
	}

	m := FitSoftmax(X, labels, FitConfig{Epochs: 1500, LearnRate: 0.5})

	// the extremes must classify correctly
	action, conf := m.Predict([]float64{1.5})
	assert.Equal(t, contracts.ActionStrongBuy, action)
	assert.Greater(t, conf, 0.3)

	action, _ = m.Predict([]float64{-1.5})
	assert.Equal(t, contracts.ActionStrongSell, action)

	// probabilities always normalize
	probs := m.Probabilities([]float64{0.2})
	var sum float64
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}
