package trainer

import (
	"math"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// FitConfig holds the gradient-descent hyperparameters shared by the three
// estimators.
type FitConfig struct {
	Epochs    int
	LearnRate float64
}

// FitScaler computes per-column mean and standard deviation over X.
func FitScaler(X [][]float64) contracts.Scaler {
	if len(X) == 0 {
		return contracts.Scaler{}
	}
	dims := len(X[0])
	mean := make([]float64, dims)
	std := make([]float64, dims)

	for _, row := range X {
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(X))
	for j := range mean {
		mean[j] /= n
	}

	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
	}
	return contracts.Scaler{Mean: mean, Std: std}
}

// FitSoftmax fits a multinomial logistic classifier over the fixed action
// class order by full-batch gradient descent on cross-entropy loss. X must
// already be standardized.
func FitSoftmax(X [][]float64, labels []contracts.PredictedAction, cfg FitConfig) contracts.SoftmaxModel {
	classes := contracts.Actions()
	classIndex := make(map[contracts.PredictedAction]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	dims := 0
	if len(X) > 0 {
		dims = len(X[0])
	}

	model := contracts.SoftmaxModel{
		Classes: classes,
		Weights: make([][]float64, len(classes)),
		Bias:    make([]float64, len(classes)),
	}
	for c := range model.Weights {
		model.Weights[c] = make([]float64, dims)
	}
	if len(X) == 0 {
		return model
	}

	n := float64(len(X))
	gradW := make([][]float64, len(classes))
	gradB := make([]float64, len(classes))
	for c := range gradW {
		gradW[c] = make([]float64, dims)
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		for c := range gradW {
			gradB[c] = 0
			for j := range gradW[c] {
				gradW[c][j] = 0
			}
		}

		for i, x := range X {
			probs := model.Probabilities(x)
			target := classIndex[labels[i]]
			for c := range classes {
				g := probs[c]
				if c == target {
					g -= 1
				}
				gradB[c] += g
				for j, xj := range x {
					gradW[c][j] += g * xj
				}
			}
		}

		for c := range classes {
			model.Bias[c] -= cfg.LearnRate * gradB[c] / n
			for j := range model.Weights[c] {
				model.Weights[c][j] -= cfg.LearnRate * gradW[c][j] / n
			}
		}
	}
	return model
}

// FitLogit fits a binary logistic classifier for price direction. y holds 1
// for an up outcome and 0 otherwise. X must already be standardized.
func FitLogit(X [][]float64, y []int, abstainMargin float64, cfg FitConfig) contracts.LogitModel {
	dims := 0
	if len(X) > 0 {
		dims = len(X[0])
	}
	model := contracts.LogitModel{
		Weights:       make([]float64, dims),
		AbstainMargin: abstainMargin,
	}
	if len(X) == 0 {
		return model
	}

	n := float64(len(X))
	gradW := make([]float64, dims)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		var gradB float64
		for j := range gradW {
			gradW[j] = 0
		}

		for i, x := range X {
			_, upProb, _ := model.Predict(x)
			g := upProb - float64(y[i])
			gradB += g
			for j, xj := range x {
				gradW[j] += g * xj
			}
		}

		model.Bias -= cfg.LearnRate * gradB / n
		for j := range model.Weights {
			model.Weights[j] -= cfg.LearnRate * gradW[j] / n
		}
	}
	return model
}

// FitLinear fits a least-squares regressor for return magnitude by gradient
// descent. X must already be standardized.
func FitLinear(X [][]float64, y []float64, cfg FitConfig) contracts.LinearModel {
	dims := 0
	if len(X) > 0 {
		dims = len(X[0])
	}
	model := contracts.LinearModel{Weights: make([]float64, dims)}
	if len(X) == 0 {
		return model
	}

	n := float64(len(X))
	gradW := make([]float64, dims)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		var gradB float64
		for j := range gradW {
			gradW[j] = 0
		}

		for i, x := range X {
			g := model.Predict(x) - y[i]
			gradB += g
			for j, xj := range x {
				gradW[j] += g * xj
			}
		}

		model.Bias -= cfg.LearnRate * gradB / n
		for j := range model.Weights {
			model.Weights[j] -= cfg.LearnRate * gradW[j] / n
		}
	}
	return model
}
