package contracts

import (
	"math"
	"time"
)

// Scaler standardizes feature vectors with the statistics of the training
// set. It is fitted by the trainer and carried inside the bundle so training
// and inference always apply the same transform.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Apply returns the standardized copy of x.
func (s Scaler) Apply(x []float64) []float64 {
	if len(s.Mean) != len(x) {
		return x
	}
	out := make([]float64, len(x))
	for i := range x {
		std := s.Std[i]
		if std == 0 {
			std = 1
		}
		out[i] = (x[i] - s.Mean[i]) / std
	}
	return out
}

// SoftmaxModel is a fitted multinomial logistic classifier over action
// classes.
type SoftmaxModel struct {
	Classes []PredictedAction `json:"classes"`
	Weights [][]float64       `json:"weights"` // one weight row per class
	Bias    []float64         `json:"bias"`
}

// Probabilities returns the class probability distribution for x.
func (m SoftmaxModel) Probabilities(x []float64) []float64 {
	scores := make([]float64, len(m.Classes))
	maxScore := math.Inf(-1)
	for i := range m.Classes {
		scores[i] = dot(m.Weights[i], x) + m.Bias[i]
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
	}

	// shift by max for numerical stability
	var sum float64
	for i := range scores {
		scores[i] = math.Exp(scores[i] - maxScore)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores
}

// Predict returns the top class and its probability.
func (m SoftmaxModel) Predict(x []float64) (PredictedAction, float64) {
	probs := m.Probabilities(x)
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return m.Classes[best], probs[best]
}

// LogitModel is a fitted binary logistic classifier for price direction.
// When the up-probability falls inside the abstain margin around 0.5 the
// model declines to call a direction.
type LogitModel struct {
	Weights       []float64 `json:"weights"`
	Bias          float64   `json:"bias"`
	AbstainMargin float64   `json:"abstain_margin"`
}

// Predict returns the direction (+1 or -1), the up-probability, and whether
// the model abstained.
func (m LogitModel) Predict(x []float64) (direction int, upProb float64, abstained bool) {
	upProb = sigmoid(dot(m.Weights, x) + m.Bias)
	if math.Abs(upProb-0.5) < m.AbstainMargin {
		return 0, upProb, true
	}
	if upProb >= 0.5 {
		return 1, upProb, false
	}
	return -1, upProb, false
}

// LinearModel is a fitted least-squares regressor for return magnitude.
type LinearModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Predict returns the expected signed return pct for x.
func (m LinearModel) Predict(x []float64) float64 {
	return dot(m.Weights, x) + m.Bias
}

// HoldoutReport summarizes a bundle's performance on the temporally-later
// holdout slice it was never fitted on.
type HoldoutReport struct {
	Samples           int       `json:"samples"`
	ActionAccuracy    float64   `json:"action_accuracy"`
	DirectionAccuracy float64   `json:"direction_accuracy"`
	MagnitudeMAE      float64   `json:"magnitude_mae"`
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
}

// ModelBundle is the versioned, atomically-promoted set of estimators used by
// the prediction engine. The engine always reads a bundle as a single unit;
// estimators are never swapped individually.
type ModelBundle struct {
	Version     string        `json:"model_version"`
	Schema      FeatureSchema `json:"feature_schema"`
	Scaler      Scaler        `json:"scaler"`
	Action      SoftmaxModel  `json:"action_model"`
	Direction   LogitModel    `json:"direction_model"`
	Magnitude   LinearModel   `json:"magnitude_model"`
	TrainedFrom time.Time     `json:"trained_from"`
	TrainedTo   time.Time     `json:"trained_to"`
	Holdout     HoldoutReport `json:"holdout"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Inference is the combined output of the three estimators for one vector.
type Inference struct {
	Action           PredictedAction
	ActionConfidence float64
	Direction        *int // nil when the direction model abstains
	Magnitude        float64
}

// Infer runs all three estimators against one validated feature map.
func (b *ModelBundle) Infer(values map[string]float64) Inference {
	x := b.Scaler.Apply(b.Schema.Vectorize(values))

	action, confidence := b.Action.Predict(x)

	inf := Inference{
		Action:           action,
		ActionConfidence: confidence,
		Magnitude:        b.Magnitude.Predict(x),
	}

	if dir, _, abstained := b.Direction.Predict(x); !abstained {
		inf.Direction = &dir
	}
	return inf
}

func dot(w, x []float64) float64 {
	var sum float64
	n := len(w)
	if len(x) < n {
		n = len(x)
	}
	for i := 0; i < n; i++ {
		sum += w[i] * x[i]
	}
	return sum
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
