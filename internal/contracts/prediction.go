package contracts

import "time"

// PredictedAction is the trading action a prediction recommends.
type PredictedAction string

const (
	ActionStrongBuy  PredictedAction = "STRONG_BUY"
	ActionBuy        PredictedAction = "BUY"
	ActionHold       PredictedAction = "HOLD"
	ActionSell       PredictedAction = "SELL"
	ActionStrongSell PredictedAction = "STRONG_SELL"
)

// Actions returns every action class in a stable order. The order doubles as
// the class index order used by the action classifier.
func Actions() []PredictedAction {
	return []PredictedAction{
		ActionStrongBuy,
		ActionBuy,
		ActionHold,
		ActionSell,
		ActionStrongSell,
	}
}

// PredictionStatus is the lifecycle state of a prediction.
// PENDING -> EVALUATED | EXPIRED; terminal states never transition back.
type PredictionStatus string

const (
	StatusPending   PredictionStatus = "PENDING"
	StatusEvaluated PredictionStatus = "EVALUATED"
	StatusExpired   PredictionStatus = "EXPIRED"
)

// Prediction is an immutable forward-looking record produced before the
// outcome is known. Everything except Status is fixed at creation; Status is
// lifecycle metadata transitioned only through one-way ledger operations.
type Prediction struct {
	ID                  string           `json:"prediction_id"`
	Symbol              string           `json:"symbol"`
	PredictionTimestamp time.Time        `json:"prediction_timestamp"` // wall-clock time of feature collection
	Bucket              time.Time        `json:"bucket"`               // dedup key: at most one prediction per (symbol, bucket)
	Action              PredictedAction  `json:"predicted_action"`
	ActionConfidence    float64          `json:"action_confidence"` // top-class probability, [0,1]
	Direction           *int             `json:"predicted_direction,omitempty"` // +1/-1, nil when the direction model abstains
	Magnitude           float64          `json:"predicted_magnitude"` // signed expected return, pct
	Features            FeatureVector    `json:"feature_snapshot"`    // stored verbatim for audit
	ModelVersion        string           `json:"model_version"`
	Status              PredictionStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
}

// Age returns how long ago the prediction's features were collected.
func (p *Prediction) Age(now time.Time) time.Duration {
	return now.Sub(p.PredictionTimestamp)
}

// BucketKey discretizes a timestamp into its dedup bucket.
func BucketKey(ts time.Time, interval time.Duration) time.Time {
	return ts.UTC().Truncate(interval)
}

// Outcome is the realized result for a prediction over one horizon, computed
// strictly after MinEvalDelay has elapsed. Immutable once created; it
// references its prediction by id and never the reverse.
type Outcome struct {
	ID                  string        `json:"outcome_id"`
	PredictionID        string        `json:"prediction_id"`
	Horizon             time.Duration `json:"horizon"`
	EntryPrice          float64       `json:"entry_price"`
	ExitPrice           float64       `json:"exit_price"`
	ActualReturnPct     float64       `json:"actual_return_pct"`
	ActualDirection     int           `json:"actual_direction"`
	EvaluationTimestamp time.Time     `json:"evaluation_timestamp"`
}

// ReturnPct computes the percentage return from entry to exit.
// 100.0 -> 105.0 yields 5.0, not 0.05.
func ReturnPct(entry, exit float64) float64 {
	return (exit - entry) / entry * 100
}

// Sign returns +1, -1 or 0 for a realized return.
func Sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
