package contracts

import "time"

// ItemFailure records one per-item failure inside a batch operation. Item
// failures never abort the rest of the batch.
type ItemFailure struct {
	PredictionID string `json:"prediction_id"`
	Symbol       string `json:"symbol"`
	Category     string `json:"category"`
	Message      string `json:"message"`
}

// EvaluationReport enumerates what one evaluator pass did. Batch operations
// return a report, never a bare boolean: partial success is the common case.
type EvaluationReport struct {
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Scanned     int           `json:"scanned"`
	Evaluated   int           `json:"evaluated"` // outcomes written
	Skipped     int           `json:"skipped"`   // already evaluated or horizon not elapsed
	Expired     int           `json:"expired"`
	Quarantined int           `json:"quarantined"`
	Failures    []ItemFailure `json:"failures,omitempty"`
}

// TrainingReport describes one training run, promoted or not.
type TrainingReport struct {
	ModelVersion string                  `json:"model_version,omitempty"`
	Promoted     bool                    `json:"promoted"`
	Reason       string                  `json:"reason,omitempty"` // why promotion was withheld
	Cutoff       time.Time               `json:"cutoff"`
	TrainingRows int                     `json:"training_rows"`
	HoldoutRows  int                     `json:"holdout_rows"`
	ClassCounts  map[PredictedAction]int `json:"class_counts,omitempty"`
	Holdout      HoldoutReport           `json:"holdout_report"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   time.Time               `json:"finished_at"`
}
