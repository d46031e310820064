package contracts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrPredictionNotFound is returned when a prediction id does not resolve.
	ErrPredictionNotFound = errors.New("prediction not found")

	// ErrBundleNotFound is returned when a model version does not resolve.
	ErrBundleNotFound = errors.New("model bundle not found")

	// ErrNoPromotedModel is returned when inference is attempted before any
	// bundle has been promoted.
	ErrNoPromotedModel = errors.New("no promoted model bundle")

	// ErrOutcomeExists is returned on a second outcome write for the same
	// (prediction, horizon). Callers treat it as an idempotent no-op.
	ErrOutcomeExists = errors.New("outcome already recorded for prediction and horizon")

	// ErrNotPending is returned when a lifecycle transition is attempted on a
	// prediction that already left the PENDING state.
	ErrNotPending = errors.New("prediction is not pending")

	// ErrTrainingInProgress is returned when a training run cannot acquire
	// the training lease.
	ErrTrainingInProgress = errors.New("another training run is in progress")
)

// FeatureSchemaError reports a feature vector that does not match the schema
// of the promoted model bundle. No prediction is written.
type FeatureSchemaError struct {
	SchemaVersion   string
	VersionMismatch string // the vector's schema version, when it differs
	Missing         []string
	Unexpected      []string
}

func (e *FeatureSchemaError) Error() string {
	var parts []string
	if e.VersionMismatch != "" {
		parts = append(parts, fmt.Sprintf("schema version %q does not match %q", e.VersionMismatch, e.SchemaVersion))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing features: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, fmt.Sprintf("unexpected features: %s", strings.Join(e.Unexpected, ", ")))
	}
	if len(parts) == 0 {
		parts = append(parts, "schema mismatch")
	}
	return "feature schema error: " + strings.Join(parts, "; ")
}

// DuplicatePredictionError reports a second prediction attempt for a
// (symbol, bucket) that already holds one. Non-fatal: the caller should treat
// it as "already predicted this interval".
type DuplicatePredictionError struct {
	Symbol string
	Bucket time.Time
}

func (e *DuplicatePredictionError) Error() string {
	return fmt.Sprintf("duplicate prediction for %s in bucket %s", e.Symbol, e.Bucket.Format(time.RFC3339))
}

// MarketDataUnavailableError signals that no price exists for the requested
// timestamp (e.g. a non-trading day). Providers must return it explicitly
// rather than a stale or nearest value.
type MarketDataUnavailableError struct {
	Symbol string
	At     time.Time
}

func (e *MarketDataUnavailableError) Error() string {
	return fmt.Sprintf("no market data for %s at %s", e.Symbol, e.At.Format(time.RFC3339))
}

// TemporalIntegrityError carries a failed audit. It halts the evaluator and
// trainer until an operator intervenes; it is never auto-corrected.
type TemporalIntegrityError struct {
	Report *AuditReport
}

func (e *TemporalIntegrityError) Error() string {
	return fmt.Sprintf("temporal integrity violated: %d critical violation(s)", e.Report.CriticalCount())
}

// InsufficientTrainingDataError aborts a training run without promoting any
// bundle.
type InsufficientTrainingDataError struct {
	Class string
	Need  int
	Got   int
}

func (e *InsufficientTrainingDataError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("insufficient training data: class %s has %d rows, need %d", e.Class, e.Got, e.Need)
	}
	return fmt.Sprintf("insufficient training data: %d rows, need %d", e.Got, e.Need)
}
