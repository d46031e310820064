package contracts

import (
	"context"
	"time"
)

// LedgerRepository is the append-only prediction store. Implementations
// enforce uniqueness on prediction id and on (symbol, bucket) at the storage
// layer so concurrent prediction attempts fail safely instead of racing.
type LedgerRepository interface {
	// InsertPrediction appends a prediction. It returns
	// *DuplicatePredictionError when the (symbol, bucket) slot is taken and
	// rejects reuse of an existing prediction id. Predictions are never
	// updated or deleted; corrections are new predictions.
	InsertPrediction(ctx context.Context, p *Prediction) error

	// GetPrediction resolves a prediction by id (ErrPredictionNotFound).
	GetPrediction(ctx context.Context, id string) (*Prediction, error)

	// ListPredictions returns predictions with prediction_timestamp in
	// [from, to), oldest first.
	ListPredictions(ctx context.Context, from, to time.Time) ([]Prediction, error)

	// ListPendingBefore returns PENDING predictions with
	// prediction_timestamp <= ts, oldest first.
	ListPendingBefore(ctx context.Context, ts time.Time) ([]Prediction, error)

	// MarkEvaluated transitions PENDING -> EVALUATED (ErrNotPending otherwise).
	MarkEvaluated(ctx context.Context, id string) error

	// MarkExpired transitions PENDING -> EXPIRED (ErrNotPending otherwise).
	MarkExpired(ctx context.Context, id string) error
}

// OutcomeRepository stores realized outcomes, keyed by prediction identity.
// At most one outcome exists per (prediction, horizon), enforced at the
// storage layer.
type OutcomeRepository interface {
	// InsertOutcome appends an outcome. ErrOutcomeExists on a second write
	// for the same (prediction, horizon).
	InsertOutcome(ctx context.Context, o *Outcome) error

	// HasOutcome reports whether an outcome exists for (prediction, horizon).
	HasOutcome(ctx context.Context, predictionID string, horizon time.Duration) (bool, error)

	// ListOutcomesForPrediction returns all outcomes referencing a prediction.
	ListOutcomesForPrediction(ctx context.Context, predictionID string) ([]Outcome, error)

	// ListOutcomes returns outcomes with evaluation_timestamp in [from, to).
	ListOutcomes(ctx context.Context, from, to time.Time) ([]Outcome, error)

	// ListEvaluatedPairs joins EVALUATED predictions with their outcome for
	// one horizon, restricted to prediction_timestamp in [from, to),
	// oldest first. This is the trainer's only read path.
	ListEvaluatedPairs(ctx context.Context, from, to time.Time, horizon time.Duration) ([]EvaluatedPair, error)
}

// EvaluatedPair couples a prediction with its realized outcome for one
// horizon.
type EvaluatedPair struct {
	Prediction Prediction
	Outcome    Outcome
}

// BundleRepository is the model bundle registry. Bundles are superseded,
// never deleted; old versions stay for rollback and audit.
type BundleRepository interface {
	// SaveBundle stores a new, unpromoted bundle version.
	SaveBundle(ctx context.Context, b *ModelBundle) error

	// GetBundle resolves a bundle by version (ErrBundleNotFound).
	GetBundle(ctx context.Context, version string) (*ModelBundle, error)

	// Promote atomically makes the named version the promoted bundle,
	// demoting the previous one in the same operation.
	Promote(ctx context.Context, version string) error

	// GetPromoted returns the currently promoted bundle
	// (ErrNoPromotedModel when none).
	GetPromoted(ctx context.Context) (*ModelBundle, error)

	// ListBundles returns version history, newest first.
	ListBundles(ctx context.Context) ([]BundleInfo, error)
}

// BundleInfo is the registry listing of one bundle version.
type BundleInfo struct {
	Version   string        `json:"model_version"`
	Promoted  bool          `json:"promoted"`
	CreatedAt time.Time     `json:"created_at"`
	Holdout   HoldoutReport `json:"holdout"`
}

// MarketDataProvider supplies historical close prices. Implementations must
// return *MarketDataUnavailableError when no data exists for the requested
// timestamp rather than silently returning a stale or nearest value.
type MarketDataProvider interface {
	PriceAt(ctx context.Context, symbol string, ts time.Time) (float64, error)
}
