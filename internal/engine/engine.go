package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// Engine produces predictions from feature vectors using the promoted model
// bundle. Every accepted prediction is written to the ledger before it is
// returned, so nothing the engine emits can escape evaluation.
type Engine struct {
	ledger   contracts.LedgerRepository
	registry *Registry

	bucketInterval    time.Duration
	backdateTolerance time.Duration

	now func() time.Time
	log zerolog.Logger
}

// Config holds the engine tunables.
type Config struct {
	BucketInterval    time.Duration
	BackdateTolerance time.Duration
}

// New creates a prediction engine.
func New(ledger contracts.LedgerRepository, registry *Registry, cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		ledger:            ledger,
		registry:          registry,
		bucketInterval:    cfg.BucketInterval,
		backdateTolerance: cfg.BackdateTolerance,
		now:               time.Now,
		log:               log.With().Str("component", "engine").Logger(),
	}
}

// WithClock overrides the wall clock for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Predict validates a feature vector against the promoted bundle's schema,
// runs inference, and appends the resulting prediction to the ledger.
//
// Errors callers should branch on:
//   - ErrNoPromotedModel: nothing has been trained and promoted yet
//   - *FeatureSchemaError: the vector does not match the bundle's schema
//   - *DuplicatePredictionError: this (symbol, bucket) already holds a
//     prediction; treat as "already predicted this interval"
func (e *Engine) Predict(ctx context.Context, fv contracts.FeatureVector) (*contracts.Prediction, error) {
	bundle, err := e.registry.Current()
	if err != nil {
		return nil, err
	}

	if err := bundle.Schema.Validate(fv); err != nil {
		return nil, err
	}

	now := e.now()
	if err := e.checkTimestamps(fv, now); err != nil {
		return nil, err
	}

	inference := bundle.Infer(fv.Values)

	p := &contracts.Prediction{
		ID:                  uuid.NewString(),
		Symbol:              fv.Symbol,
		PredictionTimestamp: fv.CollectedAt,
		Bucket:              contracts.BucketKey(fv.CollectedAt, e.bucketInterval),
		Action:              inference.Action,
		ActionConfidence:    inference.ActionConfidence,
		Direction:           inference.Direction,
		Magnitude:           inference.Magnitude,
		Features:            fv,
		ModelVersion:        bundle.Version,
		Status:              contracts.StatusPending,
		CreatedAt:           now,
	}

	if err := e.ledger.InsertPrediction(ctx, p); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("prediction_id", p.ID).
		Str("symbol", p.Symbol).
		Str("action", string(p.Action)).
		Float64("confidence", p.ActionConfidence).
		Str("model_version", p.ModelVersion).
		Time("bucket", p.Bucket).
		Msg("prediction recorded")

	return p, nil
}

// checkTimestamps rejects vectors the ledger must never see: features from
// the future, features older than the backdate tolerance, and per-feature
// collection times that postdate the snapshot itself.
func (e *Engine) checkTimestamps(fv contracts.FeatureVector, now time.Time) error {
	if fv.CollectedAt.IsZero() {
		return fmt.Errorf("feature vector for %s has no collection timestamp", fv.Symbol)
	}
	if fv.CollectedAt.After(now) {
		return fmt.Errorf("feature vector for %s collected at %s, which is in the future",
			fv.Symbol, fv.CollectedAt.Format(time.RFC3339))
	}
	if age := now.Sub(fv.CollectedAt); age > e.backdateTolerance {
		return fmt.Errorf("feature vector for %s is %s old, tolerance is %s",
			fv.Symbol, age.Round(time.Second), e.backdateTolerance)
	}
	for name, collected := range fv.CollectedTimes {
		if collected.After(fv.CollectedAt) {
			return fmt.Errorf("feature %q collected at %s, after the snapshot timestamp %s",
				name, collected.Format(time.RFC3339), fv.CollectedAt.Format(time.RFC3339))
		}
	}
	return nil
}
