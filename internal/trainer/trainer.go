package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/contracts"
	"github.com/quantfoundry/foresight/internal/guard"
	"github.com/quantfoundry/foresight/pkg/redis"
)

// trainLeaseName keys the mutual-exclusion lease for training runs.
const trainLeaseName = "train"

// Trainer fits a new model bundle from realized outcomes. The cutoff rule is
// absolute: rows with a prediction timestamp at or after now-HoldoutWindow
// never enter the training set; they form the holdout the candidate bundle
// must clear before promotion.
type Trainer struct {
	outcomes contracts.OutcomeRepository
	bundles  contracts.BundleRepository
	guard    *guard.Guard
	lease    *redis.Lease

	cfg Config

	now func() time.Time
	log zerolog.Logger
}

// Config holds the trainer tunables.
type Config struct {
	TrainingWindow     time.Duration // how far back training rows reach
	HoldoutWindow      time.Duration
	Horizon            time.Duration // which outcome horizon supplies labels
	MinSamplesPerClass int
	HoldoutFloorRatio  float64
	Epochs             int
	LearnRate          float64
	Thresholds         LabelThresholds
	AbstainMargin      float64
	LeaseTTL           time.Duration
}

// New creates a trainer.
func New(outcomes contracts.OutcomeRepository, bundles contracts.BundleRepository, g *guard.Guard, lease *redis.Lease, cfg Config, log zerolog.Logger) *Trainer {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Minute
	}
	return &Trainer{
		outcomes: outcomes,
		bundles:  bundles,
		guard:    g,
		lease:    lease,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("component", "trainer").Logger(),
	}
}

// WithClock overrides the wall clock for tests.
func (t *Trainer) WithClock(now func() time.Time) *Trainer {
	t.now = now
	return t
}

// Train runs one training attempt end to end: lease, audit, dataset
// assembly, fitting, holdout validation, and conditional promotion. A report
// is returned even when promotion is withheld; only hard failures error.
func (t *Trainer) Train(ctx context.Context) (*contracts.TrainingReport, error) {
	release, ok, err := t.lease.Acquire(ctx, trainLeaseName, t.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("trainer: acquire lease: %w", err)
	}
	if !ok {
		return nil, contracts.ErrTrainingInProgress
	}
	defer release()

	now := t.now()
	cutoff := now.Add(-t.cfg.HoldoutWindow)
	from := now.Add(-t.cfg.TrainingWindow)

	report := &contracts.TrainingReport{StartedAt: now, Cutoff: cutoff}

	audit, err := t.guard.Audit(ctx, from, now.Add(time.Second))
	if err != nil {
		return nil, fmt.Errorf("trainer: pre-run audit: %w", err)
	}
	if audit.HasCritical() {
		t.log.Error().
			Int("critical", audit.CriticalCount()).
			Msg("refusing to train: audit found critical violations")
		return nil, &contracts.TemporalIntegrityError{Report: audit}
	}
	quarantined := audit.QuarantinedPredictions()

	trainPairs, err := t.outcomes.ListEvaluatedPairs(ctx, from, cutoff, t.cfg.Horizon)
	if err != nil {
		return nil, fmt.Errorf("trainer: list training pairs: %w", err)
	}
	holdPairs, err := t.outcomes.ListEvaluatedPairs(ctx, cutoff, now, t.cfg.Horizon)
	if err != nil {
		return nil, fmt.Errorf("trainer: list holdout pairs: %w", err)
	}

	schema, err := deriveSchema(trainPairs)
	if err != nil {
		return nil, err
	}

	train := assemble(trainPairs, schema, quarantined, cutoff, t.cfg.Thresholds)
	report.TrainingRows = len(train.X)
	report.ClassCounts = train.classCounts()

	if err := t.checkClassCounts(report.ClassCounts); err != nil {
		return nil, err
	}

	scaler := FitScaler(train.X)
	scaled := make([][]float64, len(train.X))
	for i, row := range train.X {
		scaled[i] = scaler.Apply(row)
	}

	fit := FitConfig{Epochs: t.cfg.Epochs, LearnRate: t.cfg.LearnRate}
	bundle := &contracts.ModelBundle{
		Version:     "m-" + now.UTC().Format("20060102-150405"),
		Schema:      schema,
		Scaler:      scaler,
		Action:      FitSoftmax(scaled, train.labels, fit),
		Direction:   FitLogit(scaled, train.up, t.cfg.AbstainMargin, fit),
		Magnitude:   FitLinear(scaled, train.returns, fit),
		TrainedFrom: from,
		TrainedTo:   cutoff,
		CreatedAt:   now,
	}

	holdout := assemble(holdPairs, schema, quarantined, now.Add(time.Second), t.cfg.Thresholds)
	bundle.Holdout = t.validate(bundle, holdout, cutoff, now)
	report.HoldoutRows = bundle.Holdout.Samples
	report.Holdout = bundle.Holdout
	report.ModelVersion = bundle.Version

	if err := t.bundles.SaveBundle(ctx, bundle); err != nil {
		return nil, fmt.Errorf("trainer: save bundle: %w", err)
	}

	promoted, reason, err := t.promoteIfBetter(ctx, bundle)
	if err != nil {
		return nil, err
	}
	report.Promoted = promoted
	report.Reason = reason
	report.FinishedAt = t.now()

	t.log.Info().
		Str("model_version", bundle.Version).
		Bool("promoted", promoted).
		Str("reason", reason).
		Int("training_rows", report.TrainingRows).
		Int("holdout_rows", report.HoldoutRows).
		Float64("action_accuracy", bundle.Holdout.ActionAccuracy).
		Msg("training run complete")

	return report, nil
}

func (t *Trainer) checkClassCounts(counts map[contracts.PredictedAction]int) error {
	for _, class := range contracts.Actions() {
		if got := counts[class]; got < t.cfg.MinSamplesPerClass {
			return &contracts.InsufficientTrainingDataError{
				Class: string(class),
				Need:  t.cfg.MinSamplesPerClass,
				Got:   got,
			}
		}
	}
	return nil
}

// validate scores the candidate bundle on the holdout slice.
func (t *Trainer) validate(bundle *contracts.ModelBundle, holdout dataset, from, to time.Time) contracts.HoldoutReport {
	report := contracts.HoldoutReport{Samples: len(holdout.X), From: from, To: to}
	if report.Samples == 0 {
		return report
	}

	actionHits := 0
	directionHits, directionCalls := 0, 0
	var absErr float64

	for i := range holdout.X {
		inf := bundle.Infer(holdout.values[i])

		if inf.Action == holdout.labels[i] {
			actionHits++
		}

		actual := contracts.Sign(holdout.returns[i])
		if inf.Direction != nil && actual != 0 {
			directionCalls++
			if *inf.Direction == actual {
				directionHits++
			}
		}

		absErr += math.Abs(inf.Magnitude - holdout.returns[i])
	}

	report.ActionAccuracy = float64(actionHits) / float64(report.Samples)
	if directionCalls > 0 {
		report.DirectionAccuracy = float64(directionHits) / float64(directionCalls)
	}
	report.MagnitudeMAE = absErr / float64(report.Samples)
	return report
}

// promoteIfBetter applies the promotion policy: first bundle always wins;
// afterwards the candidate's holdout action accuracy must hold the floor
// relative to the incumbent's.
func (t *Trainer) promoteIfBetter(ctx context.Context, candidate *contracts.ModelBundle) (bool, string, error) {
	incumbent, err := t.bundles.GetPromoted(ctx)
	if err != nil {
		if errors.Is(err, contracts.ErrNoPromotedModel) {
			if err := t.bundles.Promote(ctx, candidate.Version); err != nil {
				return false, "", fmt.Errorf("trainer: promote: %w", err)
			}
			return true, "first promoted bundle", nil
		}
		return false, "", fmt.Errorf("trainer: resolve incumbent: %w", err)
	}

	if candidate.Holdout.Samples == 0 {
		return false, "no holdout rows to validate against", nil
	}

	floor := t.cfg.HoldoutFloorRatio * incumbent.Holdout.ActionAccuracy
	if candidate.Holdout.ActionAccuracy < floor {
		return false, fmt.Sprintf("holdout action accuracy %.3f below floor %.3f", candidate.Holdout.ActionAccuracy, floor), nil
	}

	if err := t.bundles.Promote(ctx, candidate.Version); err != nil {
		return false, "", fmt.Errorf("trainer: promote: %w", err)
	}
	return true, "", nil
}
