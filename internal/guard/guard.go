package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// Guard audits the prediction ledger and outcome store for temporal
// integrity. It is read-only and safe to run concurrently with everything
// else; it never "fixes" a violation. The evaluator and trainer run an audit
// first and refuse to proceed on any critical finding.
type Guard struct {
	ledger   contracts.LedgerRepository
	outcomes contracts.OutcomeRepository

	minEvalDelay   time.Duration
	bucketInterval time.Duration

	now func() time.Time
	log zerolog.Logger
}

// Config holds the invariant parameters the guard checks against.
type Config struct {
	MinEvalDelay   time.Duration
	BucketInterval time.Duration
}

// New creates a guard over the given stores.
func New(ledger contracts.LedgerRepository, outcomes contracts.OutcomeRepository, cfg Config, log zerolog.Logger) *Guard {
	return &Guard{
		ledger:         ledger,
		outcomes:       outcomes,
		minEvalDelay:   cfg.MinEvalDelay,
		bucketInterval: cfg.BucketInterval,
		now:            time.Now,
		log:            log.With().Str("component", "guard").Logger(),
	}
}

// WithClock overrides the wall clock. Tests use it to audit synthetic
// windows.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Audit runs every integrity check over the ledger window [from, to) and the
// outcomes evaluated in it.
func (g *Guard) Audit(ctx context.Context, from, to time.Time) (*contracts.AuditReport, error) {
	now := g.now()

	predictions, err := g.ledger.ListPredictions(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("guard: list predictions: %w", err)
	}

	outcomes, err := g.outcomes.ListOutcomes(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("guard: list outcomes: %w", err)
	}

	report := &contracts.AuditReport{
		From:               from,
		To:                 to,
		PredictionsChecked: len(predictions),
		OutcomesChecked:    len(outcomes),
		GeneratedAt:        now,
	}

	report.Violations = append(report.Violations, g.checkPredictions(predictions, now)...)

	outcomeViolations, err := g.checkOutcomes(ctx, predictions, outcomes, now)
	if err != nil {
		return nil, err
	}
	report.Violations = append(report.Violations, outcomeViolations...)

	if report.Passed() {
		g.log.Debug().
			Int("predictions", len(predictions)).
			Int("outcomes", len(outcomes)).
			Msg("audit passed")
	} else {
		g.log.Warn().
			Int("violations", len(report.Violations)).
			Int("critical", report.CriticalCount()).
			Msg("audit found violations")
	}

	return report, nil
}

// checkPredictions runs the leakage, future-timestamp and duplicate checks.
func (g *Guard) checkPredictions(predictions []contracts.Prediction, now time.Time) []contracts.Violation {
	var violations []contracts.Violation

	seenBuckets := make(map[string]string) // symbol|bucket -> first prediction id

	for _, p := range predictions {
		// Leakage: any feature collected after the prediction timestamp means
		// the snapshot saw the future.
		if p.Features.CollectedAt.After(p.PredictionTimestamp) {
			violations = append(violations, violation(contracts.ViolationLeakage, p.ID, "", p.Symbol,
				fmt.Sprintf("feature snapshot collected at %s, after prediction timestamp %s",
					p.Features.CollectedAt.Format(time.RFC3339), p.PredictionTimestamp.Format(time.RFC3339))))
		}
		for name, collected := range p.Features.CollectedTimes {
			if collected.After(p.PredictionTimestamp) {
				violations = append(violations, violation(contracts.ViolationLeakage, p.ID, "", p.Symbol,
					fmt.Sprintf("feature %q collected at %s, after prediction timestamp %s",
						name, collected.Format(time.RFC3339), p.PredictionTimestamp.Format(time.RFC3339))))
			}
		}

		// Future timestamps.
		if p.PredictionTimestamp.After(now) {
			violations = append(violations, violation(contracts.ViolationFutureTimestamp, p.ID, "", p.Symbol,
				fmt.Sprintf("prediction timestamp %s is in the future", p.PredictionTimestamp.Format(time.RFC3339))))
		}

		// Duplicates: the storage constraint should make this unreachable,
		// but the guard re-derives it so corruption never passes silently.
		key := p.Symbol + "|" + contracts.BucketKey(p.PredictionTimestamp, g.bucketInterval).Format(time.RFC3339)
		if firstID, seen := seenBuckets[key]; seen {
			violations = append(violations, violation(contracts.ViolationDuplicate, p.ID, "", p.Symbol,
				fmt.Sprintf("shares (symbol, bucket) with prediction %s", firstID)))
		} else {
			seenBuckets[key] = p.ID
		}
	}

	return violations
}

// checkOutcomes runs the referential, minimum-delay and future-timestamp
// checks on outcomes.
func (g *Guard) checkOutcomes(ctx context.Context, predictions []contracts.Prediction, outcomes []contracts.Outcome, now time.Time) ([]contracts.Violation, error) {
	byID := make(map[string]contracts.Prediction, len(predictions))
	for _, p := range predictions {
		byID[p.ID] = p
	}

	var violations []contracts.Violation

	for _, o := range outcomes {
		if o.EvaluationTimestamp.After(now) {
			violations = append(violations, violation(contracts.ViolationFutureTimestamp, o.PredictionID, o.ID, "",
				fmt.Sprintf("evaluation timestamp %s is in the future", o.EvaluationTimestamp.Format(time.RFC3339))))
		}

		p, ok := byID[o.PredictionID]
		if !ok {
			// the prediction may simply predate the window
			fetched, err := g.ledger.GetPrediction(ctx, o.PredictionID)
			if err != nil {
				if errors.Is(err, contracts.ErrPredictionNotFound) {
					violations = append(violations, violation(contracts.ViolationReferential, o.PredictionID, o.ID, "",
						"outcome references a prediction that does not exist"))
					continue
				}
				return nil, fmt.Errorf("guard: resolve prediction %s: %w", o.PredictionID, err)
			}
			p = *fetched
			byID[p.ID] = p
		}

		if delay := o.EvaluationTimestamp.Sub(p.PredictionTimestamp); delay < g.minEvalDelay {
			violations = append(violations, violation(contracts.ViolationMinDelay, p.ID, o.ID, p.Symbol,
				fmt.Sprintf("outcome evaluated %s after prediction, minimum is %s", delay, g.minEvalDelay)))
		}
	}

	return violations, nil
}

func violation(category contracts.ViolationCategory, predictionID, outcomeID, symbol, msg string) contracts.Violation {
	return contracts.Violation{
		Category:     category,
		Severity:     category.Severity(),
		PredictionID: predictionID,
		OutcomeID:    outcomeID,
		Symbol:       symbol,
		Message:      msg,
	}
}
