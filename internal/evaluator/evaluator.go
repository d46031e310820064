package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/contracts"
	"github.com/quantfoundry/foresight/internal/guard"
)

// Evaluator turns pending predictions into realized outcomes once enough
// real time has elapsed. Every run starts with an integrity audit and
// refuses to write anything when the audit finds a critical violation.
type Evaluator struct {
	ledger   contracts.LedgerRepository
	outcomes contracts.OutcomeRepository
	prices   contracts.MarketDataProvider
	guard    *guard.Guard

	cfg Config

	now func() time.Time
	log zerolog.Logger
}

// Config holds the evaluator tunables.
type Config struct {
	MinEvalDelay     time.Duration
	Horizons         []time.Duration
	MaxPendingAge    time.Duration
	Workers          int
	PerSymbolTimeout time.Duration
}

// New creates an evaluator.
func New(ledger contracts.LedgerRepository, outcomes contracts.OutcomeRepository, prices contracts.MarketDataProvider, g *guard.Guard, cfg Config, log zerolog.Logger) *Evaluator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Evaluator{
		ledger:   ledger,
		outcomes: outcomes,
		prices:   prices,
		guard:    g,
		cfg:      cfg,
		now:      time.Now,
		log:      log.With().Str("component", "evaluator").Logger(),
	}
}

// WithClock overrides the wall clock for tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// itemResult is one prediction's evaluation outcome inside a run.
type itemResult struct {
	evaluated bool
	expired   bool
	skipped   bool
	failure   *contracts.ItemFailure
}

// Run performs one evaluation pass: audit, select due predictions, compute
// outcomes per horizon, and transition fully evaluated predictions. It is
// idempotent; re-running over the same window writes nothing twice.
func (e *Evaluator) Run(ctx context.Context) (*contracts.EvaluationReport, error) {
	now := e.now()
	report := &contracts.EvaluationReport{StartedAt: now}

	due, err := e.ledger.ListPendingBefore(ctx, now.Add(-e.cfg.MinEvalDelay))
	if err != nil {
		return nil, fmt.Errorf("evaluator: list pending: %w", err)
	}
	report.Scanned = len(due)

	// The audit must cover every row this pass can touch. A due prediction
	// older than the default window widens it.
	auditFrom := now.Add(-(e.cfg.MaxPendingAge + e.maxHorizon()))
	for _, p := range due {
		if p.PredictionTimestamp.Before(auditFrom) {
			auditFrom = p.PredictionTimestamp
		}
	}
	audit, err := e.guard.Audit(ctx, auditFrom, now.Add(time.Second))
	if err != nil {
		return nil, fmt.Errorf("evaluator: pre-run audit: %w", err)
	}
	if audit.HasCritical() {
		e.log.Error().
			Int("critical", audit.CriticalCount()).
			Msg("refusing to evaluate: audit found critical violations")
		return nil, &contracts.TemporalIntegrityError{Report: audit}
	}
	quarantined := audit.QuarantinedPredictions()

	jobs := make(chan contracts.Prediction)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				res := e.evaluateOne(ctx, p, now)

				mu.Lock()
				switch {
				case res.failure != nil:
					report.Failures = append(report.Failures, *res.failure)
				case res.evaluated:
					report.Evaluated++
				case res.expired:
					report.Expired++
				case res.skipped:
					report.Skipped++
				}
				mu.Unlock()
			}
		}()
	}

	for _, p := range due {
		if _, held := quarantined[p.ID]; held {
			mu.Lock()
			report.Quarantined++
			mu.Unlock()
			e.log.Warn().Str("prediction_id", p.ID).Msg("skipping quarantined prediction")
			continue
		}
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = e.now()
	e.log.Info().
		Int("scanned", report.Scanned).
		Int("evaluated", report.Evaluated).
		Int("skipped", report.Skipped).
		Int("expired", report.Expired).
		Int("quarantined", report.Quarantined).
		Int("failures", len(report.Failures)).
		Msg("evaluation pass complete")

	return report, nil
}

// evaluateOne computes every elapsed horizon for one prediction. The
// prediction transitions to EVALUATED only when all configured horizons have
// an outcome. Missing market data, entry or exit, leaves it pending until
// MaxPendingAge, after which it expires.
func (e *Evaluator) evaluateOne(ctx context.Context, p contracts.Prediction, now time.Time) itemResult {
	pctx, cancel := context.WithTimeout(ctx, e.cfg.PerSymbolTimeout)
	defer cancel()

	entry, err := e.prices.PriceAt(pctx, p.Symbol, p.PredictionTimestamp)
	if err != nil {
		return e.onPriceError(pctx, p, now, err)
	}

	done := 0
	for _, horizon := range e.cfg.Horizons {
		exitAt := p.PredictionTimestamp.Add(horizon)
		if exitAt.After(now) {
			continue // horizon not elapsed yet
		}

		exists, err := e.outcomes.HasOutcome(pctx, p.ID, horizon)
		if err != nil {
			return itemResult{failure: failureFor(p, err)}
		}
		if exists {
			done++
			continue
		}

		exit, err := e.prices.PriceAt(pctx, p.Symbol, exitAt)
		if err != nil {
			var unavailable *contracts.MarketDataUnavailableError
			if errors.As(err, &unavailable) {
				continue // this horizon stays open
			}
			return itemResult{failure: failureFor(p, err)}
		}

		returnPct := contracts.ReturnPct(entry, exit)
		outcome := &contracts.Outcome{
			ID:                  uuid.NewString(),
			PredictionID:        p.ID,
			Horizon:             horizon,
			EntryPrice:          entry,
			ExitPrice:           exit,
			ActualReturnPct:     returnPct,
			ActualDirection:     contracts.Sign(returnPct),
			EvaluationTimestamp: e.now(),
		}

		if err := e.outcomes.InsertOutcome(pctx, outcome); err != nil {
			if errors.Is(err, contracts.ErrOutcomeExists) {
				done++ // raced with another evaluator pass
				continue
			}
			return itemResult{failure: failureFor(p, err)}
		}
		done++

		e.log.Info().
			Str("prediction_id", p.ID).
			Str("symbol", p.Symbol).
			Dur("horizon", horizon).
			Float64("return_pct", returnPct).
			Int("direction", outcome.ActualDirection).
			Msg("outcome recorded")
	}

	if done == len(e.cfg.Horizons) {
		if err := e.ledger.MarkEvaluated(pctx, p.ID); err != nil && !errors.Is(err, contracts.ErrNotPending) {
			return itemResult{failure: failureFor(p, err)}
		}
		return itemResult{evaluated: true}
	}

	// Horizons still open. Exit prices that never materialize must not keep
	// the row pending forever.
	if p.Age(now) > e.cfg.MaxPendingAge {
		return e.expire(pctx, p, "prediction expired: exit prices never became available")
	}
	return itemResult{skipped: true}
}

// onPriceError handles a failed entry-price lookup. No data for the
// prediction's own timestamp past MaxPendingAge means it can never be
// evaluated, so it expires.
func (e *Evaluator) onPriceError(ctx context.Context, p contracts.Prediction, now time.Time, err error) itemResult {
	var unavailable *contracts.MarketDataUnavailableError
	if !errors.As(err, &unavailable) {
		return itemResult{failure: failureFor(p, err)}
	}

	if p.Age(now) > e.cfg.MaxPendingAge {
		return e.expire(ctx, p, "prediction expired: entry price never became available")
	}
	return itemResult{skipped: true}
}

func (e *Evaluator) expire(ctx context.Context, p contracts.Prediction, reason string) itemResult {
	if err := e.ledger.MarkExpired(ctx, p.ID); err != nil && !errors.Is(err, contracts.ErrNotPending) {
		return itemResult{failure: failureFor(p, err)}
	}
	e.log.Warn().
		Str("prediction_id", p.ID).
		Str("symbol", p.Symbol).
		Msg(reason)
	return itemResult{expired: true}
}

func (e *Evaluator) maxHorizon() time.Duration {
	var max time.Duration
	for _, h := range e.cfg.Horizons {
		if h > max {
			max = h
		}
	}
	return max
}

func failureFor(p contracts.Prediction, err error) *contracts.ItemFailure {
	category := "storage"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		category = "timeout"
	}
	return &contracts.ItemFailure{
		PredictionID: p.ID,
		Symbol:       p.Symbol,
		Category:     category,
		Message:      err.Error(),
	}
}
