package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfoundry/foresight/internal/contracts"
	"github.com/quantfoundry/foresight/internal/guard"
	"github.com/quantfoundry/foresight/internal/ledger"
	"github.com/quantfoundry/foresight/internal/marketdata"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *ledger.MemoryStore
	prices *marketdata.MemoryProvider
	eval   *Evaluator
	clock  *time.Time
}

func newFixture(t *testing.T, horizons ...time.Duration) *fixture {
	t.Helper()
	if len(horizons) == 0 {
		horizons = []time.Duration{time.Hour}
	}

	store := ledger.NewMemoryStore()
	prices := marketdata.NewMemoryProvider(30 * time.Minute)

	clock := t0
	now := func() time.Time { return clock }

	g := guard.New(store, store, guard.Config{
		MinEvalDelay:   time.Hour,
		BucketInterval: 24 * time.Hour,
	}, zerolog.Nop()).WithClock(now)

	cfg := Config{
		MinEvalDelay:     time.Hour,
		Horizons:         horizons,
		MaxPendingAge:    168 * time.Hour,
		Workers:          2,
		PerSymbolTimeout: 5 * time.Second,
	}
	eval := New(store, store, prices, g, cfg, zerolog.Nop()).WithClock(now)

	return &fixture{store: store, prices: prices, eval: eval, clock: &clock}
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func (f *fixture) insertPrediction(t *testing.T, id, symbol string, ts time.Time) *contracts.Prediction {
	t.Helper()
	p := &contracts.Prediction{
		ID:                  id,
		Symbol:              symbol,
		PredictionTimestamp: ts,
		Bucket:              contracts.BucketKey(ts, 24*time.Hour),
		Action:              contracts.ActionBuy,
		ActionConfidence:    0.7,
		Features: contracts.FeatureVector{
			Symbol:      symbol,
			CollectedAt: ts,
			Values:      map[string]float64{"momentum_5d": 1.1},
			CollectedTimes: map[string]time.Time{
				"momentum_5d": ts.Add(-time.Second),
			},
		},
		ModelVersion: "m-1",
		Status:       contracts.StatusPending,
		CreatedAt:    ts,
	}
	require.NoError(t, f.store.InsertPrediction(context.Background(), p))
	return p
}

func TestEvaluator_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertPrediction(t, "p1", "QBE", t0)
	f.prices.Add("QBE",
		marketdata.PricePoint{Time: t0, Price: 100.00},
		marketdata.PricePoint{Time: t0.Add(time.Hour), Price: 102.76},
	)

	// too early: the minimum delay has not elapsed
	f.advance(10 * time.Minute)
	report, err := f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)

	// past the delay and the horizon
	f.advance(55 * time.Minute)
	report, err = f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Evaluated)
	assert.Empty(t, report.Failures)

	outcomes, err := f.store.ListOutcomesForPrediction(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	o := outcomes[0]
	assert.Equal(t, time.Hour, o.Horizon)
	assert.Equal(t, 100.00, o.EntryPrice)
	assert.Equal(t, 102.76, o.ExitPrice)
	assert.InDelta(t, 2.76, o.ActualReturnPct, 1e-9)
	assert.Equal(t, 1, o.ActualDirection)

	p, err := f.store.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusEvaluated, p.Status)

	// the ledger stays clean after the pass
	audit, err := f.eval.guard.Audit(ctx, t0.Add(-time.Hour), f.clock.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, audit.Passed())
}

func TestEvaluator_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertPrediction(t, "p1", "QBE", t0)
	f.prices.Add("QBE",
		marketdata.PricePoint{Time: t0, Price: 100},
		marketdata.PricePoint{Time: t0.Add(time.Hour), Price: 101},
	)

	f.advance(2 * time.Hour)
	_, err := f.eval.Run(ctx)
	require.NoError(t, err)

	report, err := f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned, "evaluated prediction must not be rescanned")

	outcomes, err := f.store.ListOutcomesForPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

func TestEvaluator_MultiHorizonCompletesIncrementally(t *testing.T) {
	f := newFixture(t, time.Hour, 24*time.Hour)
	ctx := context.Background()

	f.insertPrediction(t, "p1", "QBE", t0)
	f.prices.Add("QBE",
		marketdata.PricePoint{Time: t0, Price: 100},
		marketdata.PricePoint{Time: t0.Add(time.Hour), Price: 101},
		marketdata.PricePoint{Time: t0.Add(24 * time.Hour), Price: 97},
	)

	// only the 1h horizon has elapsed
	f.advance(2 * time.Hour)
	report, err := f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Evaluated)
	assert.Equal(t, 1, report.Skipped)

	p, err := f.store.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusPending, p.Status, "stays pending until every horizon is evaluated")

	// now the 24h horizon too
	f.advance(23 * time.Hour)
	report, err = f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Evaluated)

	outcomes, err := f.store.ListOutcomesForPrediction(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	p, err = f.store.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusEvaluated, p.Status)
}

func TestEvaluator_ExpiresWhenDataNeverArrives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertPrediction(t, "p1", "XYZ", t0) // no price series at all

	// within MaxPendingAge the prediction just waits
	f.advance(3 * time.Hour)
	report, err := f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Expired)

	// past MaxPendingAge it expires, with no outcome
	f.advance(170 * time.Hour)
	report, err = f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	p, err := f.store.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExpired, p.Status)

	outcomes, err := f.store.ListOutcomesForPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestEvaluator_ExpiresWhenExitDataNeverArrives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertPrediction(t, "p1", "QBE", t0)
	// entry price exists but the series ends there
	f.prices.Add("QBE", marketdata.PricePoint{Time: t0, Price: 100})

	// within MaxPendingAge the open horizon keeps the row pending
	f.advance(3 * time.Hour)
	report, err := f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Expired)

	// past MaxPendingAge the missing exit price expires it
	f.advance(400 * time.Hour)
	report, err = f.eval.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Skipped)

	p, err := f.store.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExpired, p.Status)

	outcomes, err := f.store.ListOutcomesForPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestEvaluator_AuditCoversOldestDuePrediction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a leaky prediction old enough to fall outside the default audit window
	bad := &contracts.Prediction{
		ID:                  "p1",
		Symbol:              "BHP",
		PredictionTimestamp: t0,
		Bucket:              contracts.BucketKey(t0, 24*time.Hour),
		Action:              contracts.ActionSell,
		Features: contracts.FeatureVector{
			Symbol:      "BHP",
			CollectedAt: t0,
			Values:      map[string]float64{"momentum_5d": -0.4},
			CollectedTimes: map[string]time.Time{
				"momentum_5d": t0.Add(time.Hour),
			},
		},
		Status:    contracts.StatusPending,
		CreatedAt: t0,
	}
	require.NoError(t, f.store.InsertPrediction(ctx, bad))
	f.prices.Add("BHP",
		marketdata.PricePoint{Time: t0, Price: 100},
		marketdata.PricePoint{Time: t0.Add(time.Hour), Price: 101},
	)

	f.advance(180 * time.Hour)
	_, err := f.eval.Run(ctx)

	var integrityErr *contracts.TemporalIntegrityError
	require.ErrorAs(t, err, &integrityErr)

	// the leaky row received no outcome and stays pending
	outcomes, err := f.store.ListOutcomesForPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	p, err := f.store.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusPending, p.Status)
}

func TestEvaluator_StampsOutcomesAtWriteTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertPrediction(t, "p1", "QBE", t0)
	f.prices.Add("QBE",
		marketdata.PricePoint{Time: t0, Price: 100},
		marketdata.PricePoint{Time: t0.Add(time.Hour), Price: 101},
	)

	f.advance(2 * time.Hour)
	base := *f.clock
	calls := 0
	f.eval.WithClock(func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	})

	report, err := f.eval.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Evaluated)

	outcomes, err := f.store.ListOutcomesForPrediction(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].EvaluationTimestamp.After(report.StartedAt),
		"outcome carries its write moment, not the run start")
}

func TestEvaluator_RefusesOnLeakage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insertPrediction(t, "p1", "QBE", t0)

	// a second prediction whose snapshot saw the future
	bad := &contracts.Prediction{
		ID:                  "p2",
		Symbol:              "BHP",
		PredictionTimestamp: t0,
		Bucket:              contracts.BucketKey(t0, 24*time.Hour),
		Action:              contracts.ActionSell,
		Features: contracts.FeatureVector{
			Symbol:      "BHP",
			CollectedAt: t0,
			Values:      map[string]float64{"momentum_5d": -0.4},
			CollectedTimes: map[string]time.Time{
				"momentum_5d": t0.Add(45 * time.Minute),
			},
		},
		Status:    contracts.StatusPending,
		CreatedAt: t0,
	}
	require.NoError(t, f.store.InsertPrediction(ctx, bad))

	f.prices.Add("QBE",
		marketdata.PricePoint{Time: t0, Price: 100},
		marketdata.PricePoint{Time: t0.Add(time.Hour), Price: 101},
	)

	f.advance(2 * time.Hour)
	_, err := f.eval.Run(ctx)

	var integrityErr *contracts.TemporalIntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.True(t, integrityErr.Report.HasCritical())

	// fail closed: nothing was evaluated, not even the clean prediction
	outcomes, err := f.store.ListOutcomesForPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
