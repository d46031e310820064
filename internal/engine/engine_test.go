package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfoundry/foresight/internal/contracts"
	"github.com/quantfoundry/foresight/internal/ledger"
)

var engineClock = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

// fixtureBundle builds a hand-fitted bundle over two features. The weights
// are chosen so momentum-positive vectors classify as BUY with an up
// direction.
func fixtureBundle(version string) *contracts.ModelBundle {
	schema := contracts.NewFeatureSchema("fs-1", []string{"momentum_5d", "rsi_14"})
	classes := contracts.Actions()

	weights := make([][]float64, len(classes))
	bias := make([]float64, len(classes))
	for i, class := range classes {
		switch class {
		case contracts.ActionBuy:
			weights[i] = []float64{2.0, 0.1}
		case contracts.ActionSell:
			weights[i] = []float64{-2.0, -0.1}
		default:
			weights[i] = []float64{0, 0}
		}
	}

	return &contracts.ModelBundle{
		Version: version,
		Schema:  schema,
		Scaler: contracts.Scaler{
			Mean: []float64{0, 50},
			Std:  []float64{1, 10},
		},
		Action: contracts.SoftmaxModel{
			Classes: classes,
			Weights: weights,
			Bias:    bias,
		},
		Direction: contracts.LogitModel{
			Weights:       []float64{3.0, 0},
			Bias:          0,
			AbstainMargin: 0.05,
		},
		Magnitude: contracts.LinearModel{
			Weights: []float64{1.5, 0},
			Bias:    0.2,
		},
		CreatedAt: engineClock.Add(-24 * time.Hour),
	}
}

func newTestEngine(t *testing.T, store *ledger.MemoryStore) *Engine {
	t.Helper()

	registry := NewRegistry(store, zerolog.Nop())
	bundle := fixtureBundle("m-2026-03-09")
	require.NoError(t, store.SaveBundle(context.Background(), bundle))
	require.NoError(t, store.Promote(context.Background(), bundle.Version))
	require.NoError(t, registry.Reload(context.Background()))

	cfg := Config{BucketInterval: 24 * time.Hour, BackdateTolerance: 15 * time.Minute}
	return New(store, registry, cfg, zerolog.Nop()).
		WithClock(func() time.Time { return engineClock })
}

func featureVector(symbol string, collectedAt time.Time) contracts.FeatureVector {
	return contracts.FeatureVector{
		Symbol:        symbol,
		CollectedAt:   collectedAt,
		SchemaVersion: "fs-1",
		Values: map[string]float64{
			"momentum_5d": 1.2,
			"rsi_14":      58.0,
		},
		CollectedTimes: map[string]time.Time{
			"momentum_5d": collectedAt.Add(-time.Second),
			"rsi_14":      collectedAt.Add(-2 * time.Second),
		},
	}
}

func TestEngine_PredictHappyPath(t *testing.T) {
	store := ledger.NewMemoryStore()
	e := newTestEngine(t, store)

	fv := featureVector("QBE", engineClock.Add(-time.Minute))
	p, err := e.Predict(context.Background(), fv)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "QBE", p.Symbol)
	assert.Equal(t, contracts.ActionBuy, p.Action)
	assert.Greater(t, p.ActionConfidence, 0.2)
	require.NotNil(t, p.Direction)
	assert.Equal(t, 1, *p.Direction)
	assert.InDelta(t, 1.5*1.2+0.2, p.Magnitude, 1e-9)
	assert.Equal(t, "m-2026-03-09", p.ModelVersion)
	assert.Equal(t, contracts.StatusPending, p.Status)
	assert.Equal(t, fv.CollectedAt, p.PredictionTimestamp)
	assert.Equal(t, contracts.BucketKey(fv.CollectedAt, 24*time.Hour), p.Bucket)

	// the prediction is in the ledger, snapshot included
	stored, err := store.GetPrediction(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, fv.Values, stored.Features.Values)
}

func TestEngine_NoPromotedModel(t *testing.T) {
	store := ledger.NewMemoryStore()
	registry := NewRegistry(store, zerolog.Nop())
	e := New(store, registry, Config{BucketInterval: 24 * time.Hour, BackdateTolerance: 15 * time.Minute}, zerolog.Nop()).
		WithClock(func() time.Time { return engineClock })

	_, err := e.Predict(context.Background(), featureVector("QBE", engineClock.Add(-time.Minute)))
	assert.ErrorIs(t, err, contracts.ErrNoPromotedModel)
}

func TestEngine_SchemaMismatch(t *testing.T) {
	store := ledger.NewMemoryStore()
	e := newTestEngine(t, store)

	fv := featureVector("QBE", engineClock.Add(-time.Minute))
	delete(fv.Values, "rsi_14")
	fv.Values["volatility_20d"] = 0.8

	_, err := e.Predict(context.Background(), fv)

	var schemaErr *contracts.FeatureSchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"rsi_14"}, schemaErr.Missing)
	assert.Equal(t, []string{"volatility_20d"}, schemaErr.Unexpected)

	// nothing was written
	got, err := store.ListPredictions(context.Background(), engineClock.Add(-time.Hour), engineClock)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngine_DuplicateBucket(t *testing.T) {
	store := ledger.NewMemoryStore()
	e := newTestEngine(t, store)

	_, err := e.Predict(context.Background(), featureVector("QBE", engineClock.Add(-10*time.Minute)))
	require.NoError(t, err)

	// same symbol, same UTC day
	_, err = e.Predict(context.Background(), featureVector("QBE", engineClock.Add(-time.Minute)))

	var dupErr *contracts.DuplicatePredictionError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "QBE", dupErr.Symbol)

	// a different symbol in the same bucket is fine
	_, err = e.Predict(context.Background(), featureVector("BHP", engineClock.Add(-time.Minute)))
	assert.NoError(t, err)
}

func TestEngine_RejectsBadTimestamps(t *testing.T) {
	store := ledger.NewMemoryStore()
	e := newTestEngine(t, store)

	t.Run("future collection time", func(t *testing.T) {
		_, err := e.Predict(context.Background(), featureVector("QBE", engineClock.Add(time.Hour)))
		assert.ErrorContains(t, err, "future")
	})

	t.Run("stale beyond backdate tolerance", func(t *testing.T) {
		_, err := e.Predict(context.Background(), featureVector("QBE", engineClock.Add(-time.Hour)))
		assert.ErrorContains(t, err, "tolerance")
	})

	t.Run("feature collected after snapshot", func(t *testing.T) {
		fv := featureVector("QBE", engineClock.Add(-time.Minute))
		fv.CollectedTimes["rsi_14"] = fv.CollectedAt.Add(time.Minute)
		_, err := e.Predict(context.Background(), fv)
		assert.ErrorContains(t, err, "after the snapshot")
	})
}

func TestRegistry_ReloadSwapsBundle(t *testing.T) {
	store := ledger.NewMemoryStore()
	registry := NewRegistry(store, zerolog.Nop())
	ctx := context.Background()

	_, err := registry.Current()
	assert.ErrorIs(t, err, contracts.ErrNoPromotedModel)

	first := fixtureBundle("m-1")
	require.NoError(t, store.SaveBundle(ctx, first))
	require.NoError(t, store.Promote(ctx, first.Version))
	require.NoError(t, registry.Reload(ctx))

	got, err := registry.Current()
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.Version)

	second := fixtureBundle("m-2")
	require.NoError(t, store.SaveBundle(ctx, second))
	require.NoError(t, store.Promote(ctx, second.Version))
	require.NoError(t, registry.Reload(ctx))

	got, err = registry.Current()
	require.NoError(t, err)
	assert.Equal(t, "m-2", got.Version)
}
