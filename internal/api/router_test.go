package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfoundry/foresight/internal/api/handlers"
	"github.com/quantfoundry/foresight/internal/contracts"
	"github.com/quantfoundry/foresight/internal/guard"
	"github.com/quantfoundry/foresight/internal/ledger"
)

func newTestRouter(t *testing.T) (*ledger.MemoryStore, http.Handler) {
	t.Helper()

	store := ledger.NewMemoryStore()
	g := guard.New(store, store, guard.Config{
		MinEvalDelay:   time.Hour,
		BucketInterval: 24 * time.Hour,
	}, zerolog.Nop())

	router := NewRouter(
		handlers.NewLedgerHandler(store, store, zerolog.Nop()),
		handlers.NewModelHandler(store, zerolog.Nop()),
		handlers.NewPipelineHandler(g, nil, zerolog.Nop()),
		zerolog.Nop(),
	)
	return store, router
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	_, router := newTestRouter(t)

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_PredictionsAndOutcomes(t *testing.T) {
	store, router := newTestRouter(t)
	ctx := context.Background()

	ts := time.Now().Add(-3 * time.Hour).UTC()
	p := &contracts.Prediction{
		ID:                  "p1",
		Symbol:              "QBE",
		PredictionTimestamp: ts,
		Bucket:              contracts.BucketKey(ts, 24*time.Hour),
		Action:              contracts.ActionBuy,
		Features: contracts.FeatureVector{
			Symbol:      "QBE",
			CollectedAt: ts,
			Values:      map[string]float64{"rsi_14": 52},
		},
		Status:    contracts.StatusPending,
		CreatedAt: ts,
	}
	require.NoError(t, store.InsertPrediction(ctx, p))
	require.NoError(t, store.InsertOutcome(ctx, &contracts.Outcome{
		ID:                  "o1",
		PredictionID:        "p1",
		Horizon:             time.Hour,
		EntryPrice:          100,
		ExitPrice:           101,
		ActualReturnPct:     1.0,
		ActualDirection:     1,
		EvaluationTimestamp: ts.Add(2 * time.Hour),
	}))

	rec := get(t, router, "/api/predictions")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count       int                    `json:"count"`
		Predictions []contracts.Prediction `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = get(t, router, "/api/predictions/p1")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Prediction contracts.Prediction `json:"prediction"`
		Outcomes   []contracts.Outcome  `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "p1", detail.Prediction.ID)
	require.Len(t, detail.Outcomes, 1)
	assert.InDelta(t, 1.0, detail.Outcomes[0].ActualReturnPct, 1e-9)

	rec = get(t, router, "/api/predictions/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, router, "/api/outcomes")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, router, "/api/predictions?from=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Models(t *testing.T) {
	store, router := newTestRouter(t)
	ctx := context.Background()

	rec := get(t, router, "/api/models/promoted")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bundle := &contracts.ModelBundle{
		Version:   "m-1",
		Schema:    contracts.NewFeatureSchema("v1", []string{"rsi_14"}),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveBundle(ctx, bundle))
	require.NoError(t, store.Promote(ctx, "m-1"))

	rec = get(t, router, "/api/models/promoted")
	require.Equal(t, http.StatusOK, rec.Code)
	var got contracts.ModelBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "m-1", got.Version)

	rec = get(t, router, "/api/models/m-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, router, "/api/models/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, router, "/api/models")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count  int                    `json:"count"`
		Models []contracts.BundleInfo `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Equal(t, 1, listing.Count)
	assert.True(t, listing.Models[0].Promoted)
}

func TestRouter_Audit(t *testing.T) {
	_, router := newTestRouter(t)

	rec := get(t, router, "/api/audit?window=48h")
	require.Equal(t, http.StatusOK, rec.Code)

	var report contracts.AuditReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Empty(t, report.Violations)

	rec = get(t, router, "/api/audit?window=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// no scheduler attached
	rec = get(t, router, "/api/jobs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
