package guard

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// corruptStore feeds the guard arbitrary rows, including rows the real
// storage constraints would have rejected. The guard must still detect them:
// its job is catching corruption, not trusting the store.
type corruptStore struct {
	predictions []contracts.Prediction
	outcomes    []contracts.Outcome
}

func (s *corruptStore) InsertPrediction(ctx context.Context, p *contracts.Prediction) error {
	s.predictions = append(s.predictions, *p)
	return nil
}

func (s *corruptStore) GetPrediction(ctx context.Context, id string) (*contracts.Prediction, error) {
	for _, p := range s.predictions {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, contracts.ErrPredictionNotFound
}

func (s *corruptStore) ListPredictions(ctx context.Context, from, to time.Time) ([]contracts.Prediction, error) {
	var out []contracts.Prediction
	for _, p := range s.predictions {
		if !p.PredictionTimestamp.Before(from) && p.PredictionTimestamp.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *corruptStore) ListPendingBefore(ctx context.Context, ts time.Time) ([]contracts.Prediction, error) {
	return nil, nil
}

func (s *corruptStore) MarkEvaluated(ctx context.Context, id string) error { return nil }
func (s *corruptStore) MarkExpired(ctx context.Context, id string) error   { return nil }

func (s *corruptStore) InsertOutcome(ctx context.Context, o *contracts.Outcome) error {
	s.outcomes = append(s.outcomes, *o)
	return nil
}

func (s *corruptStore) HasOutcome(ctx context.Context, predictionID string, horizon time.Duration) (bool, error) {
	return false, nil
}

func (s *corruptStore) ListOutcomesForPrediction(ctx context.Context, predictionID string) ([]contracts.Outcome, error) {
	return nil, nil
}

func (s *corruptStore) ListOutcomes(ctx context.Context, from, to time.Time) ([]contracts.Outcome, error) {
	return s.outcomes, nil
}

func (s *corruptStore) ListEvaluatedPairs(ctx context.Context, from, to time.Time, horizon time.Duration) ([]contracts.EvaluatedPair, error) {
	return nil, nil
}

var testClock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestGuard(store *corruptStore) *Guard {
	cfg := Config{MinEvalDelay: time.Hour, BucketInterval: 24 * time.Hour}
	return New(store, store, cfg, zerolog.Nop()).WithClock(func() time.Time { return testClock })
}

func cleanPrediction(id, symbol string, ts time.Time) contracts.Prediction {
	return contracts.Prediction{
		ID:                  id,
		Symbol:              symbol,
		PredictionTimestamp: ts,
		Bucket:              contracts.BucketKey(ts, 24*time.Hour),
		Action:              contracts.ActionBuy,
		Features: contracts.FeatureVector{
			Symbol:      symbol,
			CollectedAt: ts,
			Values:      map[string]float64{"rsi_14": 48.0},
			CollectedTimes: map[string]time.Time{
				"rsi_14": ts.Add(-time.Minute),
			},
		},
		Status:    contracts.StatusPending,
		CreatedAt: ts,
	}
}

func window() (time.Time, time.Time) {
	return testClock.Add(-48 * time.Hour), testClock
}

func TestGuard_CleanWindowPasses(t *testing.T) {
	ts := testClock.Add(-5 * time.Hour)
	store := &corruptStore{
		predictions: []contracts.Prediction{cleanPrediction("p1", "QBE", ts)},
		outcomes: []contracts.Outcome{{
			ID:                  "o1",
			PredictionID:        "p1",
			Horizon:             time.Hour,
			EntryPrice:          100,
			ExitPrice:           102,
			ActualReturnPct:     2.0,
			ActualDirection:     1,
			EvaluationTimestamp: ts.Add(2 * time.Hour),
		}},
	}

	from, to := window()
	report, err := newTestGuard(store).Audit(context.Background(), from, to)
	require.NoError(t, err)

	assert.True(t, report.Passed())
	assert.False(t, report.HasCritical())
	assert.Equal(t, 1, report.PredictionsChecked)
	assert.Equal(t, 1, report.OutcomesChecked)
}

func TestGuard_DetectsFeatureLeakage(t *testing.T) {
	ts := testClock.Add(-5 * time.Hour)
	p := cleanPrediction("p1", "QBE", ts)
	// one feature tagged after the prediction timestamp: the snapshot saw the future
	p.Features.CollectedTimes["sentiment"] = ts.Add(30 * time.Minute)

	store := &corruptStore{predictions: []contracts.Prediction{p}}

	from, to := window()
	report, err := newTestGuard(store).Audit(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	assert.Equal(t, contracts.ViolationLeakage, report.Violations[0].Category)
	assert.Equal(t, contracts.SeverityCritical, report.Violations[0].Severity)
	assert.True(t, report.HasCritical())
}

func TestGuard_DetectsFutureTimestamps(t *testing.T) {
	future := testClock.Add(2 * time.Hour)
	store := &corruptStore{
		predictions: []contracts.Prediction{cleanPrediction("p1", "QBE", future)},
	}

	report, err := newTestGuard(store).Audit(context.Background(), testClock.Add(-time.Hour), testClock.Add(24*time.Hour))
	require.NoError(t, err)

	require.NotEmpty(t, report.Violations)
	assert.Equal(t, contracts.ViolationFutureTimestamp, report.Violations[0].Category)
	assert.True(t, report.HasCritical())
}

func TestGuard_DetectsMinDelayViolation(t *testing.T) {
	ts := testClock.Add(-5 * time.Hour)
	store := &corruptStore{
		predictions: []contracts.Prediction{cleanPrediction("p1", "QBE", ts)},
		outcomes: []contracts.Outcome{{
			ID:                  "o1",
			PredictionID:        "p1",
			Horizon:             time.Hour,
			EvaluationTimestamp: ts.Add(10 * time.Minute), // before the 1h minimum
		}},
	}

	from, to := window()
	report, err := newTestGuard(store).Audit(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	assert.Equal(t, contracts.ViolationMinDelay, report.Violations[0].Category)
	assert.True(t, report.HasCritical())
}

func TestGuard_DetectsDuplicateBuckets(t *testing.T) {
	ts := testClock.Add(-10 * time.Hour)
	a := cleanPrediction("p1", "QBE", ts)
	b := cleanPrediction("p2", "QBE", ts.Add(time.Hour)) // same day, same bucket

	store := &corruptStore{predictions: []contracts.Prediction{a, b}}

	from, to := window()
	report, err := newTestGuard(store).Audit(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, contracts.ViolationDuplicate, v.Category)
	assert.Equal(t, contracts.SeverityHigh, v.Severity)
	assert.Equal(t, "p2", v.PredictionID)

	// duplicates are quarantined, not critical: the pipeline keeps running
	assert.False(t, report.HasCritical())
	_, quarantined := report.QuarantinedPredictions()["p2"]
	assert.True(t, quarantined)
}

func TestGuard_DetectsOrphanOutcomes(t *testing.T) {
	store := &corruptStore{
		outcomes: []contracts.Outcome{{
			ID:                  "o1",
			PredictionID:        "ghost",
			Horizon:             time.Hour,
			EvaluationTimestamp: testClock.Add(-time.Hour),
		}},
	}

	from, to := window()
	report, err := newTestGuard(store).Audit(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	assert.Equal(t, contracts.ViolationReferential, report.Violations[0].Category)
	assert.Equal(t, contracts.SeverityHigh, report.Violations[0].Severity)
}

func TestGuard_ResolvesPredictionsOutsideWindow(t *testing.T) {
	// outcome inside the window, prediction well before it: referentially
	// sound, and the min-delay check still runs against the older row
	predTS := testClock.Add(-80 * time.Hour)
	store := &corruptStore{
		predictions: []contracts.Prediction{cleanPrediction("p1", "QBE", predTS)},
		outcomes: []contracts.Outcome{{
			ID:                  "o1",
			PredictionID:        "p1",
			Horizon:             time.Hour,
			EvaluationTimestamp: testClock.Add(-time.Hour),
		}},
	}

	from, to := window()
	report, err := newTestGuard(store).Audit(context.Background(), from, to)
	require.NoError(t, err)
	assert.True(t, report.Passed())
}
