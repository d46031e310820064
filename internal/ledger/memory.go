package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// MemoryStore is an in-memory ledger with the same constraint semantics as
// PostgresStore: unique prediction ids, one prediction per (symbol, bucket),
// one outcome per (prediction, horizon), one-way status transitions, a single
// promoted bundle. Used by tests and by standalone runs without a database.
type MemoryStore struct {
	mu sync.Mutex

	predictions map[string]contracts.Prediction
	buckets     map[string]string // symbol|bucket -> prediction id
	outcomes    map[string]contracts.Outcome
	outcomeKeys map[string]string // predictionID|horizonSeconds -> outcome id

	bundles  map[string]contracts.ModelBundle
	promoted string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		predictions: make(map[string]contracts.Prediction),
		buckets:     make(map[string]string),
		outcomes:    make(map[string]contracts.Outcome),
		outcomeKeys: make(map[string]string),
		bundles:     make(map[string]contracts.ModelBundle),
	}
}

func bucketKey(symbol string, bucket time.Time) string {
	return symbol + "|" + bucket.UTC().Format(time.RFC3339)
}

func outcomeKey(predictionID string, horizon time.Duration) string {
	return fmt.Sprintf("%s|%d", predictionID, int64(horizon.Seconds()))
}

// InsertPrediction appends a prediction, rejecting id and (symbol, bucket)
// collisions.
func (s *MemoryStore) InsertPrediction(ctx context.Context, p *contracts.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.predictions[p.ID]; exists {
		return fmt.Errorf("prediction id %s already exists", p.ID)
	}

	key := bucketKey(p.Symbol, p.Bucket)
	if _, exists := s.buckets[key]; exists {
		return &contracts.DuplicatePredictionError{Symbol: p.Symbol, Bucket: p.Bucket}
	}

	s.predictions[p.ID] = *p
	s.buckets[key] = p.ID
	return nil
}

// GetPrediction resolves a prediction by id.
func (s *MemoryStore) GetPrediction(ctx context.Context, id string) (*contracts.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.predictions[id]
	if !ok {
		return nil, contracts.ErrPredictionNotFound
	}
	return &p, nil
}

// ListPredictions returns predictions with prediction_timestamp in [from, to).
func (s *MemoryStore) ListPredictions(ctx context.Context, from, to time.Time) ([]contracts.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contracts.Prediction
	for _, p := range s.predictions {
		if !p.PredictionTimestamp.Before(from) && p.PredictionTimestamp.Before(to) {
			out = append(out, p)
		}
	}
	sortPredictions(out)
	return out, nil
}

// ListPendingBefore returns PENDING predictions no newer than ts.
func (s *MemoryStore) ListPendingBefore(ctx context.Context, ts time.Time) ([]contracts.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contracts.Prediction
	for _, p := range s.predictions {
		if p.Status == contracts.StatusPending && !p.PredictionTimestamp.After(ts) {
			out = append(out, p)
		}
	}
	sortPredictions(out)
	return out, nil
}

// MarkEvaluated transitions PENDING -> EVALUATED.
func (s *MemoryStore) MarkEvaluated(ctx context.Context, id string) error {
	return s.transition(id, contracts.StatusEvaluated)
}

// MarkExpired transitions PENDING -> EXPIRED.
func (s *MemoryStore) MarkExpired(ctx context.Context, id string) error {
	return s.transition(id, contracts.StatusExpired)
}

func (s *MemoryStore) transition(id string, to contracts.PredictionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.predictions[id]
	if !ok {
		return contracts.ErrPredictionNotFound
	}
	if p.Status != contracts.StatusPending {
		return contracts.ErrNotPending
	}
	p.Status = to
	s.predictions[id] = p
	return nil
}

func sortPredictions(ps []contracts.Prediction) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].PredictionTimestamp.Equal(ps[j].PredictionTimestamp) {
			return ps[i].Symbol < ps[j].Symbol
		}
		return ps[i].PredictionTimestamp.Before(ps[j].PredictionTimestamp)
	})
}

// InsertOutcome appends an outcome under the one-per-(prediction, horizon)
// constraint and the referential constraint.
func (s *MemoryStore) InsertOutcome(ctx context.Context, o *contracts.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.predictions[o.PredictionID]; !ok {
		return contracts.ErrPredictionNotFound
	}

	key := outcomeKey(o.PredictionID, o.Horizon)
	if _, exists := s.outcomeKeys[key]; exists {
		return contracts.ErrOutcomeExists
	}

	s.outcomes[o.ID] = *o
	s.outcomeKeys[key] = o.ID
	return nil
}

// HasOutcome reports whether an outcome exists for (prediction, horizon).
func (s *MemoryStore) HasOutcome(ctx context.Context, predictionID string, horizon time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.outcomeKeys[outcomeKey(predictionID, horizon)]
	return exists, nil
}

// ListOutcomesForPrediction returns all outcomes referencing a prediction.
func (s *MemoryStore) ListOutcomesForPrediction(ctx context.Context, predictionID string) ([]contracts.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contracts.Outcome
	for _, o := range s.outcomes {
		if o.PredictionID == predictionID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Horizon < out[j].Horizon })
	return out, nil
}

// ListOutcomes returns outcomes with evaluation_timestamp in [from, to).
func (s *MemoryStore) ListOutcomes(ctx context.Context, from, to time.Time) ([]contracts.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contracts.Outcome
	for _, o := range s.outcomes {
		if !o.EvaluationTimestamp.Before(from) && o.EvaluationTimestamp.Before(to) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EvaluationTimestamp.Before(out[j].EvaluationTimestamp)
	})
	return out, nil
}

// ListEvaluatedPairs joins EVALUATED predictions with their outcome for one
// horizon, restricted to prediction_timestamp in [from, to).
func (s *MemoryStore) ListEvaluatedPairs(ctx context.Context, from, to time.Time, horizon time.Duration) ([]contracts.EvaluatedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pairs []contracts.EvaluatedPair
	for _, p := range s.predictions {
		if p.Status != contracts.StatusEvaluated {
			continue
		}
		if p.PredictionTimestamp.Before(from) || !p.PredictionTimestamp.Before(to) {
			continue
		}
		outcomeID, ok := s.outcomeKeys[outcomeKey(p.ID, horizon)]
		if !ok {
			continue
		}
		pairs = append(pairs, contracts.EvaluatedPair{
			Prediction: p,
			Outcome:    s.outcomes[outcomeID],
		})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Prediction.PredictionTimestamp.Before(pairs[j].Prediction.PredictionTimestamp)
	})
	return pairs, nil
}

// SaveBundle stores a new, unpromoted bundle version.
func (s *MemoryStore) SaveBundle(ctx context.Context, b *contracts.ModelBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bundles[b.Version]; exists {
		return fmt.Errorf("bundle version %s already exists", b.Version)
	}
	s.bundles[b.Version] = *b
	return nil
}

// GetBundle resolves a bundle by version.
func (s *MemoryStore) GetBundle(ctx context.Context, version string) (*contracts.ModelBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bundles[version]
	if !ok {
		return nil, contracts.ErrBundleNotFound
	}
	return &b, nil
}

// Promote atomically swaps the promoted version.
func (s *MemoryStore) Promote(ctx context.Context, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bundles[version]; !ok {
		return contracts.ErrBundleNotFound
	}
	s.promoted = version
	return nil
}

// GetPromoted returns the currently promoted bundle.
func (s *MemoryStore) GetPromoted(ctx context.Context) (*contracts.ModelBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.promoted == "" {
		return nil, contracts.ErrNoPromotedModel
	}
	b := s.bundles[s.promoted]
	return &b, nil
}

// ListBundles returns version history, newest first.
func (s *MemoryStore) ListBundles(ctx context.Context) ([]contracts.BundleInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []contracts.BundleInfo
	for version, b := range s.bundles {
		out = append(out, contracts.BundleInfo{
			Version:   version,
			Promoted:  version == s.promoted,
			CreatedAt: b.CreatedAt,
			Holdout:   b.Holdout,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
