package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfoundry/foresight/internal/contracts"
)

// PostgresStore persists the prediction ledger, outcome store and model
// bundle registry. Uniqueness is enforced by the database, not by
// application locks: concurrent inserts into an occupied (symbol, bucket)
// slot fail with a constraint violation that maps to
// *DuplicatePredictionError.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS predictions (
	id                TEXT PRIMARY KEY,
	symbol            TEXT NOT NULL,
	prediction_ts     TIMESTAMPTZ NOT NULL,
	bucket            TIMESTAMPTZ NOT NULL,
	action            TEXT NOT NULL,
	action_confidence DOUBLE PRECISION NOT NULL,
	direction         SMALLINT,
	magnitude         DOUBLE PRECISION NOT NULL,
	features          JSONB NOT NULL,
	model_version     TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'PENDING',
	created_at        TIMESTAMPTZ NOT NULL,
	CONSTRAINT predictions_symbol_bucket_key UNIQUE (symbol, bucket)
);

CREATE TABLE IF NOT EXISTS outcomes (
	id                TEXT PRIMARY KEY,
	prediction_id     TEXT NOT NULL REFERENCES predictions(id),
	horizon_seconds   BIGINT NOT NULL,
	entry_price       DOUBLE PRECISION NOT NULL,
	exit_price        DOUBLE PRECISION NOT NULL,
	actual_return_pct DOUBLE PRECISION NOT NULL,
	actual_direction  SMALLINT NOT NULL,
	evaluation_ts     TIMESTAMPTZ NOT NULL,
	CONSTRAINT outcomes_prediction_horizon_key UNIQUE (prediction_id, horizon_seconds)
);

CREATE TABLE IF NOT EXISTS model_bundles (
	version    TEXT PRIMARY KEY,
	bundle     JSONB NOT NULL,
	promoted   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS model_bundles_single_promoted
	ON model_bundles (promoted) WHERE promoted;

CREATE INDEX IF NOT EXISTS predictions_status_ts_idx
	ON predictions (status, prediction_ts);

CREATE INDEX IF NOT EXISTS outcomes_evaluation_ts_idx
	ON outcomes (evaluation_ts);
`

// Migrate creates the ledger tables and constraints.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// LedgerRepository
// ---------------------------------------------------------------------------

// InsertPrediction appends a prediction under the (symbol, bucket) uniqueness
// constraint.
func (s *PostgresStore) InsertPrediction(ctx context.Context, p *contracts.Prediction) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("marshal feature snapshot: %w", err)
	}

	query := `
		INSERT INTO predictions
			(id, symbol, prediction_ts, bucket, action, action_confidence,
			 direction, magnitude, features, model_version, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.pool.Exec(ctx, query,
		p.ID, p.Symbol, p.PredictionTimestamp, p.Bucket, p.Action, p.ActionConfidence,
		p.Direction, p.Magnitude, features, p.ModelVersion, p.Status, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "predictions_symbol_bucket_key" {
				return &contracts.DuplicatePredictionError{Symbol: p.Symbol, Bucket: p.Bucket}
			}
			return fmt.Errorf("prediction id %s already exists: %w", p.ID, err)
		}
		return fmt.Errorf("insert prediction: %w", err)
	}

	return nil
}

// GetPrediction resolves a prediction by id.
func (s *PostgresStore) GetPrediction(ctx context.Context, id string) (*contracts.Prediction, error) {
	query := selectPrediction + ` WHERE id = $1`

	p, err := scanPrediction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrPredictionNotFound
		}
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return p, nil
}

// ListPredictions returns predictions with prediction_ts in [from, to).
func (s *PostgresStore) ListPredictions(ctx context.Context, from, to time.Time) ([]contracts.Prediction, error) {
	query := selectPrediction + `
		WHERE prediction_ts >= $1 AND prediction_ts < $2
		ORDER BY prediction_ts, symbol`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// ListPendingBefore returns PENDING predictions with prediction_ts <= ts.
func (s *PostgresStore) ListPendingBefore(ctx context.Context, ts time.Time) ([]contracts.Prediction, error) {
	query := selectPrediction + `
		WHERE status = 'PENDING' AND prediction_ts <= $1
		ORDER BY prediction_ts, symbol`

	rows, err := s.pool.Query(ctx, query, ts)
	if err != nil {
		return nil, fmt.Errorf("list pending predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// MarkEvaluated transitions PENDING -> EVALUATED.
func (s *PostgresStore) MarkEvaluated(ctx context.Context, id string) error {
	return s.transition(ctx, id, contracts.StatusEvaluated)
}

// MarkExpired transitions PENDING -> EXPIRED.
func (s *PostgresStore) MarkExpired(ctx context.Context, id string) error {
	return s.transition(ctx, id, contracts.StatusExpired)
}

// transition moves a prediction out of PENDING. The WHERE clause makes the
// transition one-way: terminal rows are never touched.
func (s *PostgresStore) transition(ctx context.Context, id string, to contracts.PredictionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE predictions SET status = $2 WHERE id = $1 AND status = 'PENDING'`,
		id, to,
	)
	if err != nil {
		return fmt.Errorf("transition prediction %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// distinguish "missing" from "already terminal"
	if _, err := s.GetPrediction(ctx, id); err != nil {
		return err
	}
	return contracts.ErrNotPending
}

const selectPrediction = `
	SELECT id, symbol, prediction_ts, bucket, action, action_confidence,
	       direction, magnitude, features, model_version, status, created_at
	FROM predictions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (*contracts.Prediction, error) {
	var p contracts.Prediction
	var features []byte

	if err := row.Scan(
		&p.ID, &p.Symbol, &p.PredictionTimestamp, &p.Bucket, &p.Action, &p.ActionConfidence,
		&p.Direction, &p.Magnitude, &features, &p.ModelVersion, &p.Status, &p.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(features, &p.Features); err != nil {
		return nil, fmt.Errorf("unmarshal feature snapshot: %w", err)
	}
	return &p, nil
}

func collectPredictions(rows pgx.Rows) ([]contracts.Prediction, error) {
	var out []contracts.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// OutcomeRepository
// ---------------------------------------------------------------------------

// InsertOutcome appends an outcome under the one-outcome-per-(prediction,
// horizon) constraint.
func (s *PostgresStore) InsertOutcome(ctx context.Context, o *contracts.Outcome) error {
	query := `
		INSERT INTO outcomes
			(id, prediction_id, horizon_seconds, entry_price, exit_price,
			 actual_return_pct, actual_direction, evaluation_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.PredictionID, int64(o.Horizon.Seconds()), o.EntryPrice, o.ExitPrice,
		o.ActualReturnPct, o.ActualDirection, o.EvaluationTimestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return contracts.ErrOutcomeExists
			case "23503":
				return contracts.ErrPredictionNotFound
			}
		}
		return fmt.Errorf("insert outcome: %w", err)
	}

	return nil
}

// HasOutcome reports whether an outcome exists for (prediction, horizon).
func (s *PostgresStore) HasOutcome(ctx context.Context, predictionID string, horizon time.Duration) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM outcomes WHERE prediction_id = $1 AND horizon_seconds = $2)`,
		predictionID, int64(horizon.Seconds()),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check outcome: %w", err)
	}
	return exists, nil
}

const selectOutcome = `
	SELECT id, prediction_id, horizon_seconds, entry_price, exit_price,
	       actual_return_pct, actual_direction, evaluation_ts
	FROM outcomes`

func scanOutcome(row rowScanner) (*contracts.Outcome, error) {
	var o contracts.Outcome
	var horizonSeconds int64

	if err := row.Scan(
		&o.ID, &o.PredictionID, &horizonSeconds, &o.EntryPrice, &o.ExitPrice,
		&o.ActualReturnPct, &o.ActualDirection, &o.EvaluationTimestamp,
	); err != nil {
		return nil, err
	}
	o.Horizon = time.Duration(horizonSeconds) * time.Second
	return &o, nil
}

// ListOutcomesForPrediction returns all outcomes referencing a prediction.
func (s *PostgresStore) ListOutcomesForPrediction(ctx context.Context, predictionID string) ([]contracts.Outcome, error) {
	rows, err := s.pool.Query(ctx, selectOutcome+` WHERE prediction_id = $1 ORDER BY horizon_seconds`, predictionID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes for prediction: %w", err)
	}
	defer rows.Close()

	return collectOutcomes(rows)
}

// ListOutcomes returns outcomes with evaluation_ts in [from, to).
func (s *PostgresStore) ListOutcomes(ctx context.Context, from, to time.Time) ([]contracts.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		selectOutcome+` WHERE evaluation_ts >= $1 AND evaluation_ts < $2 ORDER BY evaluation_ts`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	return collectOutcomes(rows)
}

func collectOutcomes(rows pgx.Rows) ([]contracts.Outcome, error) {
	var out []contracts.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListEvaluatedPairs joins EVALUATED predictions with their outcome for one
// horizon, restricted to prediction_ts in [from, to).
func (s *PostgresStore) ListEvaluatedPairs(ctx context.Context, from, to time.Time, horizon time.Duration) ([]contracts.EvaluatedPair, error) {
	query := `
		SELECT p.id, p.symbol, p.prediction_ts, p.bucket, p.action, p.action_confidence,
		       p.direction, p.magnitude, p.features, p.model_version, p.status, p.created_at,
		       o.id, o.prediction_id, o.horizon_seconds, o.entry_price, o.exit_price,
		       o.actual_return_pct, o.actual_direction, o.evaluation_ts
		FROM predictions p
		INNER JOIN outcomes o
			ON p.id = o.prediction_id AND o.horizon_seconds = $3
		WHERE p.status = 'EVALUATED'
		  AND p.prediction_ts >= $1 AND p.prediction_ts < $2
		ORDER BY p.prediction_ts`

	rows, err := s.pool.Query(ctx, query, from, to, int64(horizon.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("list evaluated pairs: %w", err)
	}
	defer rows.Close()

	var pairs []contracts.EvaluatedPair
	for rows.Next() {
		var pair contracts.EvaluatedPair
		var features []byte
		var horizonSeconds int64

		if err := rows.Scan(
			&pair.Prediction.ID, &pair.Prediction.Symbol, &pair.Prediction.PredictionTimestamp,
			&pair.Prediction.Bucket, &pair.Prediction.Action, &pair.Prediction.ActionConfidence,
			&pair.Prediction.Direction, &pair.Prediction.Magnitude, &features,
			&pair.Prediction.ModelVersion, &pair.Prediction.Status, &pair.Prediction.CreatedAt,
			&pair.Outcome.ID, &pair.Outcome.PredictionID, &horizonSeconds,
			&pair.Outcome.EntryPrice, &pair.Outcome.ExitPrice,
			&pair.Outcome.ActualReturnPct, &pair.Outcome.ActualDirection, &pair.Outcome.EvaluationTimestamp,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal(features, &pair.Prediction.Features); err != nil {
			return nil, fmt.Errorf("unmarshal feature snapshot: %w", err)
		}
		pair.Outcome.Horizon = time.Duration(horizonSeconds) * time.Second

		pairs = append(pairs, pair)
	}

	return pairs, rows.Err()
}

// ---------------------------------------------------------------------------
// BundleRepository
// ---------------------------------------------------------------------------

// SaveBundle stores a new, unpromoted bundle version.
func (s *PostgresStore) SaveBundle(ctx context.Context, b *contracts.ModelBundle) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal model bundle: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO model_bundles (version, bundle, promoted, created_at) VALUES ($1, $2, FALSE, $3)`,
		b.Version, payload, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save model bundle: %w", err)
	}
	return nil
}

// GetBundle resolves a bundle by version.
func (s *PostgresStore) GetBundle(ctx context.Context, version string) (*contracts.ModelBundle, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT bundle FROM model_bundles WHERE version = $1`, version,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrBundleNotFound
		}
		return nil, fmt.Errorf("get model bundle: %w", err)
	}

	var b contracts.ModelBundle
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("unmarshal model bundle: %w", err)
	}
	return &b, nil
}

// Promote atomically flips the promoted flag to the named version. The demote
// and promote happen in one transaction, so readers never see zero or two
// promoted bundles.
func (s *PostgresStore) Promote(ctx context.Context, version string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin promote: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE model_bundles SET promoted = FALSE WHERE promoted`); err != nil {
		return fmt.Errorf("demote current bundle: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE model_bundles SET promoted = TRUE WHERE version = $1`, version)
	if err != nil {
		return fmt.Errorf("promote bundle %s: %w", version, err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrBundleNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit promote: %w", err)
	}
	return nil
}

// GetPromoted returns the currently promoted bundle.
func (s *PostgresStore) GetPromoted(ctx context.Context) (*contracts.ModelBundle, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT bundle FROM model_bundles WHERE promoted`).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contracts.ErrNoPromotedModel
		}
		return nil, fmt.Errorf("get promoted bundle: %w", err)
	}

	var b contracts.ModelBundle
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("unmarshal model bundle: %w", err)
	}
	return &b, nil
}

// ListBundles returns version history, newest first.
func (s *PostgresStore) ListBundles(ctx context.Context) ([]contracts.BundleInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT version, promoted, created_at, bundle FROM model_bundles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list model bundles: %w", err)
	}
	defer rows.Close()

	var out []contracts.BundleInfo
	for rows.Next() {
		var info contracts.BundleInfo
		var payload []byte
		if err := rows.Scan(&info.Version, &info.Promoted, &info.CreatedAt, &payload); err != nil {
			return nil, err
		}

		var b contracts.ModelBundle
		if err := json.Unmarshal(payload, &b); err != nil {
			return nil, fmt.Errorf("unmarshal model bundle: %w", err)
		}
		info.Holdout = b.Holdout

		out = append(out, info)
	}
	return out, rows.Err()
}
