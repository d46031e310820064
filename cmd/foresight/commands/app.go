package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantfoundry/foresight/internal/contracts"
	"github.com/quantfoundry/foresight/internal/engine"
	"github.com/quantfoundry/foresight/internal/evaluator"
	"github.com/quantfoundry/foresight/internal/guard"
	"github.com/quantfoundry/foresight/internal/ledger"
	"github.com/quantfoundry/foresight/internal/marketdata"
	"github.com/quantfoundry/foresight/internal/trainer"
	"github.com/quantfoundry/foresight/pkg/config"
	"github.com/quantfoundry/foresight/pkg/database"
	"github.com/quantfoundry/foresight/pkg/logger"
	"github.com/quantfoundry/foresight/pkg/redis"
)

// app bundles the shared wiring every command needs: config, logger,
// database, storage, guard and the bundle registry.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	store    *ledger.PostgresStore
	guard    *guard.Guard
	registry *engine.Registry
}

// newApp loads config, connects to the database and wires the shared
// components. The bundle registry is loaded when a promoted bundle exists.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	store := ledger.NewPostgresStore(db.Pool)

	g := guard.New(store, store, guard.Config{
		MinEvalDelay:   cfg.Pipeline.MinEvalDelay,
		BucketInterval: cfg.Pipeline.BucketInterval,
	}, log.Component("guard"))

	registry := engine.NewRegistry(store, log.Component("registry"))
	if err := registry.Reload(context.Background()); err != nil && !errors.Is(err, contracts.ErrNoPromotedModel) {
		db.Close()
		return nil, fmt.Errorf("load promoted bundle: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		store:    store,
		guard:    g,
		registry: registry,
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

func (a *app) newEngine() *engine.Engine {
	return engine.New(a.store, a.registry, engine.Config{
		BucketInterval:    a.cfg.Pipeline.BucketInterval,
		BackdateTolerance: a.cfg.Pipeline.BackdateTolerance,
	}, a.log.Component("engine"))
}

// newProvider loads close prices from a CSV file and wraps them with the
// configured lookup budget.
func (a *app) newProvider(path string) (contracts.MarketDataProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("--prices is required")
	}

	base, err := marketdata.LoadCSV(path, 30*time.Minute)
	if err != nil {
		return nil, err
	}

	return marketdata.NewThrottledProvider(base, marketdata.ThrottleConfig{
		LookupsPerSecond: a.cfg.Pipeline.MarketDataRate,
		Burst:            a.cfg.Pipeline.MarketDataBurst,
		RetryMaxElapsed:  a.cfg.Pipeline.RetryMaxElapsed,
	}), nil
}

func (a *app) newEvaluator(provider contracts.MarketDataProvider) *evaluator.Evaluator {
	return evaluator.New(a.store, a.store, provider, a.guard, evaluator.Config{
		MinEvalDelay:     a.cfg.Pipeline.MinEvalDelay,
		Horizons:         a.cfg.Pipeline.Horizons,
		MaxPendingAge:    a.cfg.Pipeline.MaxPendingAge,
		Workers:          a.cfg.Pipeline.EvaluatorWorkers,
		PerSymbolTimeout: a.cfg.Pipeline.PerSymbolTimeout,
	}, a.log.Component("evaluator"))
}

func (a *app) newTrainer() (*trainer.Trainer, error) {
	client, err := redis.New(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	p := a.cfg.Pipeline
	return trainer.New(a.store, a.store, a.guard, redis.NewLease(client, "foresight"), trainer.Config{
		TrainingWindow:     p.TrainingWindow,
		HoldoutWindow:      p.HoldoutWindow,
		Horizon:            trainingHorizon(p.Horizons),
		MinSamplesPerClass: p.MinSamplesPerClass,
		HoldoutFloorRatio:  p.HoldoutFloorRatio,
		Epochs:             p.TrainEpochs,
		LearnRate:          p.LearnRate,
		Thresholds: trainer.LabelThresholds{
			StrongPct: p.LabelStrongPct,
			WeakPct:   p.LabelWeakPct,
		},
		AbstainMargin: 0.05,
		LeaseTTL:      time.Hour,
	}, a.log.Component("trainer")), nil
}

// trainingHorizon picks the longest configured horizon; labels come from the
// slowest signal so day-scale noise does not dominate training.
func trainingHorizon(horizons []time.Duration) time.Duration {
	var max time.Duration
	for _, h := range horizons {
		if h > max {
			max = h
		}
	}
	return max
}
