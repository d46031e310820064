package jobs

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/engine"
	"github.com/quantfoundry/foresight/internal/trainer"
)

// TrainJob runs one training attempt and, when a new bundle is promoted,
// reloads the engine's bundle cache so new predictions pick it up.
type TrainJob struct {
	trainer  *trainer.Trainer
	registry *engine.Registry
	schedule string
	log      zerolog.Logger
}

// NewTrainJob creates the training job.
func NewTrainJob(tr *trainer.Trainer, registry *engine.Registry, schedule string, log zerolog.Logger) *TrainJob {
	return &TrainJob{
		trainer:  tr,
		registry: registry,
		schedule: schedule,
		log:      log.With().Str("job", "train").Logger(),
	}
}

func (j *TrainJob) Name() string     { return "train" }
func (j *TrainJob) Schedule() string { return j.schedule }

// Run executes one training attempt.
func (j *TrainJob) Run(ctx context.Context) error {
	report, err := j.trainer.Train(ctx)
	if err != nil {
		return err
	}

	if !report.Promoted {
		j.log.Warn().
			Str("model_version", report.ModelVersion).
			Str("reason", report.Reason).
			Msg("training finished without promotion")
		return nil
	}

	if err := j.registry.Reload(ctx); err != nil {
		return err
	}
	return nil
}
