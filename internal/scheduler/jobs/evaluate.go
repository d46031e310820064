package jobs

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/evaluator"
)

// EvaluateJob runs one evaluation pass over due predictions.
type EvaluateJob struct {
	eval     *evaluator.Evaluator
	schedule string
	log      zerolog.Logger
}

// NewEvaluateJob creates the evaluation job.
func NewEvaluateJob(eval *evaluator.Evaluator, schedule string, log zerolog.Logger) *EvaluateJob {
	return &EvaluateJob{
		eval:     eval,
		schedule: schedule,
		log:      log.With().Str("job", "evaluate").Logger(),
	}
}

func (j *EvaluateJob) Name() string     { return "evaluate" }
func (j *EvaluateJob) Schedule() string { return j.schedule }

// Run executes the pass. Per-item failures are reported, not fatal.
func (j *EvaluateJob) Run(ctx context.Context) error {
	report, err := j.eval.Run(ctx)
	if err != nil {
		return err
	}

	if len(report.Failures) > 0 {
		j.log.Warn().
			Int("failures", len(report.Failures)).
			Msg("evaluation pass finished with item failures")
	}
	return nil
}
