package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfoundry/foresight/internal/contracts"
	"github.com/quantfoundry/foresight/internal/guard"
)

// AuditJob runs a standalone integrity audit over the trailing window. It
// exists so corruption surfaces on its own clock, not only when the
// evaluator or trainer happens to run.
type AuditJob struct {
	guard    *guard.Guard
	window   time.Duration
	schedule string
	log      zerolog.Logger
}

// NewAuditJob creates the audit job.
func NewAuditJob(g *guard.Guard, window time.Duration, schedule string, log zerolog.Logger) *AuditJob {
	return &AuditJob{
		guard:    g,
		window:   window,
		schedule: schedule,
		log:      log.With().Str("job", "audit").Logger(),
	}
}

func (j *AuditJob) Name() string     { return "audit" }
func (j *AuditJob) Schedule() string { return j.schedule }

// Run audits the trailing window. Critical findings fail the job so they
// land in the job history and the error log.
func (j *AuditJob) Run(ctx context.Context) error {
	now := time.Now()
	report, err := j.guard.Audit(ctx, now.Add(-j.window), now.Add(time.Second))
	if err != nil {
		return err
	}

	if report.HasCritical() {
		return &contracts.TemporalIntegrityError{Report: report}
	}

	if !report.Passed() {
		j.log.Warn().
			Int("violations", len(report.Violations)).
			Msg("audit found non-critical violations")
	}
	return nil
}
