package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfoundry/foresight/internal/api"
	"github.com/quantfoundry/foresight/internal/api/handlers"
	"github.com/quantfoundry/foresight/internal/scheduler"
	"github.com/quantfoundry/foresight/internal/scheduler/jobs"
)

var (
	schedulerPrices       string
	scheduleEvaluate      string
	scheduleTrain         string
	scheduleAudit         string
	schedulerAuditTrail   time.Duration
	schedulerWithoutAPI   bool
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the pipeline on cron schedules",
	Long: `Starts the evaluation, training and audit jobs on their schedules,
plus the operator API unless --no-api is set.

Cron expressions include a seconds field.

Example:
  go run ./cmd/foresight scheduler --prices prices.csv
  go run ./cmd/foresight scheduler --prices prices.csv --evaluate-schedule "0 */30 * * * *"`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().StringVar(&schedulerPrices, "prices", "", "path to the close-price CSV (symbol,timestamp,price)")
	schedulerCmd.Flags().StringVar(&scheduleEvaluate, "evaluate-schedule", "0 15 * * * *", "cron schedule for the evaluation job")
	schedulerCmd.Flags().StringVar(&scheduleTrain, "train-schedule", "0 0 2 * * *", "cron schedule for the training job")
	schedulerCmd.Flags().StringVar(&scheduleAudit, "audit-schedule", "0 0 * * * *", "cron schedule for the audit job")
	schedulerCmd.Flags().DurationVar(&schedulerAuditTrail, "audit-window", 48*time.Hour, "trailing window the audit job checks")
	schedulerCmd.Flags().BoolVar(&schedulerWithoutAPI, "no-api", false, "run jobs without the operator API")
	schedulerCmd.MarkFlagRequired("prices")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := a.newProvider(schedulerPrices)
	if err != nil {
		return err
	}

	tr, err := a.newTrainer()
	if err != nil {
		return err
	}

	sched := scheduler.New(a.log.Zerolog())

	jobList := []scheduler.Job{
		jobs.NewEvaluateJob(a.newEvaluator(provider), scheduleEvaluate, a.log.Zerolog()),
		jobs.NewTrainJob(tr, a.registry, scheduleTrain, a.log.Zerolog()),
		jobs.NewAuditJob(a.guard, schedulerAuditTrail, scheduleAudit, a.log.Zerolog()),
	}
	for _, job := range jobList {
		if err := sched.AddJob(job); err != nil {
			return err
		}
	}

	sched.Start()
	defer sched.Stop()

	var server *api.Server
	errCh := make(chan error, 1)

	if !schedulerWithoutAPI {
		router := api.NewRouter(
			handlers.NewLedgerHandler(a.store, a.store, a.log.Component("api")),
			handlers.NewModelHandler(a.store, a.log.Component("api")),
			handlers.NewPipelineHandler(a.guard, sched, a.log.Component("api")),
			a.log.Component("api"),
		)
		server = api.NewServer(a.cfg, a.log.Zerolog(), router)
		go func() {
			errCh <- server.Start()
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
	return nil
}
