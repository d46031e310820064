package commands

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfoundry/foresight/internal/contracts"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline status",
	Long: `Prints database health, the promoted model version and recent ledger
activity.

Example:
  go run ./cmd/foresight status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Database       string                   `json:"database"`
	PromotedModel  string                   `json:"promoted_model,omitempty"`
	ModelVersions  int                      `json:"model_versions"`
	Last24h        map[string]int           `json:"last_24h"`
	HoldoutReport  *contracts.HoldoutReport `json:"holdout_report,omitempty"`
	PendingOverdue int                      `json:"pending_overdue"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := statusOutput{Database: "ok", Last24h: map[string]int{}}

	if err := a.db.Ping(ctx); err != nil {
		out.Database = "unreachable: " + err.Error()
	}

	if bundle, err := a.store.GetPromoted(ctx); err == nil {
		out.PromotedModel = bundle.Version
		out.HoldoutReport = &bundle.Holdout
	} else if !errors.Is(err, contracts.ErrNoPromotedModel) {
		return err
	}

	if infos, err := a.store.ListBundles(ctx); err == nil {
		out.ModelVersions = len(infos)
	}

	now := time.Now()
	if predictions, err := a.store.ListPredictions(ctx, now.Add(-24*time.Hour), now); err == nil {
		out.Last24h["predictions"] = len(predictions)
	}
	if outcomes, err := a.store.ListOutcomes(ctx, now.Add(-24*time.Hour), now); err == nil {
		out.Last24h["outcomes"] = len(outcomes)
	}

	if pending, err := a.store.ListPendingBefore(ctx, now.Add(-a.cfg.Pipeline.MinEvalDelay)); err == nil {
		out.PendingOverdue = len(pending)
	}

	return printJSON(out)
}
