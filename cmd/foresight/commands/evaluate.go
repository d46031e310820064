package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var evaluatePrices string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one evaluation pass over due predictions",
	Long: `Audits the ledger, then computes realized outcomes for every pending
prediction whose minimum evaluation delay has elapsed. Refuses to run when
the audit finds critical violations.

Example:
  go run ./cmd/foresight evaluate --prices prices.csv`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evaluatePrices, "prices", "", "path to the close-price CSV (symbol,timestamp,price)")
	evaluateCmd.MarkFlagRequired("prices")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := a.newProvider(evaluatePrices)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := a.newEvaluator(provider).Run(ctx)
	if err != nil {
		return err
	}

	return printJSON(report)
}
