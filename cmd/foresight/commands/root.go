package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "foresight",
	Short: "Foresight - temporally honest prediction pipeline",
	Long: `Foresight records forward-looking market predictions in an append-only
ledger, evaluates them against realized prices only after real time has
elapsed, and retrains models exclusively on evaluated history.

Usage:
  go run ./cmd/foresight [command]

Examples:
  go run ./cmd/foresight migrate
  go run ./cmd/foresight predict --symbol QBE --features features.json
  go run ./cmd/foresight evaluate --prices prices.csv
  go run ./cmd/foresight train
  go run ./cmd/foresight promote --version m-20260815-1
  go run ./cmd/foresight audit --window 48h
  go run ./cmd/foresight serve
  go run ./cmd/foresight scheduler --prices prices.csv`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
