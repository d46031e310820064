package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfoundry/foresight/internal/contracts"
)

var (
	predictSymbol   string
	predictFeatures string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Record a prediction from a feature vector",
	Long: `Runs the promoted model bundle over a feature vector and appends the
resulting prediction to the ledger.

The features file is a JSON feature vector:
  {
    "symbol": "QBE",
    "collected_at": "2026-03-10T09:55:00Z",
    "schema_version": "v1",
    "values": {"rsi_14": 52.0, "momentum_5d": 1.2},
    "collected_times": {"rsi_14": "2026-03-10T09:54:58Z"}
  }

Example:
  go run ./cmd/foresight predict --symbol QBE --features features.json`,
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVar(&predictSymbol, "symbol", "", "symbol override (defaults to the file's symbol)")
	predictCmd.Flags().StringVar(&predictFeatures, "features", "", "path to the feature vector JSON file")
	predictCmd.MarkFlagRequired("features")
}

func runPredict(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	raw, err := os.ReadFile(predictFeatures)
	if err != nil {
		return fmt.Errorf("read features file: %w", err)
	}

	var fv contracts.FeatureVector
	if err := json.Unmarshal(raw, &fv); err != nil {
		return fmt.Errorf("parse features file: %w", err)
	}
	if predictSymbol != "" {
		fv.Symbol = predictSymbol
	}
	if fv.CollectedAt.IsZero() {
		fv.CollectedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := a.newEngine().Predict(ctx, fv)
	if err != nil {
		var dup *contracts.DuplicatePredictionError
		if errors.As(err, &dup) {
			fmt.Printf("already predicted: %s holds a prediction for bucket %s\n",
				dup.Symbol, dup.Bucket.Format(time.RFC3339))
			return nil
		}
		return err
	}

	return printJSON(p)
}
