package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfoundry/foresight/internal/contracts"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a new model bundle from evaluated history",
	Long: `Fits a candidate bundle on evaluated (prediction, outcome) pairs older
than the holdout window, validates it on the holdout slice, and promotes it
when it clears the accuracy floor. The run holds an exclusive lease; a
concurrent run exits immediately.

Example:
  go run ./cmd/foresight train`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tr, err := a.newTrainer()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := tr.Train(ctx)
	if err != nil {
		if errors.Is(err, contracts.ErrTrainingInProgress) {
			fmt.Println("another training run is already in progress")
			return nil
		}
		var insufficient *contracts.InsufficientTrainingDataError
		if errors.As(err, &insufficient) {
			fmt.Println(insufficient.Error())
			return nil
		}
		return err
	}

	return printJSON(report)
}
