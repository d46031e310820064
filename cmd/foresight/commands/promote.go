package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfoundry/foresight/internal/contracts"
)

var promoteVersion string

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote a stored model bundle by version",
	Long: `Makes the named bundle the one served by the prediction engine. The
previous bundle is demoted, not deleted, so promoting an older version rolls
the engine back.

Example:
  go run ./cmd/foresight promote --version m-20260815-1`,
	RunE: runPromote,
}

func init() {
	promoteCmd.Flags().StringVar(&promoteVersion, "version", "", "bundle version to promote (required)")
	rootCmd.AddCommand(promoteCmd)
}

func runPromote(cmd *cobra.Command, args []string) error {
	if promoteVersion == "" {
		return fmt.Errorf("--version is required")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.store.Promote(ctx, promoteVersion); err != nil {
		if errors.Is(err, contracts.ErrBundleNotFound) {
			return fmt.Errorf("no bundle with version %q", promoteVersion)
		}
		return err
	}

	if err := a.registry.Reload(ctx); err != nil {
		return fmt.Errorf("bundle promoted but reload failed: %w", err)
	}

	bundle, err := a.store.GetPromoted(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("promoted %s (created %s, holdout rows %d)\n",
		bundle.Version, bundle.CreatedAt.Format(time.RFC3339), bundle.Holdout.Samples)
	return nil
}
