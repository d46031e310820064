package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var auditWindow time.Duration

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit temporal integrity over a trailing window",
	Long: `Runs every integrity check over the trailing window: feature leakage,
future timestamps, premature evaluations, duplicate buckets and dangling
outcome references. Read-only; violations are reported, never repaired.

Exits non-zero when critical violations are found.

Example:
  go run ./cmd/foresight audit --window 48h`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().DurationVar(&auditWindow, "window", 24*time.Hour, "trailing window to audit")
}

func runAudit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()
	report, err := a.guard.Audit(ctx, now.Add(-auditWindow), now.Add(time.Second))
	if err != nil {
		return err
	}

	if err := printJSON(report); err != nil {
		return err
	}

	if report.HasCritical() {
		return fmt.Errorf("%d critical violation(s) found", report.CriticalCount())
	}
	return nil
}
