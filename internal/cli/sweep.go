package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"stock-sync-service/internal/domain"
	"stock-sync-service/internal/retry"

	"github.com/spf13/cobra"
)

// Sweeper runs one bulk retry sweep
type Sweeper interface {
	Sweep(ctx context.Context) (*retry.SweepReport, error)
}

// NewSweepCommand creates the one-shot sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Schedule every eligible failed record for retry",
		Long: `Finds failed records younger than SWEEP_MAX_AGE, schedules the ones whose
category still allows a retry and whose cooldown has elapsed, and prints the
counts per error category.

Examples:
  stock-sync-worker sweep
  stock-sync-worker sweep --format json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := loadComponents("stock-sync-cli")
			if err != nil {
				return err
			}
			defer components.Close()
			if err := requireKafka(components); err != nil {
				return err
			}
			return runSweep(cmd.Context(), components.Scheduler, cmd.OutOrStdout(), rootOpts.Format)
		},
	}
}

func runSweep(ctx context.Context, sweeper Sweeper, w io.Writer, format string) error {
	report, err := sweeper.Sweep(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "sweep failed", err)
	}

	return writeResult(w, format, report, func(w io.Writer) {
		fmt.Fprintf(w, "found %d, queued %d, skipped %d\n", report.Found, report.Queued, report.Skipped)
		if report.Recovered > 0 {
			fmt.Fprintf(w, "recovered %d abandoned processing claims\n", report.Recovered)
		}

		categories := make([]string, 0, len(report.ByCategory))
		for category := range report.ByCategory {
			categories = append(categories, string(category))
		}
		sort.Strings(categories)
		for _, category := range categories {
			counts := report.ByCategory[domain.ErrorType(category)]
			fmt.Fprintf(w, "  %-18s found %d, queued %d, skipped %d\n", category, counts.Found, counts.Queued, counts.Skipped)
		}
	})
}
