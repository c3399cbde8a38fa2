package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"stock-sync-service/internal/domain"

	"github.com/spf13/cobra"
)

// Resyncer puts one record back on the queue
type Resyncer interface {
	Resync(ctx context.Context, kind domain.RecordKind, id int64) (domain.SyncRecord, error)
}

type resyncResult struct {
	Kind     domain.RecordKind `json:"kind"`
	RecordID int64             `json:"record_id"`
	Status   domain.SyncStatus `json:"sync_status"`
	Attempts int               `json:"sync_attempts"`
}

// NewResyncCommand creates the manual resync command.
func NewResyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resync <scan|movement> <id>",
		Short: "Queue a record for immediate sync, ignoring retry caps",
		Long: `Moves a failed or pending record back to pending and queues it with no delay.
Synced records are refused, as are records currently being processed.

Exit codes:
  0 - Record queued
  1 - Record refused (already synced or being processed)
  2 - Command error (bad arguments, unknown record, unreachable backends)

Examples:
  stock-sync-worker resync movement 42`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := parseRecordRef(args)
			if err != nil {
				return err
			}
			components, err := loadComponents("stock-sync-cli")
			if err != nil {
				return err
			}
			defer components.Close()
			if err := requireKafka(components); err != nil {
				return err
			}
			return runResync(cmd.Context(), components.Scheduler, kind, id, cmd.OutOrStdout(), rootOpts.Format)
		},
	}
}

func parseRecordRef(args []string) (domain.RecordKind, int64, error) {
	kind, err := domain.ParseRecordKind(args[0])
	if err != nil {
		return "", 0, WrapExitError(ExitCommandError, "invalid kind", err)
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id < 1 {
		return "", 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid id %q", args[1]))
	}
	return kind, id, nil
}

func runResync(ctx context.Context, resyncer Resyncer, kind domain.RecordKind, id int64, w io.Writer, format string) error {
	record, err := resyncer.Resync(ctx, kind, id)
	switch {
	case errors.Is(err, domain.ErrAlreadySynced), errors.Is(err, domain.ErrConcurrentlyClaimed):
		return WrapExitError(ExitFailure, "resync refused", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "resync failed", err)
	}

	result := resyncResult{
		Kind:     record.Kind(),
		RecordID: record.RecordID(),
		Status:   record.State().Status,
		Attempts: record.State().Attempts,
	}
	return writeResult(w, format, result, func(w io.Writer) {
		fmt.Fprintf(w, "%s %d queued (status %s, %d attempts so far)\n", result.Kind, result.RecordID, result.Status, result.Attempts)
	})
}
