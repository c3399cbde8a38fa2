package cli

import (
	"fmt"

	"stock-sync-service/internal/bootstrap"
	"stock-sync-service/internal/config"
	"stock-sync-service/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the worker binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "stock-sync-worker",
		Short:         "Stock sync worker and operator tools",
		Long:          "Consumes sync tasks from Kafka and applies them to the external inventory, and runs retry sweeps and manual resyncs.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewConsumeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewResyncCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadComponents reads the environment and connects every backend
func loadComponents(service string) (*bootstrap.Components, error) {
	cfg := config.Load()
	appLogger := logger.New(cfg.Environment, service)

	components, err := bootstrap.Build(cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize components", zap.Error(err))
		return nil, WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	return components, nil
}

// requireKafka rejects one-shot commands when tasks would only live in this process
func requireKafka(components *bootstrap.Components) error {
	if components.Enqueuer == nil {
		return NewExitError(ExitCommandError, "kafka is unreachable; queued tasks would be lost when this command exits")
	}
	return nil
}
