package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-sync-service/internal/queue"
	"stock-sync-service/internal/retry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const delayPumpInterval = time.Second

// NewConsumeCommand creates the long-running worker command.
func NewConsumeCommand(rootOpts *RootOptions) *cobra.Command {
	var noSweep bool

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume sync tasks and apply them to the external inventory",
		Long: `Joins the Kafka consumer group for the task topic and processes every
delivered task. The worker also pumps delayed retries from Redis into Kafka
and runs the retry sweep every SWEEP_INTERVAL.

When Kafka is unreachable the worker runs the in-process queue instead and
only processes retries found by its own sweeps.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConsume(ctx, noSweep)
		},
	}

	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the periodic retry sweep")

	return cmd
}

func runConsume(ctx context.Context, noSweep bool) error {
	components, err := loadComponents("stock-sync-worker")
	if err != nil {
		return err
	}
	defer components.Close()
	log := components.Logger
	cfg := components.Config

	if components.Enqueuer == nil {
		log.Warn("Kafka unavailable, running sweeps on the in-process queue only")
		pool := components.StartLocalQueue(ctx)
		defer pool.Close()
		if !noSweep {
			go components.Scheduler.RunPeriodic(ctx, cfg.SweepInterval)
		}
		<-ctx.Done()
		return nil
	}

	runner := components.NewRunner(components.NewProcessor())
	consumer, err := queue.NewConsumer(cfg, runner, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create consumer", err)
	}
	defer consumer.Close()

	go components.Enqueuer.RunDelayPump(ctx, delayPumpInterval)
	if !noSweep {
		go components.Scheduler.RunPeriodic(ctx, cfg.SweepInterval)
	}

	log.Info("Worker started",
		zap.String("topic", cfg.KafkaTopicTasks),
		zap.String("group_id", cfg.KafkaGroupID),
		zap.Int("max_attempts", retry.RunnerCeiling(cfg.TaskMaxAttempts)),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)

	if err := consumer.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "consumer stopped", err)
	}
	log.Info("Worker stopped")
	return nil
}
