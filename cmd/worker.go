package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queue workers and the recurring scrape scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		_, shutdown, err := startWorkers(ctx, env)
		if err != nil {
			return err
		}

		zap.L().Info("worker running", zap.Int("workers", cfg.Queue.Workers))
		<-ctx.Done()
		zap.L().Info("shutting down worker")
		shutdown()
		return nil
	},
}

// startWorkers syncs recurring schedules, then starts the worker pool and
// the scheduler. The returned func stops both, scheduler first.
func startWorkers(ctx context.Context, env *appEnv) (*queue.Scheduler, func(), error) {
	sched := queue.NewScheduler(env.Queue)
	if _, err := env.Orchestrator.SyncSchedules(ctx, sched); err != nil {
		return nil, nil, err
	}
	if err := env.Queue.Start(ctx); err != nil {
		return nil, nil, err
	}
	sched.Start(ctx)

	return sched, func() {
		sched.Stop()
		env.Queue.Stop()
	}, nil
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
