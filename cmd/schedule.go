package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealpulse/ingest/internal/queue"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect recurring scrape schedules",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the schedules a worker would register",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		sched := queue.NewScheduler(env.Queue)
		if _, err := env.Orchestrator.SyncSchedules(cmd.Context(), sched); err != nil {
			return err
		}
		return printSchedules(cmd, sched.List())
	},
}

func printSchedules(cmd *cobra.Command, list []queue.Schedule) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSPEC\tJOB\tNEXT")
	for _, s := range list {
		next := "-"
		if !s.Next.IsZero() {
			next = s.Next.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Key, s.Spec, s.Type, next)
	}
	return w.Flush()
}

func init() {
	scheduleCmd.AddCommand(scheduleListCmd)
	rootCmd.AddCommand(scheduleCmd)
}
