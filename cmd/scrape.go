package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/model"
)

var (
	scrapeEnqueue bool
	scrapeUserID  string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run or enqueue scrape jobs",
	Long: `Runs scrape jobs in-process with the queue's retry policy, or pushes them
onto the shared broker with --enqueue for a worker to pick up.

Examples:
  # Scrape Amazon's deal listings now
  scrape merchant amazon

  # Scrape every active merchant, one after another
  scrape all

  # Ingest a single product page
  scrape url https://www.flipkart.com/.../p/itm123 --user-id 7d1f...

  # Hand the fan-out to the workers
  scrape all --enqueue`,
}

var scrapeMerchantCmd = &cobra.Command{
	Use:   "merchant <slug>",
	Short: "Scrape one merchant's deal listings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrapeJob(cmd, model.JobScrapeMerchant, model.JobPayload{Merchant: args[0]})
	},
}

var scrapeAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Scrape every active merchant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scrapeEnqueue {
			return runScrapeJob(cmd, model.JobScrapeAllMerchants, model.JobPayload{})
		}
		return runScrapeAllInline(cmd)
	},
}

var scrapeURLCmd = &cobra.Command{
	Use:   "url <product-url>",
	Short: "Scrape and ingest a single product page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScrapeJob(cmd, model.JobScrapeProductURL, model.JobPayload{URL: args[0], UserID: scrapeUserID})
	},
}

func init() {
	scrapeCmd.PersistentFlags().BoolVar(&scrapeEnqueue, "enqueue", false, "push the job to the broker instead of running it")
	scrapeURLCmd.Flags().StringVar(&scrapeUserID, "user-id", "", "submitting user (default: automation user)")
	scrapeCmd.AddCommand(scrapeMerchantCmd, scrapeAllCmd, scrapeURLCmd)
	rootCmd.AddCommand(scrapeCmd)
}

func runScrapeJob(cmd *cobra.Command, t model.JobType, payload model.JobPayload) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if scrapeEnqueue && cfg.Queue.Broker != "redis" {
		return eris.New("--enqueue requires queue.broker=redis")
	}

	env, err := initEnv(ctx, "scrape")
	if err != nil {
		return err
	}
	defer env.Close()

	if scrapeEnqueue {
		id, err := env.Queue.Enqueue(ctx, t, payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s job %s\n", t, id)
		return nil
	}

	job, err := env.Queue.Run(ctx, t, payload)
	if perr := printJSON(cmd.OutOrStdout(), job); perr != nil {
		return perr
	}
	return err
}

// runScrapeAllInline scrapes each scrapable merchant in turn. A failed
// merchant is reported and the rest still run.
func runScrapeAllInline(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx, "scrape")
	if err != nil {
		return err
	}
	defer env.Close()

	merchants, err := env.Store.ListMerchants(ctx)
	if err != nil {
		return err
	}

	var jobs []*model.Job
	failed := 0
	for _, m := range merchants {
		if !m.Scrapable() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		job, err := env.Queue.Run(ctx, model.JobScrapeMerchant, model.JobPayload{Merchant: m.Slug})
		if err != nil {
			failed++
			zap.L().Error("scrape merchant failed", zap.String("merchant", m.Slug), zap.Error(err))
		}
		jobs = append(jobs, job)
	}

	if err := printJSON(cmd.OutOrStdout(), jobs); err != nil {
		return err
	}
	return scrapeAllErr(ctx, failed, len(jobs))
}

func scrapeAllErr(ctx context.Context, failed, total int) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "scrape all interrupted")
	}
	if failed > 0 {
		return eris.Errorf("%d of %d merchant scrapes failed", failed, total)
	}
	return nil
}
