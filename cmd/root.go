package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealpulse/ingest/internal/config"
	"github.com/dealpulse/ingest/internal/metrics"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dealpulse",
	Short: "Deal ingestion and quality scoring",
	Long:  "Scrapes merchant deal listings with a headless browser, deduplicates them against the catalog, tracks price history and ranks deals by quality.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		metrics.Init()

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
