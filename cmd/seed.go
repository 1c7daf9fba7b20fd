package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dealpulse/ingest/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load merchant configuration from a YAML file",
	Long: `Upserts merchants from a YAML file (default scrape.merchants_file):

  merchants:
    - slug: amazon
      name: Amazon
      active: true
      scraping_enabled: true
      scraping_interval_hours: 6

Sync metadata (last_synced_at, total_scraped) is preserved on existing rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := seedFile
		if path == "" {
			path = cfg.Scrape.MerchantsFile
		}
		merchants, err := store.LoadMerchants(path)
		if err != nil {
			return err
		}

		st, err := openStore(cmd.Context(), "migrate")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := store.Seed(cmd.Context(), st, merchants); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d merchants from %s\n", len(merchants), path)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "merchant YAML file (default from config)")
	rootCmd.AddCommand(seedCmd)
}
