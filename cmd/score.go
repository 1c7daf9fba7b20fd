package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dealpulse/ingest/internal/scorer"
)

var (
	scoreLimit  int
	scoreFormat string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute deal quality scores",
	Long: `Scores deals 0-100 from four weighted components: value proposition,
authenticity, urgency and social proof. Scoring reads the catalog and never
writes to it.

Examples:
  # Score one deal
  score one 2f6c0a4e-...

  # Top 20 deals as a table
  score top --limit 20`,
}

var scoreOneCmd = &cobra.Command{
	Use:   "one <deal-id>",
	Short: "Score a single deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context(), "score")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := scorer.New(st, cfg.Quality).CalculateScore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var scoreTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Rank the best current deals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := scorer.ValidateConfig(cfg.Quality); err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), "score")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ranked, err := scorer.New(st, cfg.Quality).TopQualityDeals(cmd.Context(), scoreLimit)
		if err != nil {
			return err
		}
		if scoreFormat == "json" {
			return printJSON(cmd.OutOrStdout(), ranked)
		}
		return printRanked(cmd, ranked)
	},
}

func printRanked(cmd *cobra.Command, ranked []scorer.RankedDeal) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tPRICE\tDISCOUNT\tMERCHANT\tTITLE")
	for i, r := range ranked {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d%%\t%s\t%s\n",
			i+1, r.Score.TotalScore, r.Deal.Price, r.Deal.Discount(), r.Deal.Merchant, truncate(r.Deal.Title, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	scoreTopCmd.Flags().IntVar(&scoreLimit, "limit", 10, "number of deals to return")
	scoreTopCmd.Flags().StringVar(&scoreFormat, "format", "table", "output format: table or json")
	scoreCmd.AddCommand(scoreOneCmd, scoreTopCmd)
	rootCmd.AddCommand(scoreCmd)
}
