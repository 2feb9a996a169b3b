package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/history"
	"github.com/ppiankov/veracity/internal/model"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [query]",
	Short: "Query past verdicts",
	Long: `History lists recently checked claims, or searches them by
full text when a query is given.

Example:
  veracity history
  veracity history "nuclear power"
  veracity history stats`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

// historyStatsCmd represents the history stats command
var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show claim store statistics",
	RunE:  runHistoryStats,
}

// historyReviewCmd represents the history mark-reviewed command
var historyReviewCmd = &cobra.Command{
	Use:   "mark-reviewed <claim>",
	Short: "Flag a stored verdict as human reviewed",
	Long: `Mark-reviewed sets the human-reviewed flag on a stored verdict,
for checks that were audited after the fact.

Example:
  veracity history mark-reviewed "The Rhine flows through six countries"`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryMarkReviewed,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyReviewCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max records to list")
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.History.Path == "" {
		return nil, fmt.Errorf("history is disabled (empty history.path)")
	}
	return history.Open(cfg.History)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	var records []*model.HistoricalRecord
	if len(args) == 1 {
		records, err = store.FindSimilar(ctx, args[0])
	} else {
		records, err = store.Recent(ctx, historyLimit)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECKED\tVERDICT\tCONF\tREVIEWED\tCLAIM")
	for _, rec := range records {
		reviewed := ""
		if rec.HumanReviewed {
			reviewed = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\n",
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.Verdict.Category, rec.Verdict.Confidence, reviewed, rec.Claim)
	}
	return w.Flush()
}

func runHistoryMarkReviewed(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	normalized := model.NormalizeClaim(args[0])
	if err := store.SetHumanReviewed(context.Background(), normalized); err != nil {
		return err
	}
	fmt.Println("Marked as human reviewed.")
	return nil
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.GetStats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Total checks:    %d\n", stats.Total)
	fmt.Printf("Human reviewed:  %d\n", stats.HumanReviewed)
	fmt.Printf("By category:\n")
	for _, cat := range []model.VerdictCategory{
		model.VerdictTrue, model.VerdictPartiallyTrue, model.VerdictMisleading,
		model.VerdictFalse, model.VerdictUnverifiable,
	} {
		if n, ok := stats.ByCategory[string(cat)]; ok {
			fmt.Printf("  %-15s %d\n", cat, n)
		}
	}
	return nil
}
