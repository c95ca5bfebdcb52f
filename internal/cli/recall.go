package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-sh/mnemo/internal/engine"
)

var (
	recallLimit    int
	recallCategory string
	recallTags     []string
	recallVerbose  bool
)

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Search memories",
	Long:  "Search memories with fused vector and keyword relevance, scaled by decay.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecall,
}

func init() {
	recallCmd.Flags().IntVarP(&recallLimit, "limit", "n", 10, "Maximum number of results")
	recallCmd.Flags().StringVarP(&recallCategory, "category", "c", "", "Filter by category")
	recallCmd.Flags().StringSliceVarP(&recallTags, "tag", "t", nil, "Keep results carrying any of these tags (repeatable)")
	recallCmd.Flags().BoolVar(&recallVerbose, "verbose", false, "Show per-path scores")
}

func runRecall(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := e.Search(ctx, query, engine.SearchOpts{
		Limit:    recallLimit,
		Category: recallCategory,
		Tags:     recallTags,
	})
	if err != nil {
		return fmt.Errorf("recall: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, r.Score, r.Record.ID, r.Record.Category)
		fmt.Printf("   %s\n", r.Record.Content)
		if len(r.Record.Tags) > 0 {
			fmt.Printf("   tags: %s\n", strings.Join(r.Record.Tags, ", "))
		}
		if recallVerbose {
			fmt.Printf("   vector=%.3f keyword=%.3f importance=%.2f accesses=%d\n",
				r.Vector, r.Keyword, r.Record.Importance, r.Record.AccessCount)
		}
		fmt.Println()
	}

	return nil
}
