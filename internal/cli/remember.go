package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	rememberCategory   string
	rememberImportance float64
	rememberTags       []string
)

var rememberCmd = &cobra.Command{
	Use:   "remember [content]",
	Short: "Store a new memory",
	Long:  "Store a memory record. Content is indexed for keyword search and embedded for semantic search in one atomic write.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemember,
}

func init() {
	rememberCmd.Flags().StringVarP(&rememberCategory, "category", "c", "semantic", "Category: episodic, semantic, procedural, decision, preference")
	rememberCmd.Flags().Float64VarP(&rememberImportance, "importance", "i", 0.5, "Importance in [0,1]")
	rememberCmd.Flags().StringSliceVarP(&rememberTags, "tag", "t", nil, "Tags (repeatable)")
}

func runRemember(cmd *cobra.Command, args []string) error {
	content := strings.Join(args, " ")

	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := e.Store(ctx, content, rememberCategory, rememberImportance, rememberTags...)
	if err != nil {
		return fmt.Errorf("remember: %w", err)
	}

	fmt.Printf("stored %s [%s] importance=%.2f\n", rec.ID, rec.Category, rec.Importance)
	return nil
}
