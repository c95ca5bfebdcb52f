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
	clusterThreshold   float64
	duplicateThreshold float64
	mergeContent       string
	mergeNewRecord     bool
	mergeReason        string
	archiveReason      string
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Cluster, merge, and archive similar memories",
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List clusters of similar memories",
	RunE:  runClusters,
}

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List near-duplicate memory pairs",
	RunE:  runDuplicates,
}

var mergeCmd = &cobra.Command{
	Use:   "merge [id...]",
	Short: "Merge memories into one survivor",
	Long:  "Merge two or more memories. The merged content must be supplied with --content; the sources are archived and one audit entry records the merge.",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runMerge,
}

var archiveCmd = &cobra.Command{
	Use:   "archive [id...]",
	Short: "Archive memories without merging",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runArchive,
}

func init() {
	clustersCmd.Flags().Float64Var(&clusterThreshold, "threshold", 0, "Similarity threshold (0 = configured default)")
	duplicatesCmd.Flags().Float64Var(&duplicateThreshold, "threshold", 0, "Similarity threshold (0 = configured default)")
	mergeCmd.Flags().StringVar(&mergeContent, "content", "", "Merged content for the survivor (required)")
	mergeCmd.MarkFlagRequired("content")
	mergeCmd.Flags().BoolVar(&mergeNewRecord, "new-record", false, "Create a fresh record instead of rewriting the survivor")
	mergeCmd.Flags().StringVar(&mergeReason, "reason", "", "Reason recorded on the audit entry")
	archiveCmd.Flags().StringVar(&archiveReason, "reason", "manual", "Archive reason")

	consolidateCmd.AddCommand(clustersCmd)
	consolidateCmd.AddCommand(duplicatesCmd)
	consolidateCmd.AddCommand(mergeCmd)
	consolidateCmd.AddCommand(archiveCmd)
}

func runClusters(cmd *cobra.Command, args []string) error {
	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	clusters, err := e.FindClusters(ctx, clusterThreshold)
	if err != nil {
		return fmt.Errorf("find clusters: %w", err)
	}
	if len(clusters) == 0 {
		fmt.Println("No clusters found.")
		return nil
	}

	for i, c := range clusters {
		fmt.Printf("cluster %d (similarity %.3f):\n", i+1, c.Similarity)
		recs, err := e.DB.GetRecordsByIDs(c.IDs)
		if err != nil {
			return err
		}
		for _, r := range recs {
			fmt.Printf("  %s [%s] %s\n", r.ID, r.Category, truncate(r.Content, 80))
		}
		fmt.Println()
	}
	return nil
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pairs, err := e.FindDuplicates(ctx, duplicateThreshold)
	if err != nil {
		return fmt.Errorf("find duplicates: %w", err)
	}
	if len(pairs) == 0 {
		fmt.Println("No duplicates found.")
		return nil
	}

	for _, p := range pairs {
		fmt.Printf("%.3f  %s <-> %s\n", p.Similarity, p.A, p.B)
	}
	return nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	audit, err := e.Merge(ctx, args, mergeContent, engine.MergeOpts{
		NewRecord: mergeNewRecord,
		Reason:    mergeReason,
	})
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	if audit == nil {
		fmt.Println("Nothing to merge: all sources already archived.")
		return nil
	}

	fmt.Printf("merged %s <- %s (audit %s)\n", audit.SurvivorID, strings.Join(audit.SourceIDs, ", "), audit.ID)
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	archived, err := e.Archive(args, archiveReason)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	fmt.Printf("archived %d of %d\n", len(archived), len(args))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
