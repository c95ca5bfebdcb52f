package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	s, err := e.DB.GetStats()
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	fmt.Printf("active:   %d\n", s.Active)
	fmt.Printf("archived: %d\n", s.Archived)
	fmt.Printf("vectors:  %d\n", s.Vectors)
	fmt.Printf("merges:   %d\n", s.Audits)

	if len(s.ByCategory) > 0 {
		fmt.Println("\nby category:")
		cats := make([]string, 0, len(s.ByCategory))
		for c := range s.ByCategory {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			fmt.Printf("  %-11s %d\n", c, s.ByCategory[c])
		}
	}

	if info, err := os.Stat(e.DB.Path); err == nil {
		fmt.Printf("\ndb: %s (%d KB)\n", e.DB.Path, info.Size()/1024)
	}
	return nil
}
