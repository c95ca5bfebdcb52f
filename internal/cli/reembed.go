package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Embed memories with missing or stale vectors",
	Long:  "Embed every active memory that has no vector or whose vector came from a different model. Embeddings are never recomputed implicitly; this is the maintenance path after switching models.",
	RunE:  runReembed,
}

func runReembed(cmd *cobra.Command, args []string) error {
	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	n, err := e.ReembedMissing(ctx)
	if err != nil {
		return fmt.Errorf("reembed (%d done): %w", n, err)
	}

	fmt.Printf("embedded %d memories with %s\n", n, e.Embedder.Model())
	return nil
}
