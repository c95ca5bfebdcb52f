package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reinforceCmd = &cobra.Command{
	Use:   "reinforce [id]",
	Short: "Reset a memory's decay clock",
	Long:  "Bump a memory's access count and last-accessed time, the same effect a retrieval has.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReinforce,
}

func runReinforce(cmd *cobra.Command, args []string) error {
	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	rec, err := e.Reinforce(args[0])
	if err != nil {
		return fmt.Errorf("reinforce: %w", err)
	}

	fmt.Printf("reinforced %s (accesses: %d)\n", rec.ID, rec.AccessCount)
	return nil
}
