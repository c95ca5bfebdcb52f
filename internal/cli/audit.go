package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-sh/mnemo/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit [id]",
	Short: "Show the merge audit trail",
	Long:  "List merge audit entries, newest first. With an id, show only merges where that memory was the survivor or a source.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	e, closeDB, err := openEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	var audits []store.MergeAudit
	if len(args) == 1 {
		audits, err = e.DB.AuditsForRecord(args[0])
	} else {
		audits, err = e.DB.ListAudits()
	}
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if len(audits) == 0 {
		fmt.Println("No merge audit entries.")
		return nil
	}

	for _, a := range audits {
		when := time.UnixMilli(a.CreatedAt).Format(time.RFC3339)
		fmt.Printf("%s  %s\n", a.ID, when)
		fmt.Printf("  survivor: %s\n", a.SurvivorID)
		fmt.Printf("  sources:  %s\n", strings.Join(a.SourceIDs, ", "))
		if a.Reason != "" {
			fmt.Printf("  reason:   %s\n", a.Reason)
		}
		fmt.Printf("  content:  %s\n\n", truncate(a.MergedContent, 120))
	}
	return nil
}
