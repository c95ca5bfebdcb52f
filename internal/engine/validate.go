package engine

import (
	"fmt"
	"strings"

	"github.com/mnemo-sh/mnemo/internal/store"
)

// maxContentChars bounds record content; anything longer is a paste
// accident, not a memory.
const maxContentChars = 40000

// validateNewRecord checks content, category, and importance before a
// record touches the store. All failures wrap ErrInvalidRecord.
func validateNewRecord(content, category string, importance float64) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidRecord)
	}
	if len(content) > maxContentChars {
		return fmt.Errorf("%w: content too long (%d chars, max %d)", ErrInvalidRecord, len(content), maxContentChars)
	}
	if !store.ValidCategories[category] {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRecord, category)
	}
	if importance < 0 || importance > 1 {
		return fmt.Errorf("%w: importance %.2f out of range [0,1]", ErrInvalidRecord, importance)
	}
	return nil
}
