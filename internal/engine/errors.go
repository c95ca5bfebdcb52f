package engine

import (
	"errors"

	"github.com/mnemo-sh/mnemo/internal/store"
)

var (
	// ErrModelUnavailable means the embedding model could not be loaded or
	// reached. Depending on configuration, callers degrade to keyword-only
	// behavior or abort.
	ErrModelUnavailable = errors.New("embedding model unavailable")

	// ErrEmptyQuery means a search query was empty or whitespace-only.
	ErrEmptyQuery = errors.New("empty query")

	// Re-exported from the store so callers have one taxonomy to check.
	// ErrInvalidRecord covers content, category, and importance validation
	// here as well as embedding validation inside the store.
	ErrInvalidRecord  = store.ErrInvalidRecord
	ErrUnknownRecord  = store.ErrUnknownRecord
	ErrLockContention = store.ErrLockContention
)
