package store

import (
	"fmt"
	"strings"
)

// KeywordHit is one row from the BM25 keyword index. Rank is the raw
// bm25() value: lower (more negative) means more relevant.
type KeywordHit struct {
	ID   string
	Rank float64
}

// SearchKeyword runs a BM25 query against the keyword index. Archived
// records are never in the index, so no extra filtering is needed here;
// the join exists to map rowids back to record ids.
func (db *DB) SearchKeyword(query string, limit int) ([]KeywordHit, error) {
	match := fts5SafeQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT m.id, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		if err := rows.Scan(&h.ID, &h.Rank); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// fts5SafeQuery quotes each word of a natural-language query so FTS5
// operators and punctuation in user input cannot break the MATCH syntax.
// Words are OR-ed: any term may match.
func fts5SafeQuery(query string) string {
	var terms []string
	for _, word := range strings.Fields(query) {
		var b strings.Builder
		for _, r := range word {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 127 {
				b.WriteRune(r)
			}
		}
		if b.Len() == 0 {
			continue
		}
		terms = append(terms, `"`+b.String()+`"`)
	}
	return strings.Join(terms, " OR ")
}
