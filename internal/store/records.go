package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is a single memory: free text plus retrieval metadata.
// Archived records are retained but invisible to every search path.
type Record struct {
	ID            string
	Content       string
	Category      string // episodic, semantic, procedural, decision, preference
	Importance    float64
	Tags          []string
	AccessCount   int
	LastAccessed  *int64
	Archived      bool
	ArchiveReason string
	CreatedAt     int64
	UpdatedAt     int64
}

// ValidCategories is the closed set of record categories. The schema
// enforces the same set with a CHECK constraint.
var ValidCategories = map[string]bool{
	"episodic":   true,
	"semantic":   true,
	"procedural": true,
	"decision":   true,
	"preference": true,
}

// NewID returns a fresh record id: the first 12 hex chars of a UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// encodeTags renders tags as a sorted JSON array for stable storage and
// keyword indexing.
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	b, _ := json.Marshal(sorted)
	return string(b)
}

func decodeTags(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil
	}
	return tags
}

// PutRecord inserts a record and, when an embedding is provided, its vector
// row in a single transaction. The keyword index is maintained by triggers,
// so either both indexes see the record or neither does.
// A zero ID or CreatedAt is filled in; callers may pre-set them for imports.
func (db *DB) PutRecord(rec *Record, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	return db.withRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin put: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO memories (id, content, category, importance, tags,
				access_count, last_accessed, archived, archive_reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, NULL, 0, NULL, ?, ?)
		`, rec.ID, rec.Content, rec.Category, rec.Importance, encodeTags(rec.Tags),
			rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}

		if embedding != nil {
			if err := saveVectorTx(tx, rec.ID, embedding, model, now); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

const recordColumns = `id, content, category, importance, tags,
	access_count, last_accessed, archived, archive_reason, created_at, updated_at`

// GetRecord returns a record by id, or nil if not found.
func (db *DB) GetRecord(id string) (*Record, error) {
	row := db.QueryRow(`SELECT `+recordColumns+` FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetRecordsByIDs returns the records for the given ids, in no particular
// order. Missing ids are silently absent from the result.
func (db *DB) GetRecordsByIDs(ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT `+recordColumns+` FROM memories WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get records by ids: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecords returns active records, newest first, optionally filtered by
// category. Pass includeArchived to see archived rows too.
func (db *DB) ListRecords(category string, includeArchived bool) ([]Record, error) {
	var where []string
	var args []any
	if !includeArchived {
		where = append(where, "archived = 0")
	}
	if category != "" {
		where = append(where, "category = ?")
		args = append(args, category)
	}

	query := `SELECT ` + recordColumns + ` FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// TouchRecord bumps access bookkeeping: last_accessed = now, access_count++.
func (db *DB) TouchRecord(id string) error {
	now := time.Now().UnixMilli()
	return db.withRetry(func() error {
		_, err := db.Exec(`
			UPDATE memories SET last_accessed = ?, access_count = access_count + 1
			WHERE id = ?
		`, now, id)
		if err != nil {
			return fmt.Errorf("touch record: %w", err)
		}
		return nil
	})
}

// ArchiveRecords flips the archived flag on the given ids in one
// transaction, which also removes them from the keyword index via triggers.
// Already-archived ids are skipped. Any unknown id aborts the whole batch
// with ErrUnknownRecord. Returns the ids that were newly archived.
func (db *DB) ArchiveRecords(ids []string, reason string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var archived []string
	err := db.withRetry(func() error {
		archived = archived[:0]
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin archive: %w", err)
		}
		defer tx.Rollback()

		archived, err = archiveTx(tx, ids, reason)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

func archiveTx(tx *sql.Tx, ids []string, reason string) ([]string, error) {
	now := time.Now().UnixMilli()
	var archived []string
	for _, id := range ids {
		var isArchived int
		err := tx.QueryRow("SELECT archived FROM memories WHERE id = ?", id).Scan(&isArchived)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("archive %s: %w", id, ErrUnknownRecord)
		}
		if err != nil {
			return nil, fmt.Errorf("check record %s: %w", id, err)
		}
		if isArchived != 0 {
			continue
		}

		_, err = tx.Exec(`
			UPDATE memories SET archived = 1, archive_reason = ?, updated_at = ?
			WHERE id = ?
		`, reason, now, id)
		if err != nil {
			return nil, fmt.Errorf("archive record %s: %w", id, err)
		}
		archived = append(archived, id)
	}
	return archived, nil
}

// MergeParams describes a consolidation merge. Exactly one of SurvivorID or
// NewRecord designates the surviving record; sources are archived with
// reason "merged" and one audit row records the whole operation.
type MergeParams struct {
	SurvivorID    string  // existing record whose content is rewritten
	NewRecord     *Record // inserted as the survivor instead
	MergedContent string
	Embedding     []float64 // vector for the merged content; nil drops the stale vector
	Model         string
	SourceIDs     []string
	Reason        string
}

// MergeRecords performs a merge as a single transaction: rewrite (or insert)
// the survivor, archive the sources, append one merge_audit row. If every
// source is already archived the merge is a completed no-op and no audit
// row is written. Unknown ids abort the transaction with ErrUnknownRecord.
func (db *DB) MergeRecords(p MergeParams) (*MergeAudit, error) {
	var audit *MergeAudit
	err := db.withRetry(func() error {
		audit = nil
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin merge: %w", err)
		}
		defer tx.Rollback()

		now := time.Now().UnixMilli()

		// Sources first: if nothing is newly archived, this merge already
		// happened and re-running it must not duplicate the audit trail.
		archived, err := archiveTx(tx, p.SourceIDs, "merged")
		if err != nil {
			return err
		}
		if len(archived) == 0 {
			return tx.Commit()
		}

		survivorID := p.SurvivorID
		if p.NewRecord != nil {
			nr := p.NewRecord
			if nr.ID == "" {
				nr.ID = NewID()
			}
			nr.Content = p.MergedContent
			nr.CreatedAt = now
			nr.UpdatedAt = now
			_, err = tx.Exec(`
				INSERT INTO memories (id, content, category, importance, tags,
					access_count, last_accessed, archived, archive_reason, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, 0, NULL, 0, NULL, ?, ?)
			`, nr.ID, nr.Content, nr.Category, nr.Importance, encodeTags(nr.Tags), now, now)
			if err != nil {
				return fmt.Errorf("insert merged record: %w", err)
			}
			survivorID = nr.ID
		} else {
			var isArchived int
			err := tx.QueryRow("SELECT archived FROM memories WHERE id = ?", survivorID).Scan(&isArchived)
			if err == sql.ErrNoRows {
				return fmt.Errorf("survivor %s: %w", survivorID, ErrUnknownRecord)
			}
			if err != nil {
				return fmt.Errorf("check survivor %s: %w", survivorID, err)
			}

			_, err = tx.Exec(`
				UPDATE memories SET content = ?, updated_at = ? WHERE id = ?
			`, p.MergedContent, now, survivorID)
			if err != nil {
				return fmt.Errorf("rewrite survivor %s: %w", survivorID, err)
			}
		}

		if p.Embedding != nil {
			if err := saveVectorTx(tx, survivorID, p.Embedding, p.Model, now); err != nil {
				return err
			}
		} else if p.NewRecord == nil {
			// Content changed but no new vector: drop the stale one so the
			// record is picked up by the next reembed pass.
			if _, err := tx.Exec("DELETE FROM memory_vectors WHERE memory_id = ?", survivorID); err != nil {
				return fmt.Errorf("drop stale vector: %w", err)
			}
		}

		a := MergeAudit{
			ID:            NewID(),
			SurvivorID:    survivorID,
			SourceIDs:     archived,
			MergedContent: p.MergedContent,
			Reason:        p.Reason,
			CreatedAt:     now,
		}
		if err := insertAuditTx(tx, &a); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
		audit = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audit, nil
}

// Stats summarizes the store for the stats command.
type Stats struct {
	Active     int
	Archived   int
	ByCategory map[string]int
	Vectors    int
	Audits     int
}

// GetStats counts records, vectors, and audit entries.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{ByCategory: make(map[string]int)}

	err := db.QueryRow("SELECT COUNT(*) FROM memories WHERE archived = 0").Scan(&s.Active)
	if err != nil {
		return nil, fmt.Errorf("count active: %w", err)
	}
	err = db.QueryRow("SELECT COUNT(*) FROM memories WHERE archived = 1").Scan(&s.Archived)
	if err != nil {
		return nil, fmt.Errorf("count archived: %w", err)
	}

	rows, err := db.Query("SELECT category, COUNT(*) FROM memories WHERE archived = 0 GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		s.ByCategory[cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM memory_vectors").Scan(&s.Vectors); err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM merge_audit").Scan(&s.Audits); err != nil {
		return nil, fmt.Errorf("count audits: %w", err)
	}
	return s, nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var r Record
	var tags string
	var archived int
	var lastAccessed sql.NullInt64
	var archiveReason sql.NullString
	err := s.Scan(&r.ID, &r.Content, &r.Category, &r.Importance, &tags,
		&r.AccessCount, &lastAccessed, &archived, &archiveReason, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Tags = decodeTags(tags)
	r.Archived = archived != 0
	r.ArchiveReason = archiveReason.String
	if lastAccessed.Valid {
		r.LastAccessed = &lastAccessed.Int64
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, *r)
	}
	return recs, rows.Err()
}
