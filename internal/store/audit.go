package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// MergeAudit is one immutable entry in the merge trail. Entries are only
// ever inserted, inside the merge transaction itself.
type MergeAudit struct {
	ID            string
	SurvivorID    string
	SourceIDs     []string
	MergedContent string
	Reason        string
	CreatedAt     int64
}

func insertAuditTx(tx *sql.Tx, a *MergeAudit) error {
	sources, _ := json.Marshal(a.SourceIDs)
	_, err := tx.Exec(`
		INSERT INTO merge_audit (id, survivor_id, source_ids, merged_content, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.SurvivorID, string(sources), a.MergedContent, a.Reason, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// ListAudits returns all merge audit entries, newest first.
func (db *DB) ListAudits() ([]MergeAudit, error) {
	rows, err := db.Query(`
		SELECT id, survivor_id, source_ids, merged_content, reason, created_at
		FROM merge_audit ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()
	return scanAudits(rows)
}

// AuditsForRecord returns entries where the record is the survivor or one
// of the archived sources. This is the recovery path for tracing where an
// archived record's content went.
func (db *DB) AuditsForRecord(id string) ([]MergeAudit, error) {
	rows, err := db.Query(`
		SELECT id, survivor_id, source_ids, merged_content, reason, created_at
		FROM merge_audit
		WHERE survivor_id = ? OR source_ids LIKE '%' || ? || '%'
		ORDER BY created_at DESC
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("audits for record: %w", err)
	}
	defer rows.Close()
	return scanAudits(rows)
}

func scanAudits(rows *sql.Rows) ([]MergeAudit, error) {
	var audits []MergeAudit
	for rows.Next() {
		var a MergeAudit
		var sources string
		var reason sql.NullString
		if err := rows.Scan(&a.ID, &a.SurvivorID, &sources, &a.MergedContent, &reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		a.Reason = reason.String
		if err := json.Unmarshal([]byte(sources), &a.SourceIDs); err != nil {
			return nil, fmt.Errorf("decode audit sources: %w", err)
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}
