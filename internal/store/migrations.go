package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: primary record table",
		SQL: `
CREATE TABLE memories (
    id             TEXT PRIMARY KEY,
    content        TEXT NOT NULL,
    category       TEXT NOT NULL CHECK (category IN ('episodic', 'semantic', 'procedural', 'decision', 'preference')),
    importance     REAL NOT NULL DEFAULT 0.5 CHECK (importance >= 0.0 AND importance <= 1.0),
    tags           TEXT NOT NULL DEFAULT '[]',

    -- Access bookkeeping
    access_count   INTEGER NOT NULL DEFAULT 0,
    last_accessed  INTEGER,

    -- Soft delete
    archived       INTEGER NOT NULL DEFAULT 0,
    archive_reason TEXT,

    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX idx_memories_category ON memories(category);
CREATE INDEX idx_memories_archived ON memories(archived);
CREATE INDEX idx_memories_created  ON memories(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "memories_fts: keyword index over active records",
		SQL: `
CREATE VIRTUAL TABLE memories_fts USING fts5(
    content,
    tags,
    content='memories',
    content_rowid='rowid'
);

-- Only active rows enter the index. Archiving drops the row from the
-- index without touching the base table.
CREATE TRIGGER memories_fts_ai AFTER INSERT ON memories WHEN new.archived = 0 BEGIN
    INSERT INTO memories_fts(rowid, content, tags) VALUES (new.rowid, new.content, new.tags);
END;

CREATE TRIGGER memories_fts_au AFTER UPDATE ON memories WHEN old.archived = 0 AND new.archived = 0 BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content, tags) VALUES ('delete', old.rowid, old.content, old.tags);
    INSERT INTO memories_fts(rowid, content, tags) VALUES (new.rowid, new.content, new.tags);
END;

CREATE TRIGGER memories_fts_archive AFTER UPDATE ON memories WHEN old.archived = 0 AND new.archived = 1 BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content, tags) VALUES ('delete', old.rowid, old.content, old.tags);
END;

CREATE TRIGGER memories_fts_restore AFTER UPDATE ON memories WHEN old.archived = 1 AND new.archived = 0 BEGIN
    INSERT INTO memories_fts(rowid, content, tags) VALUES (new.rowid, new.content, new.tags);
END;

CREATE TRIGGER memories_fts_ad AFTER DELETE ON memories WHEN old.archived = 0 BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content, tags) VALUES ('delete', old.rowid, old.content, old.tags);
END;
`,
	},
	{
		Version:     3,
		Description: "memory_vectors: embedding vectors for semantic search",
		SQL: `
CREATE TABLE memory_vectors (
    memory_id  TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     4,
		Description: "merge_audit: append-only record of consolidation merges",
		SQL: `
CREATE TABLE merge_audit (
    id             TEXT PRIMARY KEY,
    survivor_id    TEXT NOT NULL,
    source_ids     TEXT NOT NULL,
    merged_content TEXT NOT NULL,
    reason         TEXT,
    created_at     INTEGER NOT NULL
);

CREATE INDEX idx_audit_survivor ON merge_audit(survivor_id);
CREATE INDEX idx_audit_created  ON merge_audit(created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
