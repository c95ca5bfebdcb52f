package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorRecord holds the embedding for a memory record.
type VectorRecord struct {
	MemoryID   string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveVector stores or replaces the embedding for a record.
func (db *DB) SaveVector(memoryID string, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	return db.withRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin save vector: %w", err)
		}
		defer tx.Rollback()
		if err := saveVectorTx(tx, memoryID, embedding, model, now); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func saveVectorTx(tx *sql.Tx, memoryID string, embedding []float64, model string, now int64) error {
	// A record without a vector is a valid degraded state, but a
	// zero-length vector is malformed and must never reach the table.
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding for %s", ErrInvalidRecord, memoryID)
	}
	blob := encodeEmbedding(embedding)
	_, err := tx.Exec(`
		INSERT INTO memory_vectors (memory_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, memoryID, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save vector: %w", err)
	}
	return nil
}

// GetVector returns the embedding for a record, or nil if not found.
func (db *DB) GetVector(memoryID string) (*VectorRecord, error) {
	var v VectorRecord
	var blob []byte

	err := db.QueryRow(`
		SELECT memory_id, embedding, model, dimensions, created_at
		FROM memory_vectors WHERE memory_id = ?
	`, memoryID).Scan(&v.MemoryID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// ActiveVectors returns vectors for unarchived records only. Archived rows
// keep their vectors for recovery but never enter a similarity scan.
func (db *DB) ActiveVectors() ([]VectorRecord, error) {
	rows, err := db.Query(`
		SELECT v.memory_id, v.embedding, v.model, v.dimensions, v.created_at
		FROM memory_vectors v
		JOIN memories m ON m.id = v.memory_id
		WHERE m.archived = 0
	`)
	if err != nil {
		return nil, fmt.Errorf("active vectors: %w", err)
	}
	defer rows.Close()
	return scanVectors(rows)
}

func scanVectors(rows *sql.Rows) ([]VectorRecord, error) {
	var records []VectorRecord
	for rows.Next() {
		var v VectorRecord
		var blob []byte
		if err := rows.Scan(&v.MemoryID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records = append(records, v)
	}
	return records, rows.Err()
}

// MissingVectorIDs returns ids of active records that have no vector row or
// whose vector was produced by a different model.
func (db *DB) MissingVectorIDs(model string) ([]string, error) {
	rows, err := db.Query(`
		SELECT m.id FROM memories m
		LEFT JOIN memory_vectors v ON v.memory_id = m.id
		WHERE m.archived = 0 AND (v.memory_id IS NULL OR v.model != ?)
	`, model)
	if err != nil {
		return nil, fmt.Errorf("missing vector ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteVector removes the embedding for a record.
func (db *DB) DeleteVector(memoryID string) error {
	_, err := db.Exec("DELETE FROM memory_vectors WHERE memory_id = ?", memoryID)
	if err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}
