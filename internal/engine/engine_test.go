package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mnemo-sh/mnemo/internal/store"
)

// testEngine builds an engine over an in-memory store with the
// deterministic hash embedder.
func testEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, NewHashEmbedder(64), DefaultParams())
}

// brokenEngine builds an engine whose embedder never loads.
func brokenEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	lazy := NewLazyEmbedder(func() (Embedder, error) {
		return nil, fmt.Errorf("model not installed")
	})
	return New(db, lazy, DefaultParams())
}

func TestEngineStore(t *testing.T) {
	e := testEngine(t)

	rec, err := e.Store(context.Background(), "Passport is in the blue drawer", "semantic", 0.8, "documents")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}

	// Both indexes populated atomically
	v, err := e.DB.GetVector(rec.ID)
	if err != nil {
		t.Fatalf("GetVector: %v", err)
	}
	if v == nil {
		t.Fatal("expected vector row")
	}
	if v.Model != "hash-64" {
		t.Errorf("vector model = %q, want hash-64", v.Model)
	}

	hits, err := e.DB.SearchKeyword("passport", 10)
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("keyword hits = %d, want 1", len(hits))
	}
}

func TestEngineStoreValidation(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		content    string
		category   string
		importance float64
	}{
		{"empty content", "", "semantic", 0.5},
		{"whitespace content", "   \n\t", "semantic", 0.5},
		{"bad category", "hello", "musings", 0.5},
		{"importance too high", "hello", "semantic", 1.5},
		{"importance negative", "hello", "semantic", -0.1},
	}
	for _, tc := range cases {
		_, err := e.Store(ctx, tc.content, tc.category, tc.importance)
		if !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("%s: err = %v, want ErrInvalidRecord", tc.name, err)
		}
	}

	// Nothing should have been written
	recs, _ := e.DB.ListRecords("", true)
	if len(recs) != 0 {
		t.Errorf("records = %d, want 0 after rejected stores", len(recs))
	}
}

func TestEngineStoreDegradesWithoutModel(t *testing.T) {
	e := brokenEngine(t)

	rec, err := e.Store(context.Background(), "dentist on tuesday", "episodic", 0.5)
	if err != nil {
		t.Fatalf("Store should degrade to keyword-only: %v", err)
	}

	v, _ := e.DB.GetVector(rec.ID)
	if v != nil {
		t.Error("expected no vector row in degraded mode")
	}
	hits, _ := e.DB.SearchKeyword("dentist", 10)
	if len(hits) != 1 {
		t.Errorf("keyword hits = %d, want 1", len(hits))
	}
}

func TestEngineStoreRequiredModel(t *testing.T) {
	e := brokenEngine(t)
	e.Params.EmbeddingRequired = true

	_, err := e.Store(context.Background(), "dentist on tuesday", "episodic", 0.5)
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestEngineReinforce(t *testing.T) {
	e := testEngine(t)

	rec, err := e.Store(context.Background(), "gym on mondays", "preference", 0.6)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	updated, err := e.Reinforce(rec.ID)
	if err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if updated.AccessCount != 1 {
		t.Errorf("access_count = %d, want 1", updated.AccessCount)
	}
	if updated.LastAccessed == nil {
		t.Error("expected last_accessed to be set")
	}

	_, err = e.Reinforce("nonexistent")
	if !errors.Is(err, ErrUnknownRecord) {
		t.Errorf("err = %v, want ErrUnknownRecord", err)
	}
}

func TestEngineReembedMissing(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	// One record stored without a vector, one with a stale model
	noVec := &store.Record{Content: "no vector here", Category: "semantic", Importance: 0.5}
	if err := e.DB.PutRecord(noVec, nil, ""); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	stale := &store.Record{Content: "stale model", Category: "semantic", Importance: 0.5}
	if err := e.DB.PutRecord(stale, []float64{1, 2}, "tfidf"); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	current, err := e.Store(ctx, "already current", "semantic", 0.5)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	n, err := e.ReembedMissing(ctx)
	if err != nil {
		t.Fatalf("ReembedMissing: %v", err)
	}
	if n != 2 {
		t.Errorf("reembedded = %d, want 2", n)
	}

	for _, id := range []string{noVec.ID, stale.ID, current.ID} {
		v, _ := e.DB.GetVector(id)
		if v == nil {
			t.Errorf("record %s missing vector after reembed", id)
			continue
		}
		if v.Model != "hash-64" {
			t.Errorf("record %s model = %q, want hash-64", id, v.Model)
		}
	}

	// Second pass finds nothing to do
	n, err = e.ReembedMissing(ctx)
	if err != nil {
		t.Fatalf("second ReembedMissing: %v", err)
	}
	if n != 0 {
		t.Errorf("second pass reembedded = %d, want 0", n)
	}
}
