package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mnemo-sh/mnemo/internal/store"
)

func mustStore(t *testing.T, e *Engine, content, category string, importance float64) *store.Record {
	t.Helper()
	rec, err := e.Store(context.Background(), content, category, importance)
	if err != nil {
		t.Fatalf("Store(%q): %v", content, err)
	}
	return rec
}

func TestSearchRanksRelevantFirst(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	passport := mustStore(t, e, "Passport is in the blue drawer of the desk", "semantic", 0.8)
	mustStore(t, e, "Dentist appointment next tuesday morning", "episodic", 0.5)
	mustStore(t, e, "Prefers tea over coffee in the morning", "preference", 0.5)

	results, err := e.Search(ctx, "where is my passport", SearchOpts{Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Record.ID != passport.ID {
		t.Errorf("top result = %q, want passport record", results[0].Record.Content)
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("composite score %f out of [0,1] for %q", r.Score, r.Record.Content)
		}
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e := testEngine(t)
	mustStore(t, e, "hello world", "semantic", 0.5)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := e.Search(context.Background(), q, SearchOpts{})
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Search(%q): err = %v, want ErrEmptyQuery", q, err)
		}
	}
}

func TestSearchEmptyStore(t *testing.T) {
	e := testEngine(t)

	results, err := e.Search(context.Background(), "anything at all", SearchOpts{})
	if err != nil {
		t.Fatalf("Search on empty store: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestSearchExcludesArchived(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	rec := mustStore(t, e, "Passport is in the blue drawer", "semantic", 0.8)
	if _, err := e.Archive([]string{rec.ID}, "stale"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	results, err := e.Search(ctx, "passport drawer", SearchOpts{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0 after archive", len(results))
	}
}

func TestSearchCategoryFilter(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	mustStore(t, e, "passport renewal decided for spring", "decision", 0.7)
	sem := mustStore(t, e, "passport is in the drawer", "semantic", 0.7)

	results, err := e.Search(ctx, "passport", SearchOpts{Category: "semantic"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Record.ID != sem.ID {
		t.Errorf("result = %s, want semantic record", results[0].Record.ID)
	}
}

func TestSearchTagFilter(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	tagged, err := e.Store(ctx, "passport is in the blue drawer", "semantic", 0.5, "documents", "travel")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, err := e.Store(ctx, "passport photo booth is at the mall", "semantic", 0.5, "errands"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	mustStore(t, e, "passport renewal takes ten weeks", "semantic", 0.5)

	// Any-match: one requested tag present is enough
	results, err := e.Search(ctx, "passport", SearchOpts{Tags: []string{"travel", "finance"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Record.ID != tagged.ID {
		t.Errorf("result = %s, want the travel-tagged record", results[0].Record.ID)
	}

	results, err = e.Search(ctx, "passport", SearchOpts{Tags: []string{"groceries"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0 for an unused tag", len(results))
	}

	// No tags requested: all three match
	results, err = e.Search(ctx, "passport", SearchOpts{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("results = %d, want 3 without a tag filter", len(results))
	}
}

func TestSearchFusesBothPaths(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	// Found by both paths: shares tokens with the query
	both := mustStore(t, e, "passport kept in the blue drawer", "semantic", 0.5)
	// Semantically adjacent but without the query's keywords
	mustStore(t, e, "travel documents live in the desk", "semantic", 0.5)

	results, err := e.Search(ctx, "passport drawer", SearchOpts{Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Record.ID != both.ID {
		t.Errorf("record found by both paths should rank first, got %q", results[0].Record.Content)
	}
	if results[0].Vector == 0 || results[0].Keyword == 0 {
		t.Errorf("top result should have both path scores, got vector=%f keyword=%f",
			results[0].Vector, results[0].Keyword)
	}
}

func TestSearchRecalledRecordOutranksStale(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	created := time.Now().AddDate(0, -6, 0).UnixMilli()

	// Two records with identical content, stored six months ago
	stale := &store.Record{Content: "wifi password is on the router label", Category: "semantic", Importance: 0.5, CreatedAt: created}
	recalled := &store.Record{Content: "wifi password is on the router label", Category: "semantic", Importance: 0.5, CreatedAt: created}
	vec, _ := e.Embedder.Embed(ctx, stale.Content)
	if err := e.DB.PutRecord(stale, vec, e.Embedder.Model()); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	if err := e.DB.PutRecord(recalled, vec, e.Embedder.Model()); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	// One of them gets recalled regularly
	for i := 0; i < 5; i++ {
		if err := e.DB.TouchRecord(recalled.ID); err != nil {
			t.Fatalf("TouchRecord: %v", err)
		}
	}

	results, err := e.Search(ctx, "wifi password", SearchOpts{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Record.ID != recalled.ID {
		t.Error("frequently recalled record should outrank its untouched twin")
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores should differ: %f vs %f", results[0].Score, results[1].Score)
	}
}

func TestSearchTieBreaks(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	// Identical content and age: importance decides
	low := &store.Record{Content: "backup runs nightly at two", Category: "procedural", Importance: 0.2, CreatedAt: now}
	high := &store.Record{Content: "backup runs nightly at two", Category: "procedural", Importance: 0.9, CreatedAt: now}
	vec, _ := e.Embedder.Embed(ctx, low.Content)
	e.DB.PutRecord(low, vec, e.Embedder.Model())
	e.DB.PutRecord(high, vec, e.Embedder.Model())

	results, err := e.Search(ctx, "backup nightly", SearchOpts{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Record.ID != high.ID {
		t.Error("higher importance should win on otherwise equal records")
	}
}

func TestSearchKeywordOnlyDegradation(t *testing.T) {
	e := brokenEngine(t)
	ctx := context.Background()

	if _, err := e.Store(ctx, "passport is in the blue drawer", "semantic", 0.8); err != nil {
		t.Fatalf("Store: %v", err)
	}

	results, err := e.Search(ctx, "passport", SearchOpts{})
	if err != nil {
		t.Fatalf("Search should degrade to keyword-only: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Vector != 0 {
		t.Errorf("vector score = %f, want 0 in degraded mode", results[0].Vector)
	}
	if results[0].Keyword == 0 {
		t.Error("keyword score should carry the ranking in degraded mode")
	}
}

func TestSearchRequiredModelFails(t *testing.T) {
	e := brokenEngine(t)
	e.Params.EmbeddingRequired = true

	_, err := e.Search(context.Background(), "passport", SearchOpts{})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestSearchTouchesHits(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	rec := mustStore(t, e, "passport is in the blue drawer", "semantic", 0.8)

	results, err := e.Search(ctx, "passport", SearchOpts{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Returned records are pre-touch snapshots
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Record.AccessCount != 0 {
		t.Errorf("snapshot access_count = %d, want 0", results[0].Record.AccessCount)
	}

	found, _ := e.DB.GetRecord(rec.ID)
	if found.AccessCount != 1 {
		t.Errorf("access_count = %d, want 1 after retrieval", found.AccessCount)
	}
	if found.LastAccessed == nil {
		t.Error("expected last_accessed after retrieval")
	}
}

func TestNormalizeBounds(t *testing.T) {
	scores := map[string]float64{"a": -3.0, "b": 0.2, "c": 5.5}
	norm := normalizeHigherBetter(scores)
	if norm["a"] != 0 || norm["c"] != 1 {
		t.Errorf("minmax endpoints: a=%f c=%f, want 0 and 1", norm["a"], norm["c"])
	}
	if norm["b"] < 0 || norm["b"] > 1 {
		t.Errorf("norm[b] = %f, out of [0,1]", norm["b"])
	}

	// Lower-better inverts: the best (lowest) rank maps to 1
	ranks := map[string]float64{"a": -2.5, "b": -0.5}
	inv := normalizeLowerBetter(ranks)
	if inv["a"] != 1 || inv["b"] != 0 {
		t.Errorf("inverted: a=%f b=%f, want 1 and 0", inv["a"], inv["b"])
	}

	// Degenerate range scores 1.0
	single := normalizeLowerBetter(map[string]float64{"only": -1.2})
	if single["only"] != 1 {
		t.Errorf("single candidate = %f, want 1.0", single["only"])
	}
}
