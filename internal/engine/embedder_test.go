package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	emb := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := emb.Embed(ctx, "passport in the blue drawer")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := emb.Embed(ctx, "passport in the blue drawer")

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	emb := NewHashEmbedder(384)
	texts := []string{
		"hello world",
		"a",
		"",
		"the quick brown fox jumps over the lazy dog",
	}
	for _, text := range texts {
		vec, err := emb.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
		if len(vec) != 384 {
			t.Fatalf("dims = %d, want 384", len(vec))
		}
		var norm float64
		for _, v := range vec {
			norm += v * v
		}
		if math.Abs(norm-1.0) > 1e-9 {
			t.Errorf("Embed(%q): norm² = %f, want 1.0", text, norm)
		}
	}
}

func TestHashEmbedderSimilarTextsCloser(t *testing.T) {
	emb := NewHashEmbedder(384)
	ctx := context.Background()

	passport1, _ := emb.Embed(ctx, "passport is in the blue drawer")
	passport2, _ := emb.Embed(ctx, "where did the passport go, maybe the drawer")
	dentist, _ := emb.Embed(ctx, "dentist appointment next tuesday morning")

	same := CosineSimilarity(passport1, passport2)
	diff := CosineSimilarity(passport1, dentist)
	if same <= diff {
		t.Errorf("related texts should score higher: same=%f diff=%f", same, diff)
	}
}

func TestHashEmbedderDefaultDims(t *testing.T) {
	emb := NewHashEmbedder(0)
	if emb.Dimensions() != 384 {
		t.Errorf("dims = %d, want 384", emb.Dimensions())
	}
	if emb.Model() != "hash-384" {
		t.Errorf("model = %q, want hash-384", emb.Model())
	}
}

func TestLazyEmbedderInitOnce(t *testing.T) {
	calls := 0
	lazy := NewLazyEmbedder(func() (Embedder, error) {
		calls++
		return NewHashEmbedder(16), nil
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := lazy.Embed(ctx, "hello"); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}
	if lazy.Model() != "hash-16" {
		t.Errorf("model = %q, want hash-16", lazy.Model())
	}
}

func TestLazyEmbedderFailure(t *testing.T) {
	calls := 0
	lazy := NewLazyEmbedder(func() (Embedder, error) {
		calls++
		return nil, fmt.Errorf("model file missing")
	})

	_, err := lazy.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}

	// Failure is cached, not retried
	_, err = lazy.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("second err = %v, want ErrModelUnavailable", err)
	}
	if calls != 1 {
		t.Errorf("factory called %d times, want 1", calls)
	}
	if lazy.Model() != "unavailable" {
		t.Errorf("model = %q, want unavailable", lazy.Model())
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float64{1, 0, 0}
	b := []float64{1, 0, 0}
	if got := CosineSimilarity(a, b); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("identical vectors = %f, want 1.0", got)
	}

	c := []float64{0, 1, 0}
	if got := CosineSimilarity(a, c); got != 0 {
		t.Errorf("orthogonal vectors = %f, want 0", got)
	}

	if got := CosineSimilarity(a, []float64{1, 0}); got != 0 {
		t.Errorf("mismatched lengths = %f, want 0", got)
	}

	if got := CosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors = %f, want 0", got)
	}
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Where's my PASSPORT, in the drawer?")
	want := []string{"where", "my", "passport", "in", "the", "drawer"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}
