package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

// OllamaEmbedder uses Ollama's embedding API.
type OllamaEmbedder struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

// NewOllamaEmbedder creates an embedder using Ollama's API.
func NewOllamaEmbedder(url, model string, dims int) *OllamaEmbedder {
	return &OllamaEmbedder{
		url:    url,
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *OllamaEmbedder) Model() string   { return "ollama:" + o.model }
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

// Embed sends text to Ollama's embed endpoint and returns the embedding vector.
// Connection and server failures wrap ErrModelUnavailable.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := map[string]any{
		"model": o.model,
		"input": text,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed api: %w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed status %d: %w", resp.StatusCode, ErrModelUnavailable)
	}

	var result struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}

	o.dims = len(result.Embeddings[0])
	return result.Embeddings[0], nil
}

// ProbeOllama checks if Ollama is reachable and the embedding model is available.
func ProbeOllama(url, model string) bool {
	client := &http.Client{Timeout: 3 * time.Second}
	reqBody, _ := json.Marshal(map[string]any{
		"model": model,
		"input": "test",
	})
	resp, err := client.Post(url+"/api/embed", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// HashEmbedder generates deterministic feature-hashed bag-of-words vectors.
// No network, no corpus fitting: the same text always maps to the same unit
// vector, so query and record vectors stay comparable across processes.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder with the given dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Model() string   { return fmt.Sprintf("hash-%d", h.dims) }
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed hashes each token into a bucket with a hash-derived sign and
// L2-normalizes the result. Empty or unparseable input yields a fixed
// unit vector rather than an error.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, h.dims)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		vec[0] = 1.0
		return vec, nil
	}

	for _, tok := range tokens {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.dims))
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1.0
		}
		vec[bucket] += sign
	}

	normalize(vec)
	return vec, nil
}

// LazyEmbedder defers construction of the underlying embedder until first
// use and caches the result for the life of the process. A factory failure
// is cached too and surfaces as ErrModelUnavailable on every call.
type LazyEmbedder struct {
	factory func() (Embedder, error)
	once    sync.Once
	emb     Embedder
	err     error
}

// NewLazyEmbedder wraps a factory in a one-time-initialization handle.
func NewLazyEmbedder(factory func() (Embedder, error)) *LazyEmbedder {
	return &LazyEmbedder{factory: factory}
}

func (l *LazyEmbedder) get() (Embedder, error) {
	l.once.Do(func() {
		l.emb, l.err = l.factory()
		if l.err != nil {
			l.err = fmt.Errorf("load embedder: %w: %v", ErrModelUnavailable, l.err)
		}
	})
	return l.emb, l.err
}

func (l *LazyEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	emb, err := l.get()
	if err != nil {
		return nil, err
	}
	return emb.Embed(ctx, text)
}

func (l *LazyEmbedder) Model() string {
	emb, err := l.get()
	if err != nil {
		return "unavailable"
	}
	return emb.Model()
}

func (l *LazyEmbedder) Dimensions() int {
	emb, err := l.get()
	if err != nil {
		return 0
	}
	return emb.Dimensions()
}

// tokenize splits text into lowercase tokens, stripping punctuation.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 1 { // skip single-char tokens
				tokens = append(tokens, current.String())
			}
			current.Reset()
		}
	}
	if current.Len() > 1 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// normalize performs in-place L2 normalization.
func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Works on unnormalized vectors; mismatched lengths score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
