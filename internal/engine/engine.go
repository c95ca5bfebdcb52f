package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mnemo-sh/mnemo/internal/store"
)

// Params collects the tunables for retrieval and consolidation.
type Params struct {
	VectorWeight       float64
	KeywordWeight      float64
	CandidateLimit     int
	EmbeddingRequired  bool // fail instead of degrading when the model is down
	Decay              DecayParams
	ClusterThreshold   float64
	DuplicateThreshold float64
	MaxClusterSize     int
}

// DefaultParams returns the standard tuning.
func DefaultParams() Params {
	return Params{
		VectorWeight:       0.7,
		KeywordWeight:      0.3,
		CandidateLimit:     50,
		EmbeddingRequired:  false,
		Decay:              DefaultDecayParams(),
		ClusterThreshold:   0.80,
		DuplicateThreshold: 0.92,
		MaxClusterSize:     10,
	}
}

// Engine ties the record store to an embedding provider and drives storage,
// retrieval, and consolidation.
type Engine struct {
	DB       *store.DB
	Embedder Embedder
	Params   Params
}

// New creates an Engine.
func New(db *store.DB, embedder Embedder, params Params) *Engine {
	return &Engine{DB: db, Embedder: embedder, Params: params}
}

// Store validates and persists a new record along with its embedding.
// When the embedder is unavailable and not required, the record is stored
// without a vector and remains reachable via keyword search.
func (e *Engine) Store(ctx context.Context, content, category string, importance float64, tags ...string) (*store.Record, error) {
	if err := validateNewRecord(content, category, importance); err != nil {
		return nil, err
	}

	embedding, err := e.embedOrDegrade(ctx, content)
	if err != nil {
		return nil, err
	}

	rec := &store.Record{
		Content:    content,
		Category:   category,
		Importance: importance,
		Tags:       tags,
	}
	if err := e.DB.PutRecord(rec, embedding, e.Embedder.Model()); err != nil {
		return nil, fmt.Errorf("store record: %w", err)
	}
	return rec, nil
}

// Reinforce bumps a record's access bookkeeping, resetting its decay clock.
func (e *Engine) Reinforce(id string) (*store.Record, error) {
	rec, err := e.DB.GetRecord(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("reinforce %s: %w", id, ErrUnknownRecord)
	}
	if err := e.DB.TouchRecord(id); err != nil {
		return nil, err
	}
	return e.DB.GetRecord(id)
}

// ReembedMissing embeds every active record that has no vector or whose
// vector came from a different model. Embeddings are never recomputed
// implicitly; this is the one maintenance path that does it.
func (e *Engine) ReembedMissing(ctx context.Context) (int, error) {
	ids, err := e.DB.MissingVectorIDs(e.Embedder.Model())
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	recs, err := e.DB.GetRecordsByIDs(ids)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for i := range recs {
		vec, err := e.Embedder.Embed(ctx, recs[i].Content)
		if err != nil {
			return embedded, fmt.Errorf("embed %s: %w", recs[i].ID, err)
		}
		if err := e.DB.SaveVector(recs[i].ID, vec, e.Embedder.Model()); err != nil {
			return embedded, err
		}
		embedded++
	}
	return embedded, nil
}

// embedOrDegrade embeds text, or returns a nil vector when the model is
// unavailable and the configuration permits degraded operation.
func (e *Engine) embedOrDegrade(ctx context.Context, text string) ([]float64, error) {
	vec, err := e.Embedder.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if errors.Is(err, ErrModelUnavailable) && !e.Params.EmbeddingRequired {
		log.Printf("embedder unavailable, continuing keyword-only: %v", err)
		return nil, nil
	}
	return nil, err
}
