package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mnemo-sh/mnemo/internal/store"
)

// SearchResult is one ranked hit. Vector and Keyword are the per-path
// normalized scores that went into the composite. Record is a snapshot
// from before the hit's access bookkeeping was bumped.
type SearchResult struct {
	Record  store.Record
	Score   float64
	Vector  float64
	Keyword float64
}

// SearchOpts controls search behavior.
type SearchOpts struct {
	Limit    int      // max results (default 10)
	Category string   // filter by category (empty = all)
	Tags     []string // keep records carrying any of these tags (empty = all)
}

func (o SearchOpts) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// Search runs the hybrid retrieval pipeline: vector and keyword paths in
// parallel, each min-max normalized to [0,1] over its candidates, fused by
// weight, then scaled by decay. Results are deduplicated by id; a record
// found by only one path scores 0 on the other. Ties break on importance,
// then on recency.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	var (
		wg      sync.WaitGroup
		vecSims map[string]float64
		vecErr  error
		kwHits  []store.KeywordHit
		kwErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vecSims, vecErr = e.vectorCandidates(ctx, query)
	}()
	go func() {
		defer wg.Done()
		kwHits, kwErr = e.DB.SearchKeyword(query, e.candidateLimit())
	}()
	wg.Wait()

	if kwErr != nil {
		return nil, fmt.Errorf("keyword path: %w", kwErr)
	}
	if vecErr != nil {
		if errors.Is(vecErr, ErrModelUnavailable) && !e.Params.EmbeddingRequired {
			log.Printf("vector path unavailable, ranking on keywords only: %v", vecErr)
			vecSims = nil
		} else {
			return nil, fmt.Errorf("vector path: %w", vecErr)
		}
	}

	vecNorm := normalizeHigherBetter(vecSims)

	kwRanks := make(map[string]float64, len(kwHits))
	for _, h := range kwHits {
		kwRanks[h.ID] = h.Rank
	}
	kwNorm := normalizeLowerBetter(kwRanks)

	// Union of both candidate sets, deduplicated by id
	ids := make([]string, 0, len(vecNorm)+len(kwNorm))
	seen := make(map[string]bool, len(vecNorm)+len(kwNorm))
	for id := range vecNorm {
		seen[id] = true
		ids = append(ids, id)
	}
	for id := range kwNorm {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	recs, err := e.DB.GetRecordsByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}

	now := time.Now()
	var results []SearchResult
	for _, rec := range recs {
		if rec.Archived {
			continue
		}
		if opts.Category != "" && rec.Category != opts.Category {
			continue
		}
		if len(opts.Tags) > 0 && !hasAnyTag(rec.Tags, opts.Tags) {
			continue
		}

		v := vecNorm[rec.ID]
		k := kwNorm[rec.ID]
		fused := e.Params.VectorWeight*v + e.Params.KeywordWeight*k
		score := fused * Decay(&rec, now, e.Params.Decay)

		results = append(results, SearchResult{
			Record:  rec,
			Score:   score,
			Vector:  v,
			Keyword: k,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Record.Importance != results[j].Record.Importance {
			return results[i].Record.Importance > results[j].Record.Importance
		}
		return results[i].Record.CreatedAt > results[j].Record.CreatedAt
	})

	limit := opts.limit()
	if len(results) > limit {
		results = results[:limit]
	}

	// Returned hits count as recalled: bump their decay clocks
	for _, r := range results {
		if err := e.DB.TouchRecord(r.Record.ID); err != nil {
			log.Printf("touch %s: %v", r.Record.ID, err)
		}
	}

	return results, nil
}

func hasAnyTag(recTags, want []string) bool {
	for _, w := range want {
		for _, t := range recTags {
			if t == w {
				return true
			}
		}
	}
	return false
}

func (e *Engine) candidateLimit() int {
	if e.Params.CandidateLimit <= 0 {
		return 50
	}
	return e.Params.CandidateLimit
}

// vectorCandidates embeds the query and scans active vectors, returning
// cosine similarity for the top candidates.
func (e *Engine) vectorCandidates(ctx context.Context, query string) (map[string]float64, error) {
	queryVec, err := e.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	vectors, err := e.DB.ActiveVectors()
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	type scored struct {
		id  string
		sim float64
	}
	candidates := make([]scored, 0, len(vectors))
	for _, v := range vectors {
		sim := CosineSimilarity(queryVec, v.Embedding)
		if sim <= 0 {
			continue
		}
		candidates = append(candidates, scored{v.MemoryID, sim})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if limit := e.candidateLimit(); len(candidates) > limit {
		candidates = candidates[:limit]
	}

	sims := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		sims[c.id] = c.sim
	}
	return sims, nil
}

// normalizeHigherBetter min-max scales scores where higher is better.
// A degenerate range maps every candidate to 1.0.
func normalizeHigherBetter(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := rangeOf(scores)
	out := make(map[string]float64, len(scores))
	for id, s := range scores {
		if hi == lo {
			out[id] = 1.0
		} else {
			out[id] = (s - lo) / (hi - lo)
		}
	}
	return out
}

// normalizeLowerBetter min-max scales scores where lower is better, such
// as raw bm25 ranks.
func normalizeLowerBetter(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := rangeOf(scores)
	out := make(map[string]float64, len(scores))
	for id, s := range scores {
		if hi == lo {
			out[id] = 1.0
		} else {
			out[id] = (hi - s) / (hi - lo)
		}
	}
	return out
}

func rangeOf(scores map[string]float64) (lo, hi float64) {
	first := true
	for _, s := range scores {
		if first {
			lo, hi = s, s
			first = false
			continue
		}
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}
