package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mnemo-sh/mnemo/internal/store"
)

// Cluster is a group of active records whose embeddings are mutually
// reachable through pairs above the similarity threshold. Similarity is
// the mean over the linking edges.
type Cluster struct {
	IDs        []string
	Similarity float64
}

// DuplicatePair flags two records as near-duplicates.
type DuplicatePair struct {
	A, B       string
	Similarity float64
}

// FindClusters groups active records by embedding similarity: all pairs at
// or above the threshold form edges, connected components form clusters.
// Pass threshold <= 0 for the configured default. Records without vectors
// never cluster.
func (e *Engine) FindClusters(ctx context.Context, threshold float64) ([]Cluster, error) {
	if threshold <= 0 {
		threshold = e.Params.ClusterThreshold
	}

	vectors, err := e.DB.ActiveVectors()
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	if len(vectors) < 2 {
		return nil, nil
	}

	// All-pairs similarity graph over the active set
	adj := make(map[int][]int)
	simEdge := make(map[[2]int]float64)
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			sim := CosineSimilarity(vectors[i].Embedding, vectors[j].Embedding)
			if sim < threshold {
				continue
			}
			adj[i] = append(adj[i], j)
			adj[j] = append(adj[j], i)
			simEdge[[2]int{i, j}] = sim
		}
	}

	// BFS connected components
	visited := make([]bool, len(vectors))
	var clusters []Cluster
	for start := range vectors {
		if visited[start] || len(adj[start]) == 0 {
			continue
		}
		var component []int
		queue := []int{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, next := range adj[cur] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		if len(component) < 2 {
			continue
		}

		sort.Ints(component)
		if max := e.Params.MaxClusterSize; max > 0 && len(component) > max {
			component = component[:max]
		}

		var simSum float64
		edges := 0
		for a := 0; a < len(component); a++ {
			for b := a + 1; b < len(component); b++ {
				if s, ok := simEdge[[2]int{component[a], component[b]}]; ok {
					simSum += s
					edges++
				}
			}
		}

		c := Cluster{IDs: make([]string, len(component))}
		for i, idx := range component {
			c.IDs[i] = vectors[idx].MemoryID
		}
		if edges > 0 {
			c.Similarity = simSum / float64(edges)
		}
		clusters = append(clusters, c)
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Similarity > clusters[j].Similarity })
	return clusters, nil
}

// FindDuplicates returns pairs of active records above the near-duplicate
// threshold, most similar first. Pass threshold <= 0 for the default.
func (e *Engine) FindDuplicates(ctx context.Context, threshold float64) ([]DuplicatePair, error) {
	if threshold <= 0 {
		threshold = e.Params.DuplicateThreshold
	}

	vectors, err := e.DB.ActiveVectors()
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	var pairs []DuplicatePair
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			sim := CosineSimilarity(vectors[i].Embedding, vectors[j].Embedding)
			if sim >= threshold {
				pairs = append(pairs, DuplicatePair{
					A:          vectors[i].MemoryID,
					B:          vectors[j].MemoryID,
					Similarity: sim,
				})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs, nil
}

// MergeOpts controls how a merge designates its survivor.
type MergeOpts struct {
	NewRecord bool   // insert a fresh record instead of rewriting a survivor
	Reason    string // recorded on the audit entry
}

// Merge consolidates the given records into one. The merged content always
// comes from the caller; the engine never writes prose of its own. By
// default the survivor is the most important record (ties go to the newest)
// and its content is rewritten; with NewRecord a fresh record is inserted
// and every input is archived. The whole merge is one transaction, and
// re-running a completed merge is a no-op.
func (e *Engine) Merge(ctx context.Context, ids []string, mergedContent string, opts MergeOpts) (*store.MergeAudit, error) {
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: merge needs at least two records", ErrInvalidRecord)
	}
	if strings.TrimSpace(mergedContent) == "" {
		return nil, fmt.Errorf("%w: empty merged content", ErrInvalidRecord)
	}

	recs, err := e.DB.GetRecordsByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	var active []store.Record
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("merge %s: %w", id, ErrUnknownRecord)
		}
		if !r.Archived {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		// Everything already merged away
		return nil, nil
	}

	survivor := pickSurvivor(active)

	embedding, err := e.embedOrDegrade(ctx, mergedContent)
	if err != nil {
		return nil, err
	}

	reason := opts.Reason
	if reason == "" {
		reason = "consolidation"
	}

	p := store.MergeParams{
		MergedContent: mergedContent,
		Embedding:     embedding,
		Model:         e.Embedder.Model(),
		Reason:        reason,
	}
	if opts.NewRecord {
		p.NewRecord = &store.Record{
			Category:   survivor.Category,
			Importance: maxImportance(active),
			Tags:       unionTags(active),
		}
		p.SourceIDs = ids
	} else {
		p.SurvivorID = survivor.ID
		for _, id := range ids {
			if id != survivor.ID {
				p.SourceIDs = append(p.SourceIDs, id)
			}
		}
	}

	return e.DB.MergeRecords(p)
}

// Archive soft-deletes records without a merge: the flag flips, both
// indexes drop them, and no audit entry is written.
func (e *Engine) Archive(ids []string, reason string) ([]string, error) {
	return e.DB.ArchiveRecords(ids, reason)
}

// pickSurvivor chooses the record that keeps living: highest importance,
// ties broken by the most recent created_at.
func pickSurvivor(recs []store.Record) store.Record {
	best := recs[0]
	for _, r := range recs[1:] {
		if r.Importance > best.Importance ||
			(r.Importance == best.Importance && r.CreatedAt > best.CreatedAt) {
			best = r
		}
	}
	return best
}

func maxImportance(recs []store.Record) float64 {
	m := 0.0
	for _, r := range recs {
		if r.Importance > m {
			m = r.Importance
		}
	}
	return m
}

func unionTags(recs []store.Record) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, r := range recs {
		for _, t := range r.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}
