package rag

import (
	"context"

	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/geoportal/geopard/rag/types"
	"github.com/mudler/xlog"
)

// OverfetchFactor controls how many raw hits are requested per topK result.
// The same logical record appears as several chunks and as several vintages
// (DTM 2024, 2018, 2012); overfetching keeps enough raw material alive
// through deduplication and recency ranking to fill topK.
const OverfetchFactor = 5

// Retriever issues hybrid queries against the search index and maps the raw
// hits into candidates with total (never nil) optional fields.
type Retriever struct {
	index interfaces.SearchIndex
	cache *EmbeddingCache
}

func NewRetriever(index interfaces.SearchIndex, cache *EmbeddingCache) *Retriever {
	return &Retriever{index: index, cache: cache}
}

// Retrieve runs one hybrid search. A missing query embedding degrades to
// lexical-only search; an unreachable or failing index yields an empty
// candidate set, never an error. Callers must treat empty as "no results".
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter string, semantic bool) []types.Candidate {
	var vector []float32
	if r.cache != nil {
		v, err := r.cache.GetOrCompute(ctx, query)
		if err != nil {
			xlog.Warn("No query embedding available, searching lexical-only", "error", err)
		} else {
			vector = v
		}
	}

	hits, err := r.index.Search(ctx, query, interfaces.SearchOptions{
		Vector:   vector,
		Filter:   filter,
		Top:      topK * OverfetchFactor,
		Semantic: semantic,
	})
	if err != nil {
		xlog.Error("Search failed", "query", query, "error", err)
		return []types.Candidate{}
	}

	candidates := make([]types.Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, normalizeCandidate(hit))
	}
	return candidates
}

// normalizeCandidate fills defaults so downstream logic stays total: missing
// optional fields become empty values, never nil.
func normalizeCandidate(c types.Candidate) types.Candidate {
	if c.ChunkType == "" {
		c.ChunkType = types.ChunkMain
	}
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	if c.Constraints == nil {
		c.Constraints = []string{}
	}
	return c
}
