package rag

import "github.com/geoportal/geopard/rag/types"

// Deduplicate collapses candidates sharing a MetaUID to the single highest
// scoring chunk. A later chunk replaces the retained one only when its
// relevance is strictly greater, so ties keep the first seen and the result
// is deterministic for a given input order. The returned slice preserves the
// order in which each MetaUID was first encountered.
func Deduplicate(candidates []types.Candidate) []types.Candidate {
	best := map[string]int{}
	deduped := make([]types.Candidate, 0, len(candidates))

	for _, c := range candidates {
		idx, seen := best[c.MetaUID]
		if !seen {
			best[c.MetaUID] = len(deduped)
			deduped = append(deduped, c)
			continue
		}
		if c.Relevance() > deduped[idx].Relevance() {
			deduped[idx] = c
		}
	}

	return deduped
}
