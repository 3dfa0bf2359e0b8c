package rag

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/geoportal/geopard/rag/types"
)

// yearPattern matches four-digit years in the plausible dataset range
// [2000, 2029], e.g. "DOM 2024", "DTM 2018".
var yearPattern = regexp.MustCompile(`\b(20[0-2][0-9])\b`)

// ExtractYear returns the newest year mentioned in the title, or 0 when the
// title carries no year. Note this reads any year-shaped token as a dataset
// vintage; a title that merely discusses a year in prose ranks as if it were
// that vintage.
func ExtractYear(title string) int {
	matches := yearPattern.FindAllString(title, -1)
	year := 0
	for _, m := range matches {
		if y, err := strconv.Atoi(m); err == nil && y > year {
			year = y
		}
	}
	return year
}

// Rank orders deduplicated candidates by (year desc, relevance desc) and
// truncates to topK. Year is the primary key: among similarly relevant
// results the newest vintage of a dataset wins. The sort is stable, so
// candidates with identical keys keep their input order. When no candidate
// carries a year the ordering degrades to pure relevance.
func Rank(candidates []types.Candidate, topK int) []types.RankedResult {
	ranked := make([]types.RankedResult, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, types.RankedResult{
			Candidate: c,
			Year:      ExtractYear(c.Title),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Year != ranked[j].Year {
			return ranked[i].Year > ranked[j].Year
		}
		return ranked[i].Relevance() > ranked[j].Relevance()
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
