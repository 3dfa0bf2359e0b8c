package rag

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/geoportal/geopard/rag/types"
	"github.com/google/uuid"
	"github.com/mudler/xlog"
)

// NotFoundAnswer is returned when retrieval yields no candidates. The chat
// collaborator is not invoked in that case.
const NotFoundAnswer = "Ich konnte keine relevanten Datensätze zu Ihrer Frage finden."

// ErrInvalidTopK is the only error Query reports outward; everything else
// degrades to a well-formed answer record.
var ErrInvalidTopK = errors.New("top_k must be at least 1")

const (
	maxExpansions        = 2
	expansionTemperature = 0.7
	expansionMaxTokens   = 200
)

const expansionSystemPrompt = "Du bist ein Experte für Geodaten. Generiere 2 alternative Formulierungen der Frage, um bessere Suchergebnisse zu erzielen. Antworte nur mit den Fragen, getrennt durch Zeilenumbrüche."

// Pipeline is the top-level query orchestrator: optional query expansion,
// retrieval per variant, merged deduplication and recency ranking, answer
// composition. It is stateless across calls; each invocation is an
// independent run and the embedding cache is the only shared state.
type Pipeline struct {
	retriever *Retriever
	composer  *Composer
	llm       interfaces.Completer
}

func NewPipeline(index interfaces.SearchIndex, cache *EmbeddingCache, llm interfaces.Completer) *Pipeline {
	return &Pipeline{
		retriever: NewRetriever(index, cache),
		composer:  NewComposer(llm),
		llm:       llm,
	}
}

// ExpandQuery asks the model for up to two paraphrases of the question and
// returns them together with the original (original first). Best-effort: any
// failure falls back to the original-only list.
func (p *Pipeline) ExpandQuery(ctx context.Context, question string) []string {
	variations := []string{question}

	content, err := p.llm.Complete(ctx, expansionSystemPrompt,
		"Frage: "+question+"\n\nGeneriere 2 Varianten:",
		expansionTemperature, expansionMaxTokens)
	if err != nil {
		xlog.Warn("Query expansion failed, using original query only", "error", err)
		return variations
	}

	added := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") ||
			strings.HasPrefix(line, "1.") || strings.HasPrefix(line, "2.") {
			continue
		}
		variations = append(variations, line)
		added++
		if added == maxExpansions {
			break
		}
	}

	return variations
}

// Query runs the full pipeline for one question and always returns a
// well-formed answer record; the only failure surfaced to the caller is an
// invalid topK.
func (p *Pipeline) Query(ctx context.Context, question string, topK int, useExpansion bool) (types.AnswerRecord, error) {
	if topK < 1 {
		return types.AnswerRecord{}, ErrInvalidTopK
	}

	requestID := uuid.NewString()
	xlog.Info("Running query", "request", requestID, "top_k", topK, "expansion", useExpansion)

	variants := []string{question}
	if useExpansion {
		variants = p.ExpandQuery(ctx, question)
	}

	// Retrievals run sequentially; each variant is awaited before the next
	// starts.
	all := []types.Candidate{}
	for _, v := range variants {
		all = append(all, p.retriever.Retrieve(ctx, v, topK, "", true)...)
	}

	ranked := Rank(Deduplicate(all), topK)
	if len(ranked) == 0 {
		xlog.Info("No candidates found", "request", requestID)
		return types.AnswerRecord{
			Question:   question,
			Answer:     NotFoundAnswer,
			Confidence: 0,
			Sources:    []types.Source{},
			Model:      p.llm.Model(),
		}, nil
	}

	answer, confidence := p.composer.Compose(ctx, question, ranked)

	sources := make([]types.Source, 0, len(ranked))
	for _, r := range ranked {
		sources = append(sources, types.Source{
			Title:          r.Title,
			MetaUID:        r.MetaUID,
			DataType:       r.DataType,
			OpenlyURL:      r.OpenlyURL,
			WebappURL:      r.WebappURL,
			RelevanceScore: math.Round(r.Relevance()*100) / 100,
			Caption:        r.Caption,
		})
	}

	xlog.Info("Query answered", "request", requestID, "sources", len(sources), "confidence", confidence)

	return types.AnswerRecord{
		Question:   question,
		Answer:     answer,
		Confidence: confidence,
		Sources:    sources,
		Model:      p.llm.Model(),
	}, nil
}
