package interfaces

import (
	"context"

	"github.com/geoportal/geopard/rag/types"
)

// SearchOptions control a single query against the search index.
type SearchOptions struct {
	// Vector is the query embedding. Nil requests a lexical-only search.
	Vector []float32

	// Filter restricts results to one data type (equality filter). Empty
	// means no filter.
	Filter string

	// Top is the number of raw hits to request.
	Top int

	// Semantic requests L2 reranking and extractive captions where the
	// index supports them.
	Semantic bool
}

// SearchIndex is the hybrid (vector + lexical) search collaborator.
type SearchIndex interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]types.Candidate, error)
}

// Engine is a search index that also owns document storage. The hosted index
// and the local engines both implement it so the indexer can target either.
type Engine interface {
	SearchIndex
	Index(ctx context.Context, docs []types.Document) error
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// Embedder turns a text into a vector of fixed dimensionality. The
// dimensionality is a deployment parameter of the embedding model, never
// assumed by callers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer is the chat completion collaborator.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error)

	// Model returns the model identifier reported back to API callers.
	Model() string
}
