package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/geoportal/geopard/rag/types"
	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
)

const listSeparator = "|"

// ChromemEngine is a local hybrid engine: chromem-go for vector similarity
// plus a bleve index for lexical scoring. It exists for development and
// tests where the hosted index is not reachable; it offers no L2 reranker,
// so the semantic score it reports is a weighted blend of vector similarity
// and the normalized bleve score.
type ChromemEngine struct {
	collectionName string
	collection     *chromem.Collection
	db             *chromem.DB
	embedder       interfaces.Embedder
	bleveIndex     bleve.Index
	bleveIndexPath string
	bm25Weight     float64
	vectorWeight   float64
	bleveAnalyzer  string
}

func NewChromemEngine(collection, path string, embedder interfaces.Embedder) (*ChromemEngine, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, err
	}

	bm25Weight := 0.5
	vectorWeight := 0.5
	if w := os.Getenv("HYBRID_SEARCH_BM25_WEIGHT"); w != "" {
		if parsed, err := strconv.ParseFloat(w, 64); err == nil {
			bm25Weight = parsed
		}
	}
	if w := os.Getenv("HYBRID_SEARCH_VECTOR_WEIGHT"); w != "" {
		if parsed, err := strconv.ParseFloat(w, 64); err == nil {
			vectorWeight = parsed
		}
	}

	// The catalog is German-language.
	bleveAnalyzer := "de"
	if a := os.Getenv("BLEVE_ANALYZER"); a != "" {
		bleveAnalyzer = a
	}

	e := &ChromemEngine{
		collectionName: collection,
		db:             db,
		embedder:       embedder,
		bm25Weight:     bm25Weight,
		vectorWeight:   vectorWeight,
		bleveAnalyzer:  bleveAnalyzer,
	}

	c, err := db.GetOrCreateCollection(collection, nil, e.embeddingFunc())
	if err != nil {
		return nil, err
	}
	e.collection = c

	e.bleveIndexPath = filepath.Join(path, "bleve", collection)
	bleveIndex, err := bleve.Open(e.bleveIndexPath)
	if err != nil {
		bleveIndex, err = bleve.New(e.bleveIndexPath, e.bleveMapping())
		if err != nil {
			xlog.Warn("Failed to create bleve index, continuing vector-only", "error", err)
			e.bleveIndex = nil
			return e, nil
		}
	}
	e.bleveIndex = bleveIndex

	return e, nil
}

func (e *ChromemEngine) bleveMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = e.bleveAnalyzer

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("purpose", textFieldMapping)
	docMapping.AddFieldMappingsAt("abstract", textFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)
	indexMapping.DefaultAnalyzer = e.bleveAnalyzer
	return indexMapping
}

func (e *ChromemEngine) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.embedder.Embed(ctx, text)
	}
}

func documentMetadata(d types.Document) map[string]string {
	return map[string]string{
		"metauid":      d.MetaUID,
		"title":        d.Title,
		"data_type":    d.DataType,
		"chunk_type":   d.ChunkType,
		"keywords":     strings.Join(d.Keywords, listSeparator),
		"purpose":      d.Purpose,
		"abstract":     d.Abstract,
		"feature_type": d.FeatureType,
		"service_type": d.ServiceType,
		"constraints":  strings.Join(d.Constraints, listSeparator),
		"openly_url":   d.OpenlyURL,
		"webapp_url":   d.WebappURL,
	}
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, listSeparator)
}

func documentFromMetadata(id, content string, meta map[string]string) types.Document {
	return types.Document{
		ID:          id,
		MetaUID:     meta["metauid"],
		Title:       meta["title"],
		DataType:    meta["data_type"],
		ChunkType:   meta["chunk_type"],
		Keywords:    splitList(meta["keywords"]),
		Purpose:     meta["purpose"],
		Abstract:    meta["abstract"],
		FeatureType: meta["feature_type"],
		ServiceType: meta["service_type"],
		Constraints: splitList(meta["constraints"]),
		OpenlyURL:   meta["openly_url"],
		WebappURL:   meta["webapp_url"],
		Content:     content,
	}
}

// Index stores documents in both the vector collection and the bleve index.
// Documents that already carry a vector skip the embedding call.
func (e *ChromemEngine) Index(ctx context.Context, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromemDocs := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  documentMetadata(d),
			Embedding: d.Vector,
		})
	}

	if err := e.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return err
	}

	if e.bleveIndex == nil {
		return nil
	}
	for _, d := range docs {
		bleveDoc := map[string]any{
			"content":  d.Content,
			"title":    d.Title,
			"purpose":  d.Purpose,
			"abstract": d.Abstract,
		}
		if err := e.bleveIndex.Index(d.ID, bleveDoc); err != nil {
			xlog.Warn("Failed to index document in bleve", "id", d.ID, "error", err)
		}
	}
	return nil
}

func (e *ChromemEngine) Count(ctx context.Context) (int, error) {
	return e.collection.Count(), nil
}

func (e *ChromemEngine) Reset(ctx context.Context) error {
	if err := e.db.DeleteCollection(e.collectionName); err != nil {
		return fmt.Errorf("error deleting collection: %w", err)
	}
	collection, err := e.db.GetOrCreateCollection(e.collectionName, nil, e.embeddingFunc())
	if err != nil {
		return fmt.Errorf("error creating collection: %w", err)
	}
	e.collection = collection

	if e.bleveIndex != nil {
		if err := e.bleveIndex.Close(); err != nil {
			xlog.Warn("Failed to close bleve index", "error", err)
		}
		if err := os.RemoveAll(e.bleveIndexPath); err != nil {
			xlog.Warn("Failed to remove bleve index directory", "error", err)
		}
		bleveIndex, err := bleve.New(e.bleveIndexPath, e.bleveMapping())
		if err != nil {
			xlog.Warn("Failed to recreate bleve index", "error", err)
			e.bleveIndex = nil
		} else {
			e.bleveIndex = bleveIndex
		}
	}

	return nil
}

// Search combines vector similarity and bleve lexical scores. With no query
// vector the search is bleve-only; with no bleve index it is vector-only.
func (e *ChromemEngine) Search(ctx context.Context, query string, opts interfaces.SearchOptions) ([]types.Candidate, error) {
	byID := map[string]*types.Candidate{}
	order := []string{}

	if len(opts.Vector) > 0 {
		var where map[string]string
		if opts.Filter != "" {
			where = map[string]string{"data_type": opts.Filter}
		}

		n := opts.Top
		if count := e.collection.Count(); n > count {
			n = count
		}
		if n > 0 {
			results, err := e.collection.QueryEmbedding(ctx, opts.Vector, n, where, nil)
			if err != nil {
				return nil, err
			}
			for _, r := range results {
				c := &types.Candidate{
					Document: documentFromMetadata(r.ID, r.Content, r.Metadata),
				}
				if opts.Semantic {
					score := e.vectorWeight * float64(r.Similarity)
					c.RerankerScore = &score
				}
				byID[r.ID] = c
				order = append(order, r.ID)
			}
		}
	}

	if e.bleveIndex != nil {
		searchRequest := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
		searchRequest.Size = opts.Top
		result, err := e.bleveIndex.Search(searchRequest)
		if err != nil {
			xlog.Warn("Bleve search failed, continuing vector-only", "error", err)
		} else if len(result.Hits) > 0 {
			maxScore := result.Hits[0].Score
			for _, hit := range result.Hits {
				normalized := 0.0
				if maxScore > 0 {
					normalized = hit.Score / maxScore
				}

				if c, ok := byID[hit.ID]; ok {
					c.Score = normalized
					if opts.Semantic && c.RerankerScore != nil {
						combined := *c.RerankerScore + e.bm25Weight*normalized
						c.RerankerScore = &combined
					}
					continue
				}

				res, err := e.collection.GetByID(ctx, hit.ID)
				if err != nil {
					continue
				}
				doc := documentFromMetadata(res.ID, res.Content, res.Metadata)
				if opts.Filter != "" && doc.DataType != opts.Filter {
					continue
				}
				byID[hit.ID] = &types.Candidate{Document: doc, Score: normalized}
				order = append(order, hit.ID)
			}
		}
	}

	candidates := make([]types.Candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, *byID[id])
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Relevance() > candidates[j].Relevance()
	})
	if len(candidates) > opts.Top {
		candidates = candidates[:opts.Top]
	}

	return candidates, nil
}
