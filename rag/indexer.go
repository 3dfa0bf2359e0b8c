package rag

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/geoportal/geopard/rag/sources"
	"github.com/geoportal/geopard/rag/types"
	"github.com/mudler/xlog"
)

const (
	// maxEmbedChars truncates very long chunks before embedding; the
	// embedding model caps input tokens.
	maxEmbedChars = 8000

	maxEmbedRetries = 5
	retryDelayStep  = 10 * time.Second

	// abstractChunkThreshold: records with a long abstract get a second
	// chunk so abstract-heavy queries can match it directly.
	abstractChunkThreshold = 300
)

// CatalogRecord is one entry of the geocatalog export.
type CatalogRecord struct {
	MetaUID     string   `json:"metauid"`
	Title       string   `json:"title"`
	DataType    string   `json:"data_type"`
	Keywords    []string `json:"keywords"`
	Purpose     string   `json:"purpose"`
	Abstract    string   `json:"abstract"`
	FeatureType string   `json:"feature_type"`
	ServiceType string   `json:"service_type"`
	Constraints []string `json:"constraints"`
	OpenlyURL   string   `json:"openly_url"`
	WebappURL   string   `json:"webapp_url"`

	// Content is the raw record body: attribute tables, service endpoint
	// URLs, contact blocks. Kept verbatim so WMS/WFS endpoints survive
	// into answers.
	Content string `json:"content"`
}

// Indexer turns catalog records into index documents and feeds them to an
// engine. Embedding calls are retried on rate limiting: at most five
// attempts with a linearly growing delay, then a terminal error.
type Indexer struct {
	engine   interfaces.Engine
	embedder interfaces.Embedder

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewIndexer(engine interfaces.Engine, embedder interfaces.Embedder) *Indexer {
	return &Indexer{engine: engine, embedder: embedder, sleep: sleepContext}
}

// sleepContext waits for the delay or for cancellation, whichever comes
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Documents builds the chunks for one record: always a main chunk, plus an
// abstract chunk when the record carries a substantial abstract. Both share
// the record's MetaUID. HTML markup in purpose/abstract is stripped.
func (ix *Indexer) Documents(rec CatalogRecord) []types.Document {
	purpose := strings.TrimSpace(sources.StripHTML(rec.Purpose))
	abstract := strings.TrimSpace(sources.StripHTML(rec.Abstract))

	base := types.Document{
		MetaUID:     rec.MetaUID,
		Title:       rec.Title,
		DataType:    rec.DataType,
		Keywords:    rec.Keywords,
		Purpose:     purpose,
		Abstract:    abstract,
		FeatureType: rec.FeatureType,
		ServiceType: rec.ServiceType,
		Constraints: rec.Constraints,
		OpenlyURL:   rec.OpenlyURL,
		WebappURL:   rec.WebappURL,
	}

	main := base
	main.ID = rec.MetaUID + "-main"
	main.ChunkType = types.ChunkMain
	main.Content = strings.TrimSpace(strings.Join([]string{
		rec.Title, purpose, strings.Join(rec.Keywords, ", "), rec.Content,
	}, "\n"))

	docs := []types.Document{main}

	if len(abstract) >= abstractChunkThreshold {
		ab := base
		ab.ID = rec.MetaUID + "-abstract"
		ab.ChunkType = types.ChunkAbstract
		ab.Content = rec.Title + "\n" + abstract
		docs = append(docs, ab)
	}

	return docs
}

// IndexRecords embeds and stores all chunks of the given records, returning
// the number of documents written.
func (ix *Indexer) IndexRecords(ctx context.Context, records []CatalogRecord) (int, error) {
	indexed := 0

	for _, rec := range records {
		if rec.MetaUID == "" {
			return indexed, fmt.Errorf("catalog record %q has no metauid", rec.Title)
		}

		docs := ix.Documents(rec)
		for i := range docs {
			vector, err := ix.embedWithRetry(ctx, docs[i].Content)
			if err != nil {
				return indexed, fmt.Errorf("embedding %s: %w", docs[i].ID, err)
			}
			docs[i].Vector = vector
		}

		if err := ix.engine.Index(ctx, docs); err != nil {
			return indexed, fmt.Errorf("indexing %s: %w", rec.MetaUID, err)
		}
		indexed += len(docs)
		xlog.Debug("Indexed catalog record", "metauid", rec.MetaUID, "chunks", len(docs))
	}

	return indexed, nil
}

// IndexSitemap crawls a catalog sitemap, turns every page into a catalog
// record and indexes it. The page URL slug doubles as the metauid; pages
// without a usable slug are skipped.
func (ix *Indexer) IndexSitemap(ctx context.Context, sitemapURL string) (int, error) {
	pages, err := sources.GetCatalogSitemap(sitemapURL)
	if err != nil {
		return 0, fmt.Errorf("reading sitemap %s: %w", sitemapURL, err)
	}

	records := make([]CatalogRecord, 0, len(pages))
	for _, page := range pages {
		rec, ok := recordFromPage(page)
		if !ok {
			xlog.Warn("Skipping catalog page without identifier", "url", page.URL)
			continue
		}
		records = append(records, rec)
	}

	return ix.IndexRecords(ctx, records)
}

func recordFromPage(page sources.CatalogPage) (CatalogRecord, bool) {
	parsed, err := url.Parse(page.URL)
	if err != nil {
		return CatalogRecord{}, false
	}
	slug := path.Base(strings.TrimSuffix(parsed.Path, "/"))
	if slug == "" || slug == "." || slug == "/" {
		return CatalogRecord{}, false
	}

	title := slug
	for _, line := range strings.Split(page.Content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			title = line
			break
		}
	}

	return CatalogRecord{
		MetaUID:   slug,
		Title:     title,
		DataType:  types.DataTypeDataset,
		OpenlyURL: page.URL,
		Content:   page.Content,
	}, true
}

func (ix *Indexer) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}

	var lastErr error
	for attempt := 0; attempt < maxEmbedRetries; attempt++ {
		vector, err := ix.embedder.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err

		if !strings.Contains(err.Error(), "429") {
			return nil, err
		}
		if attempt == maxEmbedRetries-1 {
			break
		}

		delay := time.Duration(attempt+1) * retryDelayStep
		xlog.Warn("Embedding rate limited, backing off", "attempt", attempt+1, "delay", delay)
		if err := ix.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", maxEmbedRetries, lastErr)
}
