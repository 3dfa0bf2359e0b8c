package rag_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/geoportal/geopard/rag"
	"github.com/geoportal/geopard/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Indexer", func() {
	var (
		engine   *fakeEngine
		embedder *fakeEmbedder
		indexer  *Indexer
		slept    []time.Duration
	)

	BeforeEach(func() {
		engine = &fakeEngine{}
		embedder = &fakeEmbedder{vector: []float32{0.1}}
		indexer = NewIndexer(engine, embedder)
		slept = nil
		SetIndexerSleep(indexer, func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		})
	})

	Describe("Documents", func() {
		It("builds a main chunk carrying title, purpose, keywords and content", func() {
			docs := indexer.Documents(CatalogRecord{
				MetaUID:  "LU-1",
				Title:    "Gewässernetz",
				Purpose:  "Übersicht der Fliessgewässer",
				Keywords: []string{"Hydrologie", "Gewässer"},
				Content:  "Attributtabelle",
			})

			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal("LU-1-main"))
			Expect(docs[0].ChunkType).To(Equal(types.ChunkMain))
			Expect(docs[0].Content).To(ContainSubstring("Gewässernetz"))
			Expect(docs[0].Content).To(ContainSubstring("Übersicht der Fliessgewässer"))
			Expect(docs[0].Content).To(ContainSubstring("Hydrologie, Gewässer"))
			Expect(docs[0].Content).To(ContainSubstring("Attributtabelle"))
		})

		It("adds an abstract chunk for records with a long abstract", func() {
			docs := indexer.Documents(CatalogRecord{
				MetaUID:  "LU-1",
				Title:    "Gewässernetz",
				Abstract: strings.Repeat("Beschreibung ", 30),
			})

			Expect(docs).To(HaveLen(2))
			Expect(docs[1].ID).To(Equal("LU-1-abstract"))
			Expect(docs[1].ChunkType).To(Equal(types.ChunkAbstract))
			Expect(docs[1].MetaUID).To(Equal("LU-1"))
			Expect(docs[1].Content).To(HavePrefix("Gewässernetz\n"))
		})

		It("skips the abstract chunk for short abstracts", func() {
			docs := indexer.Documents(CatalogRecord{
				MetaUID:  "LU-1",
				Title:    "Gewässernetz",
				Abstract: "Kurz.",
			})

			Expect(docs).To(HaveLen(1))
		})

		It("strips HTML from purpose and abstract", func() {
			docs := indexer.Documents(CatalogRecord{
				MetaUID: "LU-1",
				Title:   "Gewässernetz",
				Purpose: "<p>Übersicht der <b>Fliessgewässer</b></p>",
			})

			Expect(docs[0].Purpose).ToNot(ContainSubstring("<"))
			Expect(docs[0].Purpose).To(ContainSubstring("Fliessgewässer"))
		})
	})

	Describe("IndexRecords", func() {
		It("embeds every chunk and writes it to the engine", func() {
			indexed, err := indexer.IndexRecords(context.Background(), []CatalogRecord{
				{MetaUID: "LU-1", Title: "Gewässernetz"},
				{MetaUID: "LU-2", Title: "Orthofoto", Abstract: strings.Repeat("Beschreibung ", 30)},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(indexed).To(Equal(3))
			Expect(engine.indexed).To(HaveLen(2))
			for _, batch := range engine.indexed {
				for _, doc := range batch {
					Expect(doc.Vector).To(Equal([]float32{0.1}))
				}
			}
		})

		It("rejects records without a metauid", func() {
			_, err := indexer.IndexRecords(context.Background(), []CatalogRecord{
				{Title: "Ohne Identifikator"},
			})

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("metauid"))
		})

		It("backs off linearly on rate limiting and then succeeds", func() {
			rateLimited := errors.New("429 Too Many Requests")
			embedder.errs = []error{rateLimited, rateLimited, nil}

			indexed, err := indexer.IndexRecords(context.Background(), []CatalogRecord{
				{MetaUID: "LU-1", Title: "Gewässernetz"},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(indexed).To(Equal(1))
			Expect(slept).To(Equal([]time.Duration{10 * time.Second, 20 * time.Second}))
		})

		It("gives up after five rate-limited attempts without a final sleep", func() {
			rateLimited := errors.New("429 Too Many Requests")
			embedder.errs = []error{rateLimited, rateLimited, rateLimited, rateLimited, rateLimited}

			_, err := indexer.IndexRecords(context.Background(), []CatalogRecord{
				{MetaUID: "LU-1", Title: "Gewässernetz"},
			})

			Expect(err).To(HaveOccurred())
			Expect(embedder.texts).To(HaveLen(5))
			Expect(slept).To(Equal([]time.Duration{
				10 * time.Second, 20 * time.Second, 30 * time.Second, 40 * time.Second,
			}))
		})

		It("aborts the backoff when the context is cancelled", func() {
			rateLimited := errors.New("429 Too Many Requests")
			embedder.errs = []error{rateLimited, rateLimited}
			SetIndexerSleep(indexer, func(ctx context.Context, d time.Duration) error {
				return context.Canceled
			})

			_, err := indexer.IndexRecords(context.Background(), []CatalogRecord{
				{MetaUID: "LU-1", Title: "Gewässernetz"},
			})

			Expect(err).To(MatchError(context.Canceled))
			Expect(embedder.texts).To(HaveLen(1))
		})

		It("does not retry non-rate-limit errors", func() {
			embedder.errs = []error{errors.New("invalid request")}

			_, err := indexer.IndexRecords(context.Background(), []CatalogRecord{
				{MetaUID: "LU-1", Title: "Gewässernetz"},
			})

			Expect(err).To(HaveOccurred())
			Expect(slept).To(BeEmpty())
		})

		It("stops when the engine rejects a batch", func() {
			engine.indexErr = errors.New("index unavailable")

			indexed, err := indexer.IndexRecords(context.Background(), []CatalogRecord{
				{MetaUID: "LU-1", Title: "Gewässernetz"},
			})

			Expect(err).To(HaveOccurred())
			Expect(indexed).To(Equal(0))
		})
	})

	Describe("IndexSitemap", func() {
		var server *httptest.Server

		BeforeEach(func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/sitemap.xml":
					w.Header().Set("Content-Type", "application/xml")
					fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>http://%[1]s/dataset/lu-gewaessernetz</loc></url>
  <url><loc>http://%[1]s/</loc></url>
</urlset>`, r.Host)
				case "/dataset/lu-gewaessernetz":
					fmt.Fprint(w, `<html><body><p>Gewässernetz</p><p>Übersicht der Fliessgewässer</p></body></html>`)
				default:
					fmt.Fprint(w, `<html><body><p>Startseite</p></body></html>`)
				}
			}))
		})

		AfterEach(func() {
			server.Close()
		})

		It("turns catalog pages into records keyed by the URL slug", func() {
			indexed, err := indexer.IndexSitemap(context.Background(), server.URL+"/sitemap.xml")

			Expect(err).ToNot(HaveOccurred())
			Expect(indexed).To(Equal(1))
			Expect(engine.indexed).To(HaveLen(1))

			doc := engine.indexed[0][0]
			Expect(doc.MetaUID).To(Equal("lu-gewaessernetz"))
			Expect(doc.Title).To(Equal("Gewässernetz"))
			Expect(doc.DataType).To(Equal(types.DataTypeDataset))
			Expect(doc.OpenlyURL).To(HaveSuffix("/dataset/lu-gewaessernetz"))
			Expect(doc.Content).To(ContainSubstring("Fliessgewässer"))
		})
	})
})
