package rag_test

import (
	"context"
	"errors"

	. "github.com/geoportal/geopard/rag"
	"github.com/geoportal/geopard/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Pipeline", func() {
	var (
		index    *fakeIndex
		embedder *fakeEmbedder
		llm      *fakeCompleter
	)

	newPipeline := func() *Pipeline {
		return NewPipeline(index, NewEmbeddingCache("", embedder), llm)
	}

	BeforeEach(func() {
		index = &fakeIndex{}
		embedder = &fakeEmbedder{vector: []float32{0.1}}
		llm = &fakeCompleter{model: "test-model"}
	})

	Describe("ExpandQuery", func() {
		It("returns the original first, followed by up to two paraphrases", func() {
			llm.responses = []string{"Wo ist das Geländemodell?\nWelches DTM ist aktuell?\nNoch eine dritte Variante"}

			variants := newPipeline().ExpandQuery(context.Background(), "Wo finde ich das Terrainmodell?")

			Expect(variants).To(Equal([]string{
				"Wo finde ich das Terrainmodell?",
				"Wo ist das Geländemodell?",
				"Welches DTM ist aktuell?",
			}))
		})

		It("skips list markers and blank lines", func() {
			llm.responses = []string{"- ein Aufzählungspunkt\n\n1. nummeriert\nEchte Variante"}

			variants := newPipeline().ExpandQuery(context.Background(), "Originalfrage")

			Expect(variants).To(Equal([]string{"Originalfrage", "Echte Variante"}))
		})

		It("falls back to the original when the model fails", func() {
			llm.err = errors.New("timeout")

			variants := newPipeline().ExpandQuery(context.Background(), "Originalfrage")

			Expect(variants).To(Equal([]string{"Originalfrage"}))
		})
	})

	Describe("Query", func() {
		It("rejects a topK below one", func() {
			_, err := newPipeline().Query(context.Background(), "Frage", 0, false)
			Expect(err).To(MatchError(ErrInvalidTopK))

			_, err = newPipeline().Query(context.Background(), "Frage", -3, false)
			Expect(err).To(MatchError(ErrInvalidTopK))
		})

		It("short-circuits without calling the model when nothing is found", func() {
			record, err := newPipeline().Query(context.Background(), "Unbekanntes Thema", 5, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(record.Answer).To(Equal(NotFoundAnswer))
			Expect(record.Confidence).To(Equal(0))
			Expect(record.Sources).To(BeEmpty())
			Expect(record.Model).To(Equal("test-model"))
			Expect(llm.systems).To(BeEmpty())
		})

		It("runs retrieval, deduplication, ranking and composition", func() {
			older := candidate("LU-DTM-2012", "DTM 2012", 0, scorePtr(3.1))
			newer := candidate("LU-DTM-2024", "DTM 2024", 0, scorePtr(2.4))
			newerAbstract := candidate("LU-DTM-2024", "DTM 2024", 0, scorePtr(2.876))
			newerAbstract.ChunkType = types.ChunkAbstract
			index.hits = []types.Candidate{older, newer, newerAbstract}
			llm.responses = []string{"Nutzen Sie das DTM 2024 [Quelle 1].\nCONFIDENCE: 88%"}

			record, err := newPipeline().Query(context.Background(), "Aktuelles Terrainmodell?", 5, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(record.Answer).To(Equal("Nutzen Sie das DTM 2024 [Quelle 1]."))
			Expect(record.Confidence).To(Equal(88))
			Expect(record.Sources).To(HaveLen(2))
			Expect(record.Sources[0].MetaUID).To(Equal("LU-DTM-2024"))
			Expect(record.Sources[0].RelevanceScore).To(Equal(2.88))
			Expect(record.Sources[1].MetaUID).To(Equal("LU-DTM-2012"))
		})

		It("retrieves once per query variant when expansion is on", func() {
			index.hits = []types.Candidate{candidate("LU-1", "Treffer", 1.0, nil)}
			llm.responses = []string{
				"Variante A\nVariante B",
				"Antwort [Quelle 1]. CONFIDENCE: 80%",
			}

			record, err := newPipeline().Query(context.Background(), "Originalfrage", 5, true)

			Expect(err).ToNot(HaveOccurred())
			Expect(index.queries).To(Equal([]string{"Originalfrage", "Variante A", "Variante B"}))
			Expect(record.Sources).To(HaveLen(1))
		})

		It("searches only the original when expansion is off", func() {
			index.hits = []types.Candidate{candidate("LU-1", "Treffer", 1.0, nil)}
			llm.responses = []string{"Antwort. CONFIDENCE: 70%"}

			_, err := newPipeline().Query(context.Background(), "Originalfrage", 5, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(index.queries).To(Equal([]string{"Originalfrage"}))
		})

		It("truncates the sources to topK", func() {
			index.hits = []types.Candidate{
				candidate("LU-1", "A", 0.9, nil),
				candidate("LU-2", "B", 0.8, nil),
				candidate("LU-3", "C", 0.7, nil),
			}
			llm.responses = []string{"Antwort. CONFIDENCE: 70%"}

			record, err := newPipeline().Query(context.Background(), "Frage", 2, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(record.Sources).To(HaveLen(2))
		})

		It("answers with the apology when composition fails", func() {
			index.hits = []types.Candidate{candidate("LU-1", "Treffer", 1.0, nil)}
			llm.err = errors.New("model unavailable")

			record, err := newPipeline().Query(context.Background(), "Frage", 5, false)

			Expect(err).ToNot(HaveOccurred())
			Expect(record.Answer).To(Equal(ApologyAnswer))
			Expect(record.Confidence).To(Equal(0))
			Expect(record.Sources).To(HaveLen(1))
		})
	})
})
