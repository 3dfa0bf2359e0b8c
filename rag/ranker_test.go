package rag_test

import (
	. "github.com/geoportal/geopard/rag"
	"github.com/geoportal/geopard/rag/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExtractYear", func() {
	It("finds a four-digit year in a dataset title", func() {
		Expect(ExtractYear("Digitales Terrainmodell 2024")).To(Equal(2024))
	})

	It("returns the newest year when several are present", func() {
		Expect(ExtractYear("Orthofoto 2018 (Nachführung 2021)")).To(Equal(2021))
	})

	It("returns zero for titles without a year", func() {
		Expect(ExtractYear("Gewässernetz Kanton Luzern")).To(Equal(0))
	})

	It("ignores years outside the plausible range", func() {
		Expect(ExtractYear("Übersichtsplan 1995")).To(Equal(0))
		Expect(ExtractYear("Planung 2035")).To(Equal(0))
	})

	It("does not match digits embedded in longer numbers", func() {
		Expect(ExtractYear("Blattnummer 120240")).To(Equal(0))
	})
})

var _ = Describe("Rank", func() {
	It("puts the newest vintage first even when an older one scores higher", func() {
		older := candidate("LU-DTM-2012", "DTM 2012", 0, scorePtr(3.1))
		newer := candidate("LU-DTM-2024", "DTM 2024", 0, scorePtr(2.4))

		ranked := Rank([]types.Candidate{older, newer}, 5)
		Expect(ranked).To(HaveLen(2))
		Expect(ranked[0].Title).To(Equal("DTM 2024"))
		Expect(ranked[0].Year).To(Equal(2024))
		Expect(ranked[1].Title).To(Equal("DTM 2012"))
	})

	It("orders by relevance within the same year", func() {
		a := candidate("LU-A", "Orthofoto 2020 Sommer", 0, scorePtr(1.2))
		b := candidate("LU-B", "Orthofoto 2020 Winter", 0, scorePtr(2.5))

		ranked := Rank([]types.Candidate{a, b}, 5)
		Expect(ranked[0].MetaUID).To(Equal("LU-B"))
		Expect(ranked[1].MetaUID).To(Equal("LU-A"))
	})

	It("ranks yearless candidates below dated ones", func() {
		dated := candidate("LU-A", "Amtliche Vermessung 2015", 0, scorePtr(0.1))
		yearless := candidate("LU-B", "Amtliche Vermessung", 0, scorePtr(9.9))

		ranked := Rank([]types.Candidate{yearless, dated}, 5)
		Expect(ranked[0].MetaUID).To(Equal("LU-A"))
	})

	It("degrades to pure relevance when no candidate carries a year", func() {
		ranked := Rank([]types.Candidate{
			candidate("LU-A", "Wanderwege", 0, scorePtr(0.4)),
			candidate("LU-B", "Radwege", 0, scorePtr(0.8)),
			candidate("LU-C", "Buslinien", 0, scorePtr(0.6)),
		}, 5)

		Expect(ranked[0].MetaUID).To(Equal("LU-B"))
		Expect(ranked[1].MetaUID).To(Equal("LU-C"))
		Expect(ranked[2].MetaUID).To(Equal("LU-A"))
	})

	It("keeps input order for identical sort keys", func() {
		first := candidate("LU-A", "Zonenplan 2020", 0, scorePtr(1.0))
		second := candidate("LU-B", "Bauzonen 2020", 0, scorePtr(1.0))

		ranked := Rank([]types.Candidate{first, second}, 5)
		Expect(ranked[0].MetaUID).To(Equal("LU-A"))
		Expect(ranked[1].MetaUID).To(Equal("LU-B"))
	})

	It("truncates to topK and assigns 1-based ranks", func() {
		ranked := Rank([]types.Candidate{
			candidate("LU-A", "A 2024", 0, scorePtr(1.0)),
			candidate("LU-B", "B 2023", 0, scorePtr(1.0)),
			candidate("LU-C", "C 2022", 0, scorePtr(1.0)),
		}, 2)

		Expect(ranked).To(HaveLen(2))
		Expect(ranked[0].Rank).To(Equal(1))
		Expect(ranked[1].Rank).To(Equal(2))
	})

	It("returns all candidates when fewer than topK", func() {
		ranked := Rank([]types.Candidate{candidate("LU-A", "A", 0.5, nil)}, 10)
		Expect(ranked).To(HaveLen(1))
		Expect(ranked[0].Rank).To(Equal(1))
	})

	It("handles an empty input", func() {
		Expect(Rank(nil, 5)).To(BeEmpty())
	})
})
