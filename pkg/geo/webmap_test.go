package geo_test

import (
	. "github.com/geoportal/geopard/pkg/geo"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WebmapURL", func() {
	It("builds a focused link with a marker", func() {
		url := WebmapURL("hoehen", 2666222, 1211276, 4515, true)
		Expect(url).To(Equal("https://map.geo.lu.ch/hoehen?FOCUS=2666222:1211276:4515&marker"))
	})

	It("omits the marker when not requested", func() {
		url := WebmapURL("hoehen", 2666222, 1211276, 4515, false)
		Expect(url).ToNot(ContainSubstring("marker"))
	})

	It("falls back to the generic map for unknown themes", func() {
		url := WebmapURL("unbekannt", 2666222, 1211276, 4515, false)
		Expect(url).To(HavePrefix("https://map.geo.lu.ch/map?"))
	})

	It("applies the default zoom for non-positive values", func() {
		url := WebmapURL("hoehen", 2666222, 1211276, 0, false)
		Expect(url).To(ContainSubstring(":4515"))
	})

	It("rounds coordinates to whole meters", func() {
		url := WebmapURL("hoehen", 2666222.49, 1211276.51, 4515, false)
		Expect(url).To(ContainSubstring("FOCUS=2666222:1211277:4515"))
	})
})

var _ = Describe("ThemeForDataset", func() {
	It("recognizes elevation datasets", func() {
		Expect(ThemeForDataset("DTM 2024")).To(Equal("hoehen"))
		Expect(ThemeForDataset("Digitales Oberflächenmodell DOM")).To(Equal("hoehen"))
		Expect(ThemeForDataset("Höhenkurven")).To(Equal("hoehen"))
	})

	It("recognizes noise datasets", func() {
		Expect(ThemeForDataset("Lärmbelastung Strassenverkehr")).To(Equal("laerm"))
	})

	It("recognizes water datasets", func() {
		Expect(ThemeForDataset("Gewässernetz")).To(Equal("oberflaechengewaesser"))
	})

	It("recognizes cadastral datasets", func() {
		Expect(ThemeForDataset("Amtliche Vermessung")).To(Equal("grundbuchplan"))
	})

	It("falls back to the default theme", func() {
		Expect(ThemeForDataset("Buslinien")).To(Equal("default"))
	})
})

var _ = Describe("Catalog links", func() {
	It("builds the metadata page link", func() {
		Expect(OpenlyLink("LU-DTM-2024")).To(Equal("https://www.geo.lu.ch/openly/dataset/LU-DTM-2024"))
	})

	It("escapes the shop search term", func() {
		Expect(ShopLink("digitales terrainmodell")).To(Equal("https://geodatenshop.lu.ch?search=digitales+terrainmodell"))
	})
})
