package main

import (
	"errors"
	"net/http"

	"github.com/geoportal/geopard/pkg/geo"
	"github.com/geoportal/geopard/rag"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}

func startAPI(listenAddress string, pipeline *rag.Pipeline, indexer *rag.Indexer, locations *geo.LocationFinder, heights *geo.HeightClient) {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	registerStaticHandler(e)

	e.GET("/health", health)
	e.POST("/api/query", query(pipeline))
	e.POST("/api/index", indexRecords(indexer))
	e.POST("/api/index/sitemap", indexSitemap(indexer))
	e.POST("/api/location", lookupLocation(locations))
	e.POST("/api/height", lookupHeight(locations, heights))

	e.Logger.Fatal(e.Start(listenAddress))
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// query runs the full retrieval and answer pipeline for one question.
func query(pipeline *rag.Pipeline) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Question          string `json:"question"`
			TopK              int    `json:"top_k"`
			UseQueryExpansion bool   `json:"use_query_expansion"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if r.Question == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("question is required"))
		}
		if r.TopK == 0 {
			r.TopK = 5
		}

		record, err := pipeline.Query(c.Request().Context(), r.Question, r.TopK, r.UseQueryExpansion)
		if err != nil {
			if errors.Is(err, rag.ErrInvalidTopK) {
				return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
			}
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to run query"))
		}

		return c.JSON(http.StatusOK, record)
	}
}

func indexRecords(indexer *rag.Indexer) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Records []rag.CatalogRecord `json:"records"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if len(r.Records) == 0 {
			return c.JSON(http.StatusBadRequest, errorMessage("records are required"))
		}

		indexed, err := indexer.IndexRecords(c.Request().Context(), r.Records)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]int{"indexed": indexed})
	}
}

// indexSitemap crawls a catalog sitemap and indexes every listed page.
func indexSitemap(indexer *rag.Indexer) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			SitemapURL string `json:"sitemap_url"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if r.SitemapURL == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("sitemap_url is required"))
		}

		indexed, err := indexer.IndexSitemap(c.Request().Context(), r.SitemapURL)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]int{"indexed": indexed})
	}
}

// lookupLocation resolves a place query and attaches a webmap link per hit.
func lookupLocation(locations *geo.LocationFinder) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Query string `json:"query"`
			Type  string `json:"type"`
			Limit int    `json:"limit"`
		}
		type hit struct {
			geo.Location
			WebmapURL string `json:"webmap_url"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if r.Query == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("query is required"))
		}

		results, err := locations.Search(c.Request().Context(), r.Query, r.Limit, r.Type)
		if err != nil {
			return c.JSON(http.StatusBadGateway, errorMessage("Location lookup failed"))
		}

		hits := make([]hit, 0, len(results))
		for _, loc := range results {
			hits = append(hits, hit{
				Location:  loc,
				WebmapURL: geo.WebmapURL("default", loc.CX, loc.CY, geo.DefaultZoom, true),
			})
		}

		return c.JSON(http.StatusOK, map[string]any{"locations": hits})
	}
}

// lookupHeight answers "how high is X" for a named place or raw coordinates.
func lookupHeight(locations *geo.LocationFinder, heights *geo.HeightClient) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			LocationName string   `json:"location_name"`
			Lat          *float64 `json:"lat"`
			Lon          *float64 `json:"lon"`
			Easting      *float64 `json:"easting"`
			Northing     *float64 `json:"northing"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		ctx := c.Request().Context()
		locationName := ""

		var easting, northing float64
		switch {
		case r.LocationName != "":
			results, err := locations.Search(ctx, r.LocationName, 1, "")
			if err != nil || len(results) == 0 {
				return c.JSON(http.StatusNotFound, errorMessage("Location not found"))
			}
			easting, northing = results[0].CX, results[0].CY
			locationName = results[0].Name
		case r.Lat != nil && r.Lon != nil:
			easting, northing = geo.WGS84ToLV95(*r.Lat, *r.Lon)
		case r.Easting != nil && r.Northing != nil:
			easting, northing = *r.Easting, *r.Northing
		default:
			return c.JSON(http.StatusBadRequest, errorMessage("location_name, lat/lon or easting/northing is required"))
		}

		height, err := heights.HeightAt(ctx, easting, northing)
		if err != nil {
			return c.JSON(http.StatusBadGateway, errorMessage("Height lookup failed"))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"location_name": locationName,
			"height_m":      height.HeightM,
			"coordinates_lv95": map[string]float64{
				"easting":  height.Easting,
				"northing": height.Northing,
			},
			"source":           height.Source,
			"height_reference": height.Reference,
			"webmap_url":       geo.WebmapURL("hoehen", easting, northing, geo.DefaultZoom, true),
		})
	}
}
