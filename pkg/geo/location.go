package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultLocationFinderURL is the cantonal LocationFinder lookup endpoint.
const DefaultLocationFinderURL = "https://svc.geo.lu.ch/locationfinder/api/v1/lookup"

// Location is one LocationFinder hit with its LV95 center and bounding box.
type Location struct {
	ID   json.Number `json:"id"`
	Type string      `json:"type"`
	Name string      `json:"name"`
	CX   float64     `json:"cx"`
	CY   float64     `json:"cy"`
	XMin float64     `json:"xmin"`
	YMin float64     `json:"ymin"`
	XMax float64     `json:"xmax"`
	YMax float64     `json:"ymax"`
}

// LocationFinder resolves free-text place queries (addresses, municipality
// names, EGID/EGRID identifiers, parcel numbers) to coordinates.
type LocationFinder struct {
	BaseURL    string
	httpClient *http.Client
}

func NewLocationFinder(baseURL string) *LocationFinder {
	if baseURL == "" {
		baseURL = DefaultLocationFinderURL
	}
	return &LocationFinder{
		BaseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Search looks up a query, optionally restricted to one location type
// (e.g. "Adresse", "Gemeinde").
func (l *LocationFinder) Search(ctx context.Context, query string, limit int, filterType string) ([]Location, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	if filterType != "" {
		params.Set("filter", "type:"+filterType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("location lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		Locs []Location `json:"locs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return payload.Locs, nil
}

// Coordinates returns the LV95 center of the best match for a query.
func (l *LocationFinder) Coordinates(ctx context.Context, query string) (easting, northing float64, err error) {
	results, err := l.Search(ctx, query, 1, "")
	if err != nil {
		return 0, 0, err
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("location %q not found", query)
	}
	return results[0].CX, results[0].CY, nil
}
