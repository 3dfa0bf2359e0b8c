package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GeoAdmin swissALTI3D endpoints.
const (
	DefaultHeightURL  = "https://api3.geo.admin.ch/rest/services/height"
	DefaultProfileURL = "https://api3.geo.admin.ch/rest/services/profile.json"

	heightSource    = "swissALTI3D"
	heightReference = "LHN95"
)

// HeightResult is the elevation at one LV95 point.
type HeightResult struct {
	HeightM   float64 `json:"height_m"`
	Easting   float64 `json:"easting"`
	Northing  float64 `json:"northing"`
	Source    string  `json:"source"`
	Reference string  `json:"height_reference"`
}

// ProfilePoint is one sample of an elevation profile.
type ProfilePoint struct {
	Dist     float64            `json:"dist"`
	Easting  float64            `json:"easting"`
	Northing float64            `json:"northing"`
	Alts     map[string]float64 `json:"alts"`
}

// ProfileResult summarizes an elevation profile along a path.
type ProfileResult struct {
	Points           []ProfilePoint `json:"profile_points"`
	NumPoints        int            `json:"num_points"`
	MinHeightM       float64        `json:"min_height_m"`
	MaxHeightM       float64        `json:"max_height_m"`
	HeightDifference float64        `json:"height_difference_m"`
	Source           string         `json:"source"`
}

// HeightClient queries elevation via the GeoAdmin API.
type HeightClient struct {
	HeightURL  string
	ProfileURL string
	httpClient *http.Client
}

func NewHeightClient(heightURL, profileURL string) *HeightClient {
	if heightURL == "" {
		heightURL = DefaultHeightURL
	}
	if profileURL == "" {
		profileURL = DefaultProfileURL
	}
	return &HeightClient{
		HeightURL:  heightURL,
		ProfileURL: profileURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// HeightAt returns the terrain elevation at an LV95 point.
func (h *HeightClient) HeightAt(ctx context.Context, easting, northing float64) (*HeightResult, error) {
	params := url.Values{}
	params.Set("easting", fmt.Sprintf("%f", easting))
	params.Set("northing", fmt.Sprintf("%f", northing))
	params.Set("sr", "2056")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.HeightURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("height API returned status %d", resp.StatusCode)
	}

	// The API reports the height as a JSON string.
	var payload struct {
		Height json.Number `json:"height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	height, err := payload.Height.Float64()
	if err != nil {
		return nil, fmt.Errorf("unparsable height %q: %w", payload.Height, err)
	}

	return &HeightResult{
		HeightM:   math.Round(height*100) / 100,
		Easting:   math.Round(easting*100) / 100,
		Northing:  math.Round(northing*100) / 100,
		Source:    heightSource,
		Reference: heightReference,
	}, nil
}

// HeightAtWGS84 converts the coordinates to LV95 and queries the elevation.
func (h *HeightClient) HeightAtWGS84(ctx context.Context, lat, lon float64) (*HeightResult, error) {
	easting, northing := WGS84ToLV95(lat, lon)
	return h.HeightAt(ctx, easting, northing)
}

// Profile samples the terrain elevation along a path of LV95 points.
func (h *HeightClient) Profile(ctx context.Context, coords [][2]float64) (*ProfileResult, error) {
	if len(coords) < 2 {
		return nil, fmt.Errorf("a profile needs at least two points")
	}

	pairs := make([]string, len(coords))
	for i, c := range coords {
		pairs[i] = fmt.Sprintf("[%f,%f]", c[0], c[1])
	}

	params := url.Values{}
	params.Set("geom", "["+strings.Join(pairs, ",")+"]")
	params.Set("sr", "2056")
	params.Set("nb_points", "200")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.ProfileURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile API returned status %d", resp.StatusCode)
	}

	var points []ProfilePoint
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("profile API returned no points")
	}

	minH := math.Inf(1)
	maxH := math.Inf(-1)
	for _, p := range points {
		h := p.Alts["COMB"]
		minH = math.Min(minH, h)
		maxH = math.Max(maxH, h)
	}

	return &ProfileResult{
		Points:           points,
		NumPoints:        len(points),
		MinHeightM:       math.Round(minH*100) / 100,
		MaxHeightM:       math.Round(maxH*100) / 100,
		HeightDifference: math.Round((maxH-minH)*100) / 100,
		Source:           heightSource,
	}, nil
}
