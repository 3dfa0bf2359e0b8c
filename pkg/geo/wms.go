package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var featureClient = &http.Client{Timeout: 30 * time.Second}

// WMSGetFeatureInfo queries a WMS layer at an LV95 point and returns the
// plain-text feature info. The query window is a bboxSize meter square
// centered on the point.
func WMSGetFeatureInfo(ctx context.Context, wmsURL, layer string, easting, northing float64, bboxSize float64) (string, error) {
	if bboxSize <= 0 {
		bboxSize = 100
	}
	half := bboxSize / 2

	params := url.Values{}
	params.Set("service", "WMS")
	params.Set("version", "1.3.0")
	params.Set("request", "GetFeatureInfo")
	params.Set("format", "image/png")
	params.Set("transparent", "true")
	params.Set("query_layers", layer)
	params.Set("layers", layer)
	params.Set("feature_count", "10")
	params.Set("info_format", "text/plain")
	params.Set("i", "50")
	params.Set("j", "50")
	params.Set("crs", "EPSG:2056")
	params.Set("width", "101")
	params.Set("height", "101")
	params.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", easting-half, northing-half, easting+half, northing+half))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wmsURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := featureClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("WMS GetFeatureInfo returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ESRIPointQuery intersects an LV95 point with one layer of an ESRI REST
// MapServer and returns the raw feature response.
func ESRIPointQuery(ctx context.Context, serviceURL string, layerID int, easting, northing float64) (map[string]any, error) {
	params := url.Values{}
	params.Set("geometry", fmt.Sprintf("%f,%f", easting, northing))
	params.Set("geometryType", "esriGeometryPoint")
	params.Set("inSR", "2056")
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("f", "json")

	queryURL := fmt.Sprintf("%s/%s/query?%s", serviceURL, strconv.Itoa(layerID), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := featureClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ESRI query returned status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
