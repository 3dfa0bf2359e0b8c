package geo

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	WebmapBaseURL = "https://map.geo.lu.ch"
	OpenlyBaseURL = "https://www.geo.lu.ch/openly"
	ShopBaseURL   = "https://geodatenshop.lu.ch"

	// DefaultZoom is the webmap zoom used for single-location markers.
	DefaultZoom = 4515
)

// Webmap themes by key.
var webmapThemes = map[string]string{
	"grundbuchplan":          "grundbuchplan",
	"oberflaechengewaesser":  "oberflaechengewaesser/netz",
	"amtliche_vermessung":    "amtliche_vermessung",
	"hoehen":                 "hoehen",
	"laerm":                  "laermbelastung",
	"default":                "map",
}

// WebmapURL builds a webmap link focused on an LV95 point, optionally with a
// marker.
func WebmapURL(theme string, easting, northing float64, zoom int, marker bool) string {
	path, ok := webmapThemes[theme]
	if !ok {
		path = webmapThemes["default"]
	}
	if zoom <= 0 {
		zoom = DefaultZoom
	}

	u := fmt.Sprintf("%s/%s?FOCUS=%.0f:%.0f:%d", WebmapBaseURL, path, easting, northing, zoom)
	if marker {
		u += "&marker"
	}
	return u
}

// ThemeForDataset picks a webmap theme from a dataset title.
func ThemeForDataset(title string) string {
	t := strings.ToLower(title)

	switch {
	case containsAny(t, "höhe", "terrain", "dtm", "dom"):
		return "hoehen"
	case containsAny(t, "lärm", "laerm", "noise"):
		return "laerm"
	case containsAny(t, "gewässer", "gewaesser", "wasser", "water"):
		return "oberflaechengewaesser"
	case containsAny(t, "grundbuch", "vermessung", "cadastre"):
		return "grundbuchplan"
	default:
		return "default"
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// OpenlyLink builds the metadata page URL for a dataset.
func OpenlyLink(metaUID string) string {
	return OpenlyBaseURL + "/dataset/" + metaUID
}

// ShopLink builds a geodata shop search URL.
func ShopLink(searchTerm string) string {
	return ShopBaseURL + "?search=" + url.QueryEscape(searchTerm)
}
