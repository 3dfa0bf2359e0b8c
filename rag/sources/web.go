package sources

import (
	"io"
	"net/http"
	"time"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"jaytaylor.com/html2text"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

// CatalogPage is one catalog page reduced to plain text.
type CatalogPage struct {
	URL     string
	Content string
}

// GetCatalogPage fetches one catalog page and reduces it to plain text.
func GetCatalogPage(url string) (string, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return html2text.FromString(string(body), html2text.Options{PrettyTables: true})
}

// GetCatalogSitemap walks a catalog sitemap and returns the plain-text
// content of every listed page. Pages that fail to download are skipped.
func GetCatalogSitemap(url string) (res []CatalogPage, err error) {
	err = sitemap.ParseFromSite(url, func(e sitemap.Entry) error {
		xlog.Info("Catalog page from sitemap", "url", e.GetLocation())
		content, err := GetCatalogPage(e.GetLocation())
		if err != nil {
			xlog.Warn("Skipping catalog page", "url", e.GetLocation(), "error", err)
			return nil
		}
		res = append(res, CatalogPage{URL: e.GetLocation(), Content: content})
		return nil
	})
	return
}

// StripHTML reduces an HTML fragment (catalog abstracts frequently carry
// markup) to plain text, returning the input unchanged when conversion fails.
func StripHTML(fragment string) string {
	text, err := html2text.FromString(fragment, html2text.Options{})
	if err != nil {
		return fragment
	}
	return text
}
