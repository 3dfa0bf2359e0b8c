package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/geoportal/geopard/rag"
	"github.com/geoportal/geopard/rag/types"
)

// Client is a client for the geodata assistant API
type Client struct {
	BaseURL string
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
	}
}

// Query asks a question and returns the composed answer with its sources
func (c *Client) Query(question string, topK int, useExpansion bool) (*types.AnswerRecord, error) {
	url := fmt.Sprintf("%s/api/query", c.BaseURL)

	type request struct {
		Question          string `json:"question"`
		TopK              int    `json:"top_k"`
		UseQueryExpansion bool   `json:"use_query_expansion"`
	}

	payload, err := json.Marshal(request{Question: question, TopK: topK, UseQueryExpansion: useExpansion})
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("failed to run query")
	}

	record := new(types.AnswerRecord)
	err = json.NewDecoder(resp.Body).Decode(record)
	if err != nil {
		return nil, err
	}

	return record, nil
}

// IndexRecords submits catalog records for indexing and returns the number
// of chunks written
func (c *Client) IndexRecords(records []rag.CatalogRecord) (int, error) {
	url := fmt.Sprintf("%s/api/index", c.BaseURL)

	type request struct {
		Records []rag.CatalogRecord `json:"records"`
	}

	payload, err := json.Marshal(request{Records: records})
	if err != nil {
		return 0, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.New("failed to index records")
	}

	var result struct {
		Indexed int `json:"indexed"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return 0, err
	}

	return result.Indexed, nil
}

// IndexSitemap asks the service to crawl a catalog sitemap and index every
// listed page
func (c *Client) IndexSitemap(sitemapURL string) (int, error) {
	url := fmt.Sprintf("%s/api/index/sitemap", c.BaseURL)

	type request struct {
		SitemapURL string `json:"sitemap_url"`
	}

	payload, err := json.Marshal(request{SitemapURL: sitemapURL})
	if err != nil {
		return 0, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.New("failed to index sitemap")
	}

	var result struct {
		Indexed int `json:"indexed"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return 0, err
	}

	return result.Indexed, nil
}

// Health checks the service health endpoint
func (c *Client) Health() error {
	url := fmt.Sprintf("%s/health", c.BaseURL)

	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("service is not healthy")
	}

	return nil
}
