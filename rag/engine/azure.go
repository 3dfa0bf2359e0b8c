package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/geoportal/geopard/rag/types"
)

const (
	azureAPIVersion = "2024-07-01"

	// The original deployment retrieves 100 nearest neighbours so the L2
	// reranker has enough material to work with.
	vectorKNN = 100

	searchTimeout = 15 * time.Second
)

var selectFields = strings.Join([]string{
	"id", "content", "title", "metauid", "data_type",
	"keywords", "purpose", "abstract", "feature_type",
	"service_type", "constraints", "openly_url", "webapp_url", "chunk_type",
}, ",")

// AzureSearch talks to a hosted Azure AI Search index over its REST API. It
// is the production search collaborator: hybrid vector + lexical queries
// with optional semantic (L2) reranking and extractive captions.
type AzureSearch struct {
	endpoint       string
	indexName      string
	apiKey         string
	semanticConfig string
	httpClient     *http.Client
}

func NewAzureSearch(endpoint, indexName, apiKey, semanticConfig string) *AzureSearch {
	return &AzureSearch{
		endpoint:       strings.TrimSuffix(endpoint, "/"),
		indexName:      indexName,
		apiKey:         apiKey,
		semanticConfig: semanticConfig,
		httpClient:     &http.Client{Timeout: searchTimeout},
	}
}

type azureVectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

type azureSearchRequest struct {
	Search                string             `json:"search"`
	VectorQueries         []azureVectorQuery `json:"vectorQueries,omitempty"`
	Filter                string             `json:"filter,omitempty"`
	Select                string             `json:"select"`
	Top                   int                `json:"top"`
	QueryType             string             `json:"queryType,omitempty"`
	SemanticConfiguration string             `json:"semanticConfiguration,omitempty"`
	Captions              string             `json:"captions,omitempty"`
	Answers               string             `json:"answers,omitempty"`
}

type azureCaption struct {
	Text string `json:"text"`
}

type azureHit struct {
	Score         float64        `json:"@search.score"`
	RerankerScore *float64       `json:"@search.rerankerScore"`
	Captions      []azureCaption `json:"@search.captions"`

	ID          string   `json:"id"`
	Title       string   `json:"title"`
	MetaUID     string   `json:"metauid"`
	DataType    string   `json:"data_type"`
	Keywords    []string `json:"keywords"`
	Purpose     string   `json:"purpose"`
	Abstract    string   `json:"abstract"`
	FeatureType string   `json:"feature_type"`
	ServiceType string   `json:"service_type"`
	Constraints []string `json:"constraints"`
	OpenlyURL   string   `json:"openly_url"`
	WebappURL   string   `json:"webapp_url"`
	Content     string   `json:"content"`
	ChunkType   string   `json:"chunk_type"`
}

type azureSearchResponse struct {
	Value []azureHit `json:"value"`
}

func (a *AzureSearch) Search(ctx context.Context, query string, opts interfaces.SearchOptions) ([]types.Candidate, error) {
	reqBody := azureSearchRequest{
		Search: query,
		Select: selectFields,
		Top:    opts.Top,
	}
	if opts.Filter != "" {
		reqBody.Filter = fmt.Sprintf("data_type eq '%s'", opts.Filter)
	}
	if len(opts.Vector) > 0 {
		reqBody.VectorQueries = []azureVectorQuery{{
			Kind:   "vector",
			Vector: opts.Vector,
			K:      vectorKNN,
			Fields: "content_vector",
		}}
	}
	if opts.Semantic && a.semanticConfig != "" {
		reqBody.QueryType = "semantic"
		reqBody.SemanticConfiguration = a.semanticConfig
		reqBody.Captions = "extractive"
		reqBody.Answers = "extractive"
	}

	var resp azureSearchResponse
	if err := a.post(ctx, "docs/search", reqBody, &resp); err != nil {
		return nil, err
	}

	candidates := make([]types.Candidate, 0, len(resp.Value))
	for _, hit := range resp.Value {
		c := types.Candidate{
			Document: types.Document{
				ID:          hit.ID,
				MetaUID:     hit.MetaUID,
				Title:       hit.Title,
				DataType:    hit.DataType,
				ChunkType:   hit.ChunkType,
				Keywords:    hit.Keywords,
				Purpose:     hit.Purpose,
				Abstract:    hit.Abstract,
				FeatureType: hit.FeatureType,
				ServiceType: hit.ServiceType,
				Constraints: hit.Constraints,
				OpenlyURL:   hit.OpenlyURL,
				WebappURL:   hit.WebappURL,
				Content:     hit.Content,
			},
			Score:         hit.Score,
			RerankerScore: hit.RerankerScore,
		}
		if len(hit.Captions) > 0 {
			c.Caption = hit.Captions[0].Text
		}
		candidates = append(candidates, c)
	}

	return candidates, nil
}

// Index uploads documents with mergeOrUpload semantics, so re-indexing a
// catalog record is an upsert.
func (a *AzureSearch) Index(ctx context.Context, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	actions := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		actions = append(actions, map[string]any{
			"@search.action": "mergeOrUpload",
			"id":             d.ID,
			"metauid":        d.MetaUID,
			"title":          d.Title,
			"data_type":      d.DataType,
			"chunk_type":     d.ChunkType,
			"keywords":       d.Keywords,
			"purpose":        d.Purpose,
			"abstract":       d.Abstract,
			"feature_type":   d.FeatureType,
			"service_type":   d.ServiceType,
			"constraints":    d.Constraints,
			"openly_url":     d.OpenlyURL,
			"webapp_url":     d.WebappURL,
			"content":        d.Content,
			"content_vector": d.Vector,
		})
	}

	return a.post(ctx, "docs/index", map[string]any{"value": actions}, nil)
}

// Reset is intentionally unsupported for the hosted index; dropping and
// recreating it is an operator action, not something the service does.
func (a *AzureSearch) Reset(ctx context.Context) error {
	return fmt.Errorf("reset is not supported for the hosted index")
}

func (a *AzureSearch) Count(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/indexes/%s/docs/$count?api-version=%s", a.endpoint, a.indexName, azureAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("api-key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("count failed with status %d", resp.StatusCode)
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (a *AzureSearch) post(ctx context.Context, action string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/indexes/%s/%s?api-version=%s", a.endpoint, a.indexName, action, azureAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(msg))
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
