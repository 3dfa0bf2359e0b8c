package types

// Chunk types for catalog documents. Every catalog record is indexed as a
// "main" chunk plus, when the record carries a long abstract, a separate
// "abstract" chunk sharing the same MetaUID.
const (
	ChunkMain     = "main"
	ChunkAbstract = "abstract"
)

// Known data types of catalog records.
const (
	DataTypeCollection = "Geodatenkollektion"
	DataTypeDataset    = "Datensatz"
	DataTypeService    = "Geodienst"
)

// Document is one indexable chunk of a catalog record. The Vector is only
// populated on the indexing path and never serialized.
type Document struct {
	ID          string   `json:"id"`
	MetaUID     string   `json:"metauid"`
	Title       string   `json:"title"`
	DataType    string   `json:"data_type"`
	ChunkType   string   `json:"chunk_type"`
	Keywords    []string `json:"keywords"`
	Purpose     string   `json:"purpose"`
	Abstract    string   `json:"abstract"`
	FeatureType string   `json:"feature_type"`
	ServiceType string   `json:"service_type"`
	Constraints []string `json:"constraints"`
	OpenlyURL   string   `json:"openly_url"`
	WebappURL   string   `json:"webapp_url"`
	Content     string   `json:"content"`

	Vector []float32 `json:"-"`
}

// Candidate is one retrieved chunk together with its retrieval scores.
// Chunks of the same logical record share a MetaUID.
type Candidate struct {
	Document

	// Score is the lexical (full-text) relevance reported by the index.
	Score float64 `json:"score"`

	// RerankerScore is the semantic (L2 cross-encoder) score. Nil when
	// semantic ranking was not requested or the index does not provide it.
	RerankerScore *float64 `json:"reranker_score,omitempty"`

	// Caption is an extractive snippet supplied by the index, when available.
	Caption string `json:"caption,omitempty"`
}

// Relevance returns the reranker score when present, the lexical score otherwise.
func (c Candidate) Relevance() float64 {
	if c.RerankerScore != nil {
		return *c.RerankerScore
	}
	return c.Score
}

// RankedResult is a candidate plus its final rank position (1-based) and the
// year signal the ranking was keyed on.
type RankedResult struct {
	Candidate

	Rank int `json:"rank"`

	// Year is the newest four-digit year found in the title, 0 when none.
	Year int `json:"year"`
}

// Source describes one cited dataset in the order it was ranked.
type Source struct {
	Title          string  `json:"title"`
	MetaUID        string  `json:"metauid"`
	DataType       string  `json:"data_type"`
	OpenlyURL      string  `json:"openly_url"`
	WebappURL      string  `json:"webapp_url"`
	RelevanceScore float64 `json:"relevance_score"`
	Caption        string  `json:"caption,omitempty"`
}

// AnswerRecord is the final result of one query: the cited answer, the
// model's self-reported confidence and the sources in rank order.
type AnswerRecord struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Confidence int      `json:"confidence"`
	Sources    []Source `json:"sources"`
	Model      string   `json:"model"`
}
