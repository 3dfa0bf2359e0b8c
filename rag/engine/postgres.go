package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/geoportal/geopard/rag/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/xlog"
)

// PostgresEngine stores catalog documents in Postgres with pgvector for
// similarity search and a German tsvector for lexical ranking. Like the
// local chromem engine it has no L2 reranker; the semantic score is the
// weighted blend of cosine similarity and ts_rank.
type PostgresEngine struct {
	pool          *pgxpool.Pool
	tableName     string
	embeddingDims int
	bm25Weight    float64
	vectorWeight  float64
}

func NewPostgresEngine(ctx context.Context, databaseURL, collection string, embeddingDims int) (*PostgresEngine, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the PostgreSQL engine")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresEngine{
		pool:          pool,
		tableName:     sanitizeTableName(collection),
		embeddingDims: embeddingDims,
		bm25Weight:    0.5,
		vectorWeight:  0.5,
	}

	if err := pg.setupDatabase(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	return pg, nil
}

func sanitizeTableName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "col_" + name
	}
	return "geodata_" + name
}

func (p *PostgresEngine) setupDatabase(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			metauid TEXT NOT NULL,
			title TEXT,
			data_type TEXT,
			chunk_type TEXT,
			keywords TEXT[],
			purpose TEXT,
			abstract TEXT,
			feature_type TEXT,
			service_type TEXT,
			constraints TEXT[],
			openly_url TEXT,
			webapp_url TEXT,
			content TEXT NOT NULL,
			search_vector TSVECTOR GENERATED ALWAYS AS (
				to_tsvector('german', COALESCE(title, '') || ' ' || content)
			) STORED,
			embedding VECTOR(%d)
		)
	`, p.tableName, p.embeddingDims))
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_search ON %s USING GIN(search_vector)
	`, p.tableName, p.tableName)); err != nil {
		xlog.Warn("Failed to create GIN index", "error", err)
	}

	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw(embedding vector_cosine_ops)
	`, p.tableName, p.tableName)); err != nil {
		xlog.Warn("Failed to create HNSW index", "error", err)
	}

	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_metauid ON %s (metauid)
	`, p.tableName, p.tableName)); err != nil {
		xlog.Warn("Failed to create metauid index", "error", err)
	}

	return nil
}

func formatVector(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%f", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Index upserts documents. Documents without a vector are stored with a NULL
// embedding and only participate in lexical search.
func (p *PostgresEngine) Index(ctx context.Context, docs []types.Document) error {
	for _, d := range docs {
		var embedding *string
		if len(d.Vector) > 0 {
			s := formatVector(d.Vector)
			embedding = &s
		}

		_, err := p.pool.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, metauid, title, data_type, chunk_type, keywords, purpose,
				abstract, feature_type, service_type, constraints, openly_url, webapp_url,
				content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::vector)
			ON CONFLICT (id) DO UPDATE SET
				metauid = EXCLUDED.metauid,
				title = EXCLUDED.title,
				data_type = EXCLUDED.data_type,
				chunk_type = EXCLUDED.chunk_type,
				keywords = EXCLUDED.keywords,
				purpose = EXCLUDED.purpose,
				abstract = EXCLUDED.abstract,
				feature_type = EXCLUDED.feature_type,
				service_type = EXCLUDED.service_type,
				constraints = EXCLUDED.constraints,
				openly_url = EXCLUDED.openly_url,
				webapp_url = EXCLUDED.webapp_url,
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding
		`, p.tableName),
			d.ID, d.MetaUID, d.Title, d.DataType, d.ChunkType, d.Keywords, d.Purpose,
			d.Abstract, d.FeatureType, d.ServiceType, d.Constraints, d.OpenlyURL,
			d.WebappURL, d.Content, embedding)
		if err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
		}
	}
	return nil
}

func (p *PostgresEngine) Count(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	return count, err
}

func (p *PostgresEngine) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return p.setupDatabase(ctx)
}

func (p *PostgresEngine) Close() {
	p.pool.Close()
}

const postgresSelectColumns = `id, metauid, COALESCE(title, ''), COALESCE(data_type, ''),
	COALESCE(chunk_type, ''), COALESCE(keywords, '{}'), COALESCE(purpose, ''),
	COALESCE(abstract, ''), COALESCE(feature_type, ''), COALESCE(service_type, ''),
	COALESCE(constraints, '{}'), COALESCE(openly_url, ''), COALESCE(webapp_url, ''), content`

func (p *PostgresEngine) Search(ctx context.Context, query string, opts interfaces.SearchOptions) ([]types.Candidate, error) {
	var sql string
	var args []any

	if len(opts.Vector) > 0 {
		sql = fmt.Sprintf(`
			SELECT %s,
				ts_rank(search_vector, plainto_tsquery('german', $1)) AS lexical,
				COALESCE(1 - (embedding <=> $2::vector), 0) AS similarity
			FROM %s
			WHERE ($3 = '' OR data_type = $3)
			ORDER BY (
				ts_rank(search_vector, plainto_tsquery('german', $1)) * $4 +
				COALESCE(1 - (embedding <=> $2::vector), 0) * $5
			) DESC
			LIMIT $6
		`, postgresSelectColumns, p.tableName)
		args = []any{query, formatVector(opts.Vector), opts.Filter, p.bm25Weight, p.vectorWeight, opts.Top}
	} else {
		sql = fmt.Sprintf(`
			SELECT %s,
				ts_rank(search_vector, plainto_tsquery('german', $1)) AS lexical,
				0::float8 AS similarity
			FROM %s
			WHERE ($2 = '' OR data_type = $2)
				AND search_vector @@ plainto_tsquery('german', $1)
			ORDER BY lexical DESC
			LIMIT $3
		`, postgresSelectColumns, p.tableName)
		args = []any{query, opts.Filter, opts.Top}
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer rows.Close()

	candidates := []types.Candidate{}
	for rows.Next() {
		var c types.Candidate
		var lexical, similarity float64
		err := rows.Scan(&c.ID, &c.MetaUID, &c.Title, &c.DataType, &c.ChunkType,
			&c.Keywords, &c.Purpose, &c.Abstract, &c.FeatureType, &c.ServiceType,
			&c.Constraints, &c.OpenlyURL, &c.WebappURL, &c.Content,
			&lexical, &similarity)
		if err != nil {
			xlog.Warn("Failed to scan search row", "error", err)
			continue
		}

		c.Score = lexical
		if opts.Semantic && len(opts.Vector) > 0 {
			combined := lexical*p.bm25Weight + similarity*p.vectorWeight
			c.RerankerScore = &combined
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}
