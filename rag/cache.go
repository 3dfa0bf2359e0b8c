package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/mudler/xlog"
)

// flushEvery bounds how often the cache is written back to disk. Persisting
// on every insert would amplify I/O for no benefit since entries are
// idempotent re-derivations.
const flushEvery = 10

// EmbeddingCache memoizes text->vector lookups keyed by a content hash.
// Entries are never evicted; the set of distinct query texts is small
// relative to memory. Safe for concurrent use, last write wins.
type EmbeddingCache struct {
	mu       sync.Mutex
	path     string
	embedder interfaces.Embedder
	vectors  map[string][]float32
	inserts  int
}

// NewEmbeddingCache creates a cache backed by the given file. An empty path
// keeps the cache memory-only. A missing or unreadable file starts empty;
// persistence problems never fail the caller.
func NewEmbeddingCache(path string, embedder interfaces.Embedder) *EmbeddingCache {
	c := &EmbeddingCache{
		path:     path,
		embedder: embedder,
		vectors:  map[string][]float32{},
	}
	if err := c.Load(); err != nil {
		xlog.Warn("Could not load embedding cache, starting empty", "path", path, "error", err)
	}
	return c
}

func cacheKey(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Load reads the persisted mapping from disk, replacing the in-memory state.
func (c *EmbeddingCache) Load() error {
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	vectors := map[string][]float32{}
	if err := json.Unmarshal(data, &vectors); err != nil {
		return err
	}

	c.mu.Lock()
	c.vectors = vectors
	c.mu.Unlock()
	return nil
}

// Flush writes the current mapping to disk.
func (c *EmbeddingCache) Flush() error {
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	data, err := json.Marshal(c.vectors)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vectors)
}

// GetOrCompute returns the cached vector for text, computing and storing it
// on a miss. A failing embedder surfaces as an error; callers treat that as
// "no vector available" and fall back to lexical-only retrieval.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	c.mu.Lock()
	if vector, ok := c.vectors[key]; ok {
		c.mu.Unlock()
		return vector, nil
	}
	c.mu.Unlock()

	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.vectors[key] = vector
	c.inserts++
	flush := c.inserts%flushEvery == 0
	c.mu.Unlock()

	if flush {
		if err := c.Flush(); err != nil {
			xlog.Warn("Failed to persist embedding cache", "path", c.path, "error", err)
		}
	}

	return vector, nil
}
