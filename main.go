package main

import (
	"context"
	"os"
	"strconv"

	"github.com/geoportal/geopard/pkg/geo"
	"github.com/geoportal/geopard/rag"
	"github.com/geoportal/geopard/rag/engine"
	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		xlog.Debug("No .env file loaded", "error", err)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		xlog.Error("OPENAI_API_KEY must be set")
		os.Exit(1)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_API_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}
	openAIClient := openai.NewClientWithConfig(config)

	embeddingModel := envOr("EMBEDDING_MODEL", "text-embedding-3-large")
	chatModel := envOr("CHAT_MODEL", "gpt-4o")

	embedder := rag.NewOpenAIEmbedder(openAIClient, embeddingModel)
	chat := rag.NewOpenAIChat(openAIClient, chatModel)

	index, err := buildSearchEngine(embedder)
	if err != nil {
		xlog.Error("Failed to create search engine", "error", err)
		os.Exit(1)
	}

	cache := rag.NewEmbeddingCache(envOr("EMBEDDING_CACHE_PATH", ".rag_cache/embeddings.json"), embedder)

	pipeline := rag.NewPipeline(index, cache, chat)
	indexer := rag.NewIndexer(index, embedder)
	locationFinder := geo.NewLocationFinder(os.Getenv("LOCATIONFINDER_URL"))
	heightClient := geo.NewHeightClient(os.Getenv("HEIGHT_API_URL"), os.Getenv("PROFILE_API_URL"))

	startAPI(envOr("LISTEN_ADDRESS", ":8080"), pipeline, indexer, locationFinder, heightClient)
}

func buildSearchEngine(embedder interfaces.Embedder) (interfaces.Engine, error) {
	switch envOr("SEARCH_ENGINE", "azure") {
	case "chromem":
		return engine.NewChromemEngine(
			envOr("COLLECTION_NAME", "geopard"),
			envOr("DB_PATH", "geopard-db"),
			embedder,
		)
	case "postgres":
		// text-embedding-3-large dimensionality; overridable per deployment.
		dims := 3072
		if v := os.Getenv("EMBEDDING_DIMENSIONS"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				dims = parsed
			} else {
				xlog.Warn("Invalid EMBEDDING_DIMENSIONS, using default", "value", v)
			}
		}
		return engine.NewPostgresEngine(
			context.Background(),
			os.Getenv("DATABASE_URL"),
			envOr("COLLECTION_NAME", "geopard"),
			dims,
		)
	default:
		return engine.NewAzureSearch(
			os.Getenv("AZURE_SEARCH_ENDPOINT"),
			envOr("AZURE_SEARCH_INDEX_NAME", "geopard-rag-v2"),
			os.Getenv("AZURE_SEARCH_KEY"),
			envOr("AZURE_SEARCH_SEMANTIC_CONFIG", "geopard-semantic-config"),
		), nil
	}
}
