package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Corpus and persistence
	CorpusDir        string
	IndexPath        string
	ConversationsDir string
	MetadataRules    string

	// LLM
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMTimeout     time.Duration

	// Embeddings
	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int
	// Use the deterministic local embedder instead of a service.
	EmbeddingLocal bool

	// Chunking defaults
	DefaultChunkSize    int
	DefaultChunkOverlap int

	// Conversation context passed to planning
	HistoryLimit int

	// PDF
	PDFFallbackPdftotext bool

	// Sync the whole corpus at startup
	SyncOnStart bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("LEXARCH_API_KEY"),

		CorpusDir:        envOr("CORPUS_DIR", "./corpus"),
		IndexPath:        envOr("INDEX_PATH", "./data/index.db"),
		ConversationsDir: envOr("CONVERSATIONS_DIR", "./data/conversations"),
		MetadataRules:    os.Getenv("METADATA_RULES"),

		LLMBaseURL:     envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       envOr("LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature: envFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:   envInt("LLM_MAX_TOKENS", 4096),
		LLMTimeout:     envDuration("LLM_TIMEOUT", 120*time.Second),

		EmbeddingBaseURL:    envOr("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingAPIKey:     os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingModel:      envOr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingLocal:      envBool("EMBEDDING_LOCAL", false),

		DefaultChunkSize:    envInt("DEFAULT_CHUNK_SIZE", 800),
		DefaultChunkOverlap: envInt("DEFAULT_CHUNK_OVERLAP", 300),

		HistoryLimit: envInt("HISTORY_LIMIT", 10),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		SyncOnStart: envBool("SYNC_ON_START", true),
	}

	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = 800
	}
	if cfg.DefaultChunkOverlap < 0 || cfg.DefaultChunkOverlap >= cfg.DefaultChunkSize {
		cfg.DefaultChunkOverlap = 300
	}
	if cfg.EmbeddingDimensions <= 0 {
		cfg.EmbeddingDimensions = 1536
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 120 * time.Second
	}

	return cfg
}

func (c Config) Validate() error {
	if c.CorpusDir == "" {
		return fmt.Errorf("CORPUS_DIR is required")
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if !c.EmbeddingLocal && c.EmbeddingAPIKey == "" {
		return fmt.Errorf("EMBEDDING_API_KEY is required unless EMBEDDING_LOCAL is set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
