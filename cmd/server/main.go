package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lexarch/lexarch/internal/api"
	"github.com/lexarch/lexarch/internal/chunker"
	"github.com/lexarch/lexarch/internal/config"
	"github.com/lexarch/lexarch/internal/conversation"
	"github.com/lexarch/lexarch/internal/corpus"
	"github.com/lexarch/lexarch/internal/embedding"
	"github.com/lexarch/lexarch/internal/index"
	"github.com/lexarch/lexarch/internal/llm"
	"github.com/lexarch/lexarch/internal/metadata"
	"github.com/lexarch/lexarch/internal/pipeline"
	"github.com/lexarch/lexarch/internal/retriever"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rules := metadata.DefaultRules()
	if cfg.MetadataRules != "" {
		loaded, err := metadata.LoadRules(cfg.MetadataRules)
		if err != nil {
			log.Error("invalid metadata rules", "path", cfg.MetadataRules, "error", err)
			os.Exit(1)
		}
		rules = loaded
	}

	store, err := index.Open(cfg.IndexPath)
	if err != nil {
		log.Error("failed to open index", "path", cfg.IndexPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var embedder embedding.Embedder
	if cfg.EmbeddingLocal {
		embedder = embedding.NewHashEmbedder(cfg.EmbeddingDimensions)
	} else {
		embedder = embedding.NewOpenAIEmbedder(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	}
	if reset, err := store.EnsureEmbedder(embedder.Name(), embedder.Dimensions()); err != nil {
		log.Error("failed to verify embedder", "error", err)
		os.Exit(1)
	} else if reset {
		log.Warn("embedding model changed, index was reset", "model", embedder.Name())
	}

	stats := llm.NewStats(time.Hour)
	client := llm.NewChatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel,
		llm.WithTemperature(cfg.LLMTemperature),
		llm.WithMaxTokens(cfg.LLMMaxTokens),
		llm.WithTimeout(cfg.LLMTimeout),
		llm.WithStats(stats),
	)
	defer client.Close()

	conversations, err := conversation.NewFileStore(cfg.ConversationsDir)
	if err != nil {
		log.Error("failed to open conversation store", "dir", cfg.ConversationsDir, "error", err)
		os.Exit(1)
	}

	c := corpus.New(cfg.CorpusDir)
	chunking := chunker.Config{ChunkSize: cfg.DefaultChunkSize, ChunkOverlap: cfg.DefaultChunkOverlap}
	indexer := index.NewIndexer(c, store, embedder, rules, chunking, log)
	indexer.SetPDFFallback(cfg.PDFFallbackPdftotext)
	r := retriever.New(store, embedder, client, log)
	orch := pipeline.NewOrchestrator(client, r, indexer, c, log)
	gate := pipeline.NewGate(client, log)

	if cfg.SyncOnStart {
		go func() {
			if _, err := indexer.Sync(context.Background()); err != nil {
				log.Error("startup sync failed", "error", err)
			}
		}()
	}

	srv := api.NewServer(api.Deps{
		Orchestrator:  orch,
		Gate:          gate,
		LLM:           client,
		Conversations: conversations,
		Indexer:       indexer,
		Store:         store,
		Corpus:        c,
		Rules:         rules,
		Stats:         stats,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting lexarch", "port", cfg.Port, "corpus", cfg.CorpusDir, "index", store.Path())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
