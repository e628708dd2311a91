package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexarch/lexarch/internal/chunker"
	"github.com/lexarch/lexarch/internal/config"
	"github.com/lexarch/lexarch/internal/corpus"
	"github.com/lexarch/lexarch/internal/embedding"
	"github.com/lexarch/lexarch/internal/index"
	"github.com/lexarch/lexarch/internal/llm"
	"github.com/lexarch/lexarch/internal/metadata"
	"github.com/lexarch/lexarch/internal/pipeline"
	"github.com/lexarch/lexarch/internal/retriever"
)

// env holds everything a command needs, built lazily so commands that
// never touch the index don't require embedding credentials.
type env struct {
	cfg      config.Config
	rules    metadata.Rules
	store    *index.Store
	embedder embedding.Embedder
	log      *slog.Logger
}

func loadEnv(verbose bool) (*env, error) {
	cfg := config.Load()

	rules := metadata.DefaultRules()
	if cfg.MetadataRules != "" {
		loaded, err := metadata.LoadRules(cfg.MetadataRules)
		if err != nil {
			return nil, fmt.Errorf("loading metadata rules: %w", err)
		}
		rules = loaded
	}

	logOut := io.Discard
	if verbose {
		logOut = os.Stderr
	}
	return &env{
		cfg:   cfg,
		rules: rules,
		log:   slog.New(slog.NewTextHandler(logOut, nil)),
	}, nil
}

func (e *env) openStore() error {
	store, err := index.Open(e.cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	e.store = store

	if e.cfg.EmbeddingLocal {
		e.embedder = embedding.NewHashEmbedder(e.cfg.EmbeddingDimensions)
	} else {
		e.embedder = embedding.NewOpenAIEmbedder(e.cfg.EmbeddingBaseURL, e.cfg.EmbeddingAPIKey, e.cfg.EmbeddingModel, e.cfg.EmbeddingDimensions)
	}
	if reset, err := e.store.EnsureEmbedder(e.embedder.Name(), e.embedder.Dimensions()); err != nil {
		return err
	} else if reset {
		fmt.Fprintln(os.Stderr, "embedding model changed, index was reset")
	}
	return nil
}

func (e *env) indexer() *index.Indexer {
	c := corpus.New(e.cfg.CorpusDir)
	chunking := chunker.Config{ChunkSize: e.cfg.DefaultChunkSize, ChunkOverlap: e.cfg.DefaultChunkOverlap}
	ix := index.NewIndexer(c, e.store, e.embedder, e.rules, chunking, e.log)
	ix.SetPDFFallback(e.cfg.PDFFallbackPdftotext)
	return ix
}

func indexCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect and maintain the document index",
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show index contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(verbose)
			if err != nil {
				return err
			}
			if err := e.openStore(); err != nil {
				return err
			}
			defer e.store.Close()

			stats, err := e.store.IndexStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("documents: %d\nchunks:    %d\n", stats.Documents, stats.Chunks)
			for jurisdiction, n := range stats.ByJurisdiction {
				fmt.Printf("  %-16s %d\n", jurisdiction, n)
			}

			records, err := e.store.ListDocuments(cmd.Context())
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Printf("%s  chunks=%d  tier=%s  indexed=%s\n",
					rec.Identity, rec.ChunkCount, rec.Tier, rec.IndexedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Index new and changed corpus documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(verbose)
			if err != nil {
				return err
			}
			if err := e.openStore(); err != nil {
				return err
			}
			defer e.store.Close()

			report, err := e.indexer().Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("scanned=%d indexed=%d skipped=%d removed=%d failed=%d in %s\n",
				report.Scanned, report.Indexed, report.Skipped, report.Removed,
				len(report.Failed), report.Duration.Round(time.Millisecond))
			for _, identity := range report.Failed {
				fmt.Printf("  failed: %s\n", identity)
			}
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete all indexed documents and vectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetBool("yes")
			if !confirm {
				fmt.Print("This deletes the whole index. Continue? [y/N] ")
				reader := bufio.NewReader(os.Stdin)
				line, _ := reader.ReadString('\n')
				if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y") {
					fmt.Println("aborted")
					return nil
				}
			}

			e, err := loadEnv(verbose)
			if err != nil {
				return err
			}
			if err := e.openStore(); err != nil {
				return err
			}
			defer e.store.Close()

			if err := e.store.Reset(); err != nil {
				return err
			}
			fmt.Println("index reset")
			return nil
		},
	}
	reset.Flags().Bool("yes", false, "skip confirmation")

	cmd.AddCommand(status, sync, reset)
	return cmd
}

func corpusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect the document corpus",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List corpus documents with parsed metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(false)
			if err != nil {
				return err
			}

			identities, err := corpus.New(e.cfg.CorpusDir).List()
			if err != nil {
				return err
			}
			for _, identity := range identities {
				info := metadata.Parse(identity, e.rules)
				fmt.Printf("%-60s  tier=%d  jurisdiction=%s\n", identity, info.Tier, info.Jurisdiction)
			}
			fmt.Printf("%d documents\n", len(identities))
			return nil
		},
	}

	cmd.AddCommand(list)
	return cmd
}

func askCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Answer a question from the indexed corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(verbose)
			if err != nil {
				return err
			}
			if err := e.cfg.Validate(); err != nil {
				return err
			}
			if err := e.openStore(); err != nil {
				return err
			}
			defer e.store.Close()

			client := llm.NewChatClient(e.cfg.LLMBaseURL, e.cfg.LLMAPIKey, e.cfg.LLMModel,
				llm.WithTemperature(e.cfg.LLMTemperature),
				llm.WithMaxTokens(e.cfg.LLMMaxTokens),
				llm.WithTimeout(e.cfg.LLMTimeout),
			)
			defer client.Close()

			c := corpus.New(e.cfg.CorpusDir)
			r := retriever.New(e.store, e.embedder, client, e.log)
			orch := pipeline.NewOrchestrator(client, r, e.indexer(), c, e.log)

			st := pipeline.NewState(args[0], "")
			if err := orch.Run(cmd.Context(), st); err != nil {
				return err
			}

			fmt.Println(st.Summary)
			if len(st.Citations) > 0 {
				fmt.Println("\nSources:")
				for _, cit := range st.Citations {
					fmt.Printf("  - %s, page %d (%s)\n", cit.Document, cit.Page, cit.Tier)
				}
			}
			if st.LowConfidence {
				fmt.Println("\nNote: low confidence, no matching jurisdiction sources.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
	return cmd
}
