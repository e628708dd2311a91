// Package retriever answers questions over the index: it searches,
// ranks by authority, extracts citations, and asks the language model
// to compose the answer from the retrieved passages.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lexarch/lexarch/internal/embedding"
	"github.com/lexarch/lexarch/internal/index"
	"github.com/lexarch/lexarch/internal/llm"
	"github.com/lexarch/lexarch/internal/metadata"
)

const (
	// Chunks kept after merging all sub-queries.
	topN = 8
	// MMR parameters for each sub-query.
	mmrK      = 12
	mmrFetchK = 20
	mmrLambda = 0.7
)

// Citation is a retrieval result packaged with its provenance for
// display and audit. Recomputed per query, never persisted.
type Citation struct {
	ChunkID          string        `json:"chunk_id"`
	Document         string        `json:"document"`
	Title            string        `json:"title,omitempty"`
	Tier             metadata.Tier `json:"tier"`
	Page             int           `json:"page"`
	Paragraph        int           `json:"paragraph"`
	Excerpt          string        `json:"excerpt"`
	Calculations     []string      `json:"calculations,omitempty"`
	AreaMeasurements []string      `json:"area_measurements,omitempty"`
}

// Result is the outcome of one retrieval round.
type Result struct {
	AnswerText    string     `json:"answer"`
	Citations     []Citation `json:"citations"`
	LowConfidence bool       `json:"low_confidence"`
	Degraded      bool       `json:"degraded,omitempty"`
}

// Retriever coordinates index search and answer generation.
type Retriever struct {
	store    *index.Store
	embedder embedding.Embedder
	llm      llm.Client
	log      *slog.Logger
}

func New(store *index.Store, embedder embedding.Embedder, client llm.Client, log *slog.Logger) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		llm:      client,
		log:      log,
	}
}

// Request describes one retrieval round.
type Request struct {
	Query string
	// Optional query variants searched alongside Query; results merge.
	Variants []string
	// Optional restriction to the selected documents.
	Candidates []string
	// Optional jurisdiction hint. When present and nothing matches, the
	// result is low-confidence, never silently widened.
	Jurisdictions []metadata.Jurisdiction
	// Extra context from earlier pipeline stages, prepended to the
	// generation prompt.
	Context string
}

// Retrieve runs search, ranking, and answer generation. It never
// returns an error: infrastructure failures produce a degraded Result
// with an explanatory answer, because this stage sits inside a pipeline
// that must always respond.
func (r *Retriever) Retrieve(ctx context.Context, req Request) Result {
	filter := index.Filter{
		Jurisdictions: req.Jurisdictions,
		Identities:    req.Candidates,
	}
	variants := req.Variants
	if variants == nil {
		variants = ExpandQuery(req.Query)
	}
	queries := append([]string{req.Query}, variants...)

	chunks, err := r.rankedSearch(ctx, queries, filter)
	if err != nil {
		r.log.Error("search failed", "error", err)
		return Result{
			AnswerText: "The document index is currently unavailable, so this question cannot be answered from the indexed sources. Please retry shortly.",
			Citations:  []Citation{},
			Degraded:   true,
		}
	}

	if len(chunks) == 0 {
		answer := "No indexed passages match this question."
		if len(req.Jurisdictions) > 0 {
			answer = fmt.Sprintf("No indexed passages from the requested jurisdiction (%s) match this question. Sources from other jurisdictions were not substituted.", joinJurisdictions(req.Jurisdictions))
		}
		return Result{
			AnswerText:    answer,
			Citations:     []Citation{},
			LowConfidence: true,
		}
	}

	citations := make([]Citation, len(chunks))
	for i, c := range chunks {
		citations[i] = citationFor(c)
	}

	answer, err := r.llm.Complete(ctx, AnswerSystemPrompt, answerPrompt(req, chunks))
	if err != nil {
		r.log.Error("answer generation failed", "error", err)
		return Result{
			AnswerText: "The retrieved sources could not be summarized because the language model is unavailable. Please retry shortly.",
			Citations:  []Citation{},
			Degraded:   true,
		}
	}

	return Result{
		AnswerText: strings.TrimSpace(answer),
		Citations:  citations,
	}
}

// Search exposes the ranked search as a callable tool with the exact
// semantics Retrieve uses internally, so repeated invocations are
// consistent.
func (r *Retriever) Search(ctx context.Context, query string, filter index.Filter) ([]index.ScoredChunk, error) {
	return r.rankedSearch(ctx, []string{query}, filter)
}

// rankedSearch runs all sub-queries concurrently, merges, sorts by
// (tier ascending, content length descending, chunk ID ascending),
// de-duplicates by exact chunk text, and truncates to topN. The merge
// is deterministic regardless of sub-query completion order.
func (r *Retriever) rankedSearch(ctx context.Context, queries []string, filter index.Filter) ([]index.ScoredChunk, error) {
	var mu sync.Mutex
	var merged []index.ScoredChunk

	g, gctx := errgroup.WithContext(ctx)
	for _, query := range queries {
		query := strings.TrimSpace(query)
		if query == "" {
			continue
		}
		g.Go(func() error {
			vec, err := r.embedder.Embed(gctx, query)
			if err != nil {
				return fmt.Errorf("embedding query: %w", err)
			}
			chunks, err := r.store.SearchMMR(gctx, vec, mmrK, mmrFetchK, mmrLambda, filter)
			if err != nil {
				return err
			}
			mu.Lock()
			merged = append(merged, chunks...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Sort before de-duplicating so the surviving copy of byte-identical
	// text is always the same one, independent of goroutine finish order.
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if len(a.Text) != len(b.Text) {
			return len(a.Text) > len(b.Text)
		}
		return a.ChunkID < b.ChunkID
	})

	seen := make(map[string]bool, len(merged))
	deduped := merged[:0]
	for _, c := range merged {
		if seen[c.Text] {
			continue
		}
		seen[c.Text] = true
		deduped = append(deduped, c)
	}

	if len(deduped) > topN {
		deduped = deduped[:topN]
	}
	return deduped, nil
}

func citationFor(c index.ScoredChunk) Citation {
	return Citation{
		ChunkID:          c.ChunkID,
		Document:         c.Identity,
		Title:            c.Title,
		Tier:             c.Tier,
		Page:             c.Page,
		Paragraph:        c.Paragraph,
		Excerpt:          excerpt(c.Text),
		Calculations:     DetectCalculations(c.Text),
		AreaMeasurements: DetectAreaMeasurements(c.Text),
	}
}

func joinJurisdictions(js []metadata.Jurisdiction) string {
	parts := make([]string, len(js))
	for i, j := range js {
		parts[i] = string(j)
	}
	return strings.Join(parts, ", ")
}
