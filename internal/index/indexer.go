package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lexarch/lexarch/internal/chunker"
	"github.com/lexarch/lexarch/internal/corpus"
	"github.com/lexarch/lexarch/internal/embedding"
	"github.com/lexarch/lexarch/internal/llm"
	"github.com/lexarch/lexarch/internal/metadata"
	"github.com/lexarch/lexarch/internal/parser"
)

// Indexer keeps the index in sync with the corpus directory. Concurrent
// requests to index the same document coalesce into one write.
type Indexer struct {
	corpus   *corpus.Corpus
	store    *Store
	embedder embedding.Embedder
	rules    metadata.Rules
	chunking chunker.Config
	pdf      *parser.PDFParser
	log      *slog.Logger

	group singleflight.Group
}

func NewIndexer(c *corpus.Corpus, store *Store, embedder embedding.Embedder, rules metadata.Rules, chunking chunker.Config, log *slog.Logger) *Indexer {
	return &Indexer{
		corpus:   c,
		store:    store,
		embedder: embedder,
		rules:    rules,
		chunking: chunking,
		pdf:      &parser.PDFParser{FallbackPdftotext: true},
		log:      log,
	}
}

// SetPDFFallback toggles the pdftotext fallback for PDFs the pure-Go
// reader cannot handle.
func (ix *Indexer) SetPDFFallback(enabled bool) {
	ix.pdf.FallbackPdftotext = enabled
}

// SyncReport summarizes one sync pass over the corpus.
type SyncReport struct {
	Scanned  int           `json:"scanned"`
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Removed  int           `json:"removed"`
	Failed   []string      `json:"failed,omitempty"`
	Duration time.Duration `json:"-"`
}

// Sync walks the corpus, indexes new and changed documents, and removes
// registry entries whose files disappeared. A document that fails to
// read, parse, or embed is logged and skipped; the pass continues.
func (ix *Indexer) Sync(ctx context.Context) (SyncReport, error) {
	start := time.Now()
	var report SyncReport

	identities, err := ix.corpus.List()
	if err != nil {
		return report, fmt.Errorf("listing corpus: %w", err)
	}
	report.Scanned = len(identities)

	present := make(map[string]bool, len(identities))
	for _, identity := range identities {
		present[identity] = true

		if err := ctx.Err(); err != nil {
			return report, err
		}

		indexed, err := ix.EnsureIndexed(ctx, identity)
		if err != nil {
			ix.log.Warn("skipping document", "identity", identity, "error", err)
			report.Failed = append(report.Failed, identity)
			continue
		}
		if indexed {
			report.Indexed++
		} else {
			report.Skipped++
		}
	}

	// Drop registry entries for files no longer on disk.
	records, err := ix.store.ListDocuments(ctx)
	if err != nil {
		return report, err
	}
	for _, rec := range records {
		if present[rec.Identity] {
			continue
		}
		if err := ix.store.DeleteDocument(ctx, rec.Identity); err != nil {
			ix.log.Warn("failed to remove stale document", "identity", rec.Identity, "error", err)
			continue
		}
		ix.log.Info("removed stale document", "identity", rec.Identity)
		report.Removed++
	}

	report.Duration = time.Since(start)
	ix.log.Info("index sync complete",
		"scanned", report.Scanned,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"removed", report.Removed,
		"failed", len(report.Failed),
		"duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// EnsureIndexed indexes the document when its content changed since the
// last commit. Returns true when a (re)index happened. Calls for the
// same identity are single-flight: one writer, others wait and share
// the result. The shared work runs detached from any single caller's
// context, so one cancelled request does not fail the waiters; each
// caller still honors its own cancellation while waiting.
func (ix *Indexer) EnsureIndexed(ctx context.Context, identity string) (bool, error) {
	ch := ix.group.DoChan(identity, func() (any, error) {
		return ix.indexOne(context.WithoutCancel(ctx), identity)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func (ix *Indexer) indexOne(ctx context.Context, identity string) (bool, error) {
	st, err := ix.corpus.Stat(identity)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	f, err := ix.corpus.Open(identity)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	fp, err := ComputeFingerprint(f, st.Size(), st.ModTime())
	f.Close()
	if err != nil {
		return false, err
	}

	needed, err := ix.store.NeedsReindex(ctx, identity, fp)
	if err != nil {
		return false, err
	}
	if !needed {
		return false, nil
	}

	doc, err := ix.parse(identity)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	info := metadata.Parse(identity, ix.rules)
	chunks := chunker.Split(identity, doc, info, ix.chunking)
	if len(chunks) == 0 {
		return false, fmt.Errorf("%w: no text content", ErrUnreadableDocument)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedBatch(ctx, texts)
	if err != nil {
		return false, fmt.Errorf("embedding %s: %w", identity, err)
	}

	// Vectors first, registry commit second. A crash between the two
	// re-indexes on the next sync instead of serving a stale document.
	if err := ix.store.ReplaceDocument(ctx, identity, chunks, vectors); err != nil {
		return false, err
	}
	if err := ix.store.Commit(ctx, identity, fp, info, len(chunks)); err != nil {
		return false, err
	}

	ix.log.Info("indexed document",
		"identity", identity,
		"tier", info.Tier.String(),
		"jurisdiction", string(info.Jurisdiction),
		"chunks", len(chunks))
	return true, nil
}

func (ix *Indexer) parse(identity string) (*parser.Document, error) {
	p, err := parser.ForFile(identity)
	if err != nil {
		return nil, err
	}
	if _, ok := p.(*parser.PDFParser); ok {
		p = ix.pdf
	}
	f, err := ix.corpus.Open(identity)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(f, identity)
}

// embedBatch retries transient provider failures with backoff before
// giving up on the document.
func (ix *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= llm.MaxRetries; attempt++ {
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			return nil, err
		}
		ix.log.Warn("retryable embedding error", "attempt", attempt, "error", err)
		select {
		case <-time.After(llm.Backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
