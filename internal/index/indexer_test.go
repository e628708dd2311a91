package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexarch/lexarch/internal/chunker"
	"github.com/lexarch/lexarch/internal/corpus"
	"github.com/lexarch/lexarch/internal/embedding"
	"github.com/lexarch/lexarch/internal/metadata"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIndexer(t *testing.T, root string) (*Indexer, *Store) {
	t.Helper()
	s := openTestStore(t)
	ix := NewIndexer(corpus.New(root), s, testEmbedder, metadata.DefaultRules(), chunker.DefaultConfig(), testLogger())
	return ix, s
}

func writeCorpusFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSyncIndexesNewDocuments(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "wien/1_bauordnung.txt", "Stellplatzverpflichtung im Bauland besteht je Wohnung.")
	writeCorpusFile(t, root, "bundesgesetze/3_oenorm.txt", "Barrierefreie Rampen haben eine maximale Neigung.")

	ix, s := newTestIndexer(t, root)
	ctx := context.Background()

	report, err := ix.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Indexed)
	assert.Zero(t, report.Skipped)
	assert.Empty(t, report.Failed)

	rec, err := s.GetDocument(ctx, "wien/1_bauordnung.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, metadata.TierLawOrRegulation, rec.Tier)
	assert.Equal(t, metadata.JurisdictionVienna, rec.Jurisdiction)
	assert.Positive(t, rec.ChunkCount)
}

func TestSyncIdempotent(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "doc.txt", "Unveränderter Inhalt.")

	ix, _ := newTestIndexer(t, root)
	ctx := context.Background()

	first, err := ix.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Indexed)

	second, err := ix.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Indexed)
	assert.Equal(t, 1, second.Skipped)
}

func TestSyncReindexesChangedContent(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "doc.txt", "Erste Fassung der Regelung.")

	ix, s := newTestIndexer(t, root)
	ctx := context.Background()

	_, err := ix.Sync(ctx)
	require.NoError(t, err)

	writeCorpusFile(t, root, "doc.txt", "Zweite Fassung der Regelung mit neuem Inhalt.")

	report, err := ix.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)

	results, err := s.Search(ctx, queryVec(t, "Fassung Regelung"), 10, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotContains(t, r.Text, "Erste Fassung")
	}
}

func TestSyncRemovesDeletedDocuments(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "a.txt", "Dokument A bleibt bestehen.")
	writeCorpusFile(t, root, "b.txt", "Dokument B wird gelöscht.")

	ix, s := newTestIndexer(t, root)
	ctx := context.Background()

	_, err := ix.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))

	report, err := ix.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	rec, err := s.GetDocument(ctx, "b.txt")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSyncSkipsEmptyDocumentAndContinues(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "empty.txt", "   \n\n  ")
	writeCorpusFile(t, root, "good.txt", "Brauchbarer Inhalt für den Index.")

	ix, s := newTestIndexer(t, root)
	ctx := context.Background()

	report, err := ix.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, []string{"empty.txt"}, report.Failed)

	rec, err := s.GetDocument(ctx, "good.txt")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestEnsureIndexedTouchAloneDoesNotReindex(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "doc.txt", "Inhalt bleibt gleich.")

	ix, _ := newTestIndexer(t, root)
	ctx := context.Background()

	indexed, err := ix.EnsureIndexed(ctx, "doc.txt")
	require.NoError(t, err)
	assert.True(t, indexed)

	// Same bytes, new mtime.
	writeCorpusFile(t, root, "doc.txt", "Inhalt bleibt gleich.")

	indexed, err = ix.EnsureIndexed(ctx, "doc.txt")
	require.NoError(t, err)
	assert.False(t, indexed)
}

// gatedEmbedder signals when the first EmbedBatch starts and blocks it
// until released, so tests can interleave concurrent callers.
type gatedEmbedder struct {
	embedding.Embedder
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.Embedder.EmbedBatch(ctx, texts)
}

func TestEnsureIndexedCancelledCallerDoesNotFailWaiter(t *testing.T) {
	root := t.TempDir()
	writeCorpusFile(t, root, "doc.txt", "Geteilter Inhalt für beide Aufrufer.")

	emb := &gatedEmbedder{Embedder: testEmbedder, started: make(chan struct{}), release: make(chan struct{})}
	s := openTestStore(t)
	ix := NewIndexer(corpus.New(root), s, emb, metadata.DefaultRules(), chunker.DefaultConfig(), testLogger())

	cancelCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := ix.EnsureIndexed(cancelCtx, "doc.txt")
		firstErr <- err
	}()
	<-emb.started

	waiterErr := make(chan error, 1)
	go func() {
		_, err := ix.EnsureIndexed(context.Background(), "doc.txt")
		waiterErr <- err
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(emb.release)
	require.NoError(t, <-waiterErr, "waiter with a live context must not inherit the cancellation")

	rec, err := s.GetDocument(context.Background(), "doc.txt")
	require.NoError(t, err)
	assert.NotNil(t, rec, "the shared index write still completes")
}

func TestEnsureIndexedMissingFile(t *testing.T) {
	ix, _ := newTestIndexer(t, t.TempDir())
	_, err := ix.EnsureIndexed(context.Background(), "fehlt.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreadableDocument)
}
