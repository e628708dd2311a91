package index

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexarch/lexarch/internal/metadata"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fingerprintOf(t *testing.T, content string) Fingerprint {
	t.Helper()
	fp, err := ComputeFingerprint(strings.NewReader(content), int64(len(content)), time.Now())
	require.NoError(t, err)
	return fp
}

func TestFingerprintEqualIgnoresMTime(t *testing.T) {
	a, err := ComputeFingerprint(strings.NewReader("inhalt"), 6, time.Unix(1000, 0))
	require.NoError(t, err)
	b, err := ComputeFingerprint(strings.NewReader("inhalt"), 6, time.Unix(9999, 0))
	require.NoError(t, err)

	assert.True(t, a.Equal(b), "mtime must not affect equality")
	assert.NotEqual(t, a.MTime, b.MTime)
}

func TestFingerprintSensitiveToContent(t *testing.T) {
	a := fingerprintOf(t, "version eins")
	b := fingerprintOf(t, "version zwei")
	assert.False(t, a.Equal(b))
}

func TestNeedsReindexUnknownDocument(t *testing.T) {
	s := openTestStore(t)
	needed, err := s.NeedsReindex(context.Background(), "vienna/1_bo.pdf", fingerprintOf(t, "x"))
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestCommitThenUnchangedSkips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fp := fingerprintOf(t, "gesetzestext")
	info := metadata.Info{Tier: metadata.TierLawOrRegulation, Jurisdiction: metadata.JurisdictionVienna, Title: "BO"}

	require.NoError(t, s.Commit(ctx, "vienna/1_bo.pdf", fp, info, 12))

	needed, err := s.NeedsReindex(ctx, "vienna/1_bo.pdf", fp)
	require.NoError(t, err)
	assert.False(t, needed)

	changed := fingerprintOf(t, "gesetzestext novelliert")
	needed, err = s.NeedsReindex(ctx, "vienna/1_bo.pdf", changed)
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestGetDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fp := fingerprintOf(t, "text")
	info := metadata.Info{Tier: metadata.TierStandard, Jurisdiction: metadata.JurisdictionFederal, Title: "ÖNORM B 1600", Year: 2020}

	require.NoError(t, s.Commit(ctx, "federal/3_oenorm.pdf", fp, info, 4))

	rec, err := s.GetDocument(ctx, "federal/3_oenorm.pdf")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, metadata.TierStandard, rec.Tier)
	assert.Equal(t, metadata.JurisdictionFederal, rec.Jurisdiction)
	assert.Equal(t, "ÖNORM B 1600", rec.Title)
	assert.Equal(t, 2020, rec.Year)
	assert.Equal(t, 4, rec.ChunkCount)
	assert.True(t, fp.Equal(rec.Fingerprint))

	missing, err := s.GetDocument(ctx, "nope.pdf")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCommitWithoutYearListsCleanly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	info := metadata.Parse("wien/1_bauordnung.txt", metadata.DefaultRules())
	require.Zero(t, info.Year)

	require.NoError(t, s.Commit(ctx, "wien/1_bauordnung.txt", fingerprintOf(t, "text"), info, 1))

	recs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Zero(t, recs[0].Year)

	rec, err := s.GetDocument(ctx, "wien/1_bauordnung.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.Year)
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insertTestChunks(t, s, "doc.txt", []string{"erster chunk", "zweiter chunk"})
	require.NoError(t, s.Commit(ctx, "doc.txt", fingerprintOf(t, "x"), metadata.Info{Tier: metadata.TierUnknown, Jurisdiction: metadata.JurisdictionUnknown}, 2))

	require.NoError(t, s.DeleteDocument(ctx, "doc.txt"))

	stats, err := s.IndexStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Zero(t, stats.Chunks)
}

func TestEnsureEmbedderResetOnChange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	reset, err := s.EnsureEmbedder("model-a", 64)
	require.NoError(t, err)
	assert.False(t, reset, "first run is not a change")

	insertTestChunks(t, s, "doc.txt", []string{"inhalt"})
	require.NoError(t, s.Commit(ctx, "doc.txt", fingerprintOf(t, "x"), metadata.Info{Tier: metadata.TierUnknown, Jurisdiction: metadata.JurisdictionUnknown}, 1))

	reset, err = s.EnsureEmbedder("model-a", 64)
	require.NoError(t, err)
	assert.False(t, reset, "same model keeps the index")

	reset, err = s.EnsureEmbedder("model-b", 64)
	require.NoError(t, err)
	assert.True(t, reset, "model change drops the index")

	stats, err := s.IndexStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
}
