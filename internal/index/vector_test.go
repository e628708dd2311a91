package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexarch/lexarch/internal/chunker"
	"github.com/lexarch/lexarch/internal/embedding"
	"github.com/lexarch/lexarch/internal/metadata"
)

var testEmbedder = embedding.NewHashEmbedder(128)

// insertTestChunks embeds texts with the hash embedder and writes them
// as chunks of the given document.
func insertTestChunks(t *testing.T, s *Store, identity string, texts []string, opts ...func(*chunker.Chunk)) {
	t.Helper()
	ctx := context.Background()

	chunks := make([]chunker.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = chunker.Chunk{
			ChunkID:      fmt.Sprintf("%s_p1_c%d", identity, i+1),
			Identity:     identity,
			Page:         1,
			Paragraph:    i + 1,
			Tier:         metadata.TierUnknown,
			Jurisdiction: metadata.JurisdictionUnknown,
			Text:         text,
		}
		for _, opt := range opts {
			opt(&chunks[i])
		}
	}
	vectors, err := testEmbedder.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceDocument(ctx, identity, chunks, vectors))
}

func withTier(tier metadata.Tier) func(*chunker.Chunk) {
	return func(c *chunker.Chunk) { c.Tier = tier }
}

func withJurisdiction(j metadata.Jurisdiction) func(*chunker.Chunk) {
	return func(c *chunker.Chunk) { c.Jurisdiction = j }
}

func queryVec(t *testing.T, text string) []float32 {
	t.Helper()
	vec, err := testEmbedder.Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func TestSearchRanksBySimilarity(t *testing.T) {
	s := openTestStore(t)
	insertTestChunks(t, s, "doc.txt", []string{
		"Stellplatzverpflichtung für Wohngebäude im Bauland",
		"Brandschutz in Tiefgaragen und Sammelgaragen",
		"Gänzlich anderes Thema ohne Bezug",
	})

	results, err := s.Search(context.Background(), queryVec(t, "Stellplatzverpflichtung Wohngebäude"), 2, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Text, "Stellplatzverpflichtung")
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchJurisdictionFilter(t *testing.T) {
	s := openTestStore(t)
	insertTestChunks(t, s, "vienna/doc.txt", []string{"Abstandsregeln für Bauplätze"}, withJurisdiction(metadata.JurisdictionVienna))
	insertTestChunks(t, s, "federal/doc.txt", []string{"Abstandsregeln für Bauplätze"}, withJurisdiction(metadata.JurisdictionFederal))

	results, err := s.Search(context.Background(), queryVec(t, "Abstandsregeln"), 10, Filter{
		Jurisdictions: []metadata.Jurisdiction{metadata.JurisdictionVienna},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, metadata.JurisdictionVienna, results[0].Jurisdiction)
}

func TestSearchEmptyFilterResult(t *testing.T) {
	s := openTestStore(t)
	insertTestChunks(t, s, "vienna/doc.txt", []string{"Wiener Regelung"}, withJurisdiction(metadata.JurisdictionVienna))

	results, err := s.Search(context.Background(), queryVec(t, "Regelung"), 10, Filter{
		Jurisdictions: []metadata.Jurisdiction{metadata.JurisdictionUpperAustria},
	})
	require.NoError(t, err)
	assert.Empty(t, results, "no cross-jurisdiction fallback")
}

func TestSearchMaxTierFilter(t *testing.T) {
	s := openTestStore(t)
	insertTestChunks(t, s, "1_gesetz.txt", []string{"Bauordnung Regelung"}, withTier(metadata.TierLawOrRegulation))
	insertTestChunks(t, s, "4_notiz.txt", []string{"Bauordnung Regelung"}, withTier(metadata.TierUnknown))

	results, err := s.Search(context.Background(), queryVec(t, "Bauordnung"), 10, Filter{
		MaxTier: metadata.TierStandard,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, metadata.TierLawOrRegulation, results[0].Tier)
}

func TestReplaceDocumentReplacesOldChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insertTestChunks(t, s, "doc.txt", []string{"alte fassung eins", "alte fassung zwei", "alte fassung drei"})
	insertTestChunks(t, s, "doc.txt", []string{"neue fassung"})

	stats, err := s.IndexStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)

	results, err := s.Search(ctx, queryVec(t, "fassung"), 10, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "neue fassung", results[0].Text)
}

func TestSearchMMRPrefersDiversity(t *testing.T) {
	s := openTestStore(t)
	insertTestChunks(t, s, "doc.txt", []string{
		"Stellplatz Stellplatz Stellplatz Verpflichtung",
		"Stellplatz Stellplatz Stellplatz Verpflichtung Bauland",
		"Fahrradabstellplätze bei Wohngebäuden Verpflichtung",
	})

	// Pure relevance would pick the two near-duplicates; MMR should
	// bring in the bicycle chunk.
	results, err := s.SearchMMR(context.Background(), queryVec(t, "Stellplatz Verpflichtung"), 2, 3, 0.3, Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	texts := []string{results[0].Text, results[1].Text}
	assert.Contains(t, texts[0]+texts[1], "Fahrrad")
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 0, 3.75}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestIndexStatsBreakdown(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	insertTestChunks(t, s, "vienna/1_bo.txt", []string{"a", "b"}, withJurisdiction(metadata.JurisdictionVienna), withTier(metadata.TierLawOrRegulation))
	require.NoError(t, s.Commit(ctx, "vienna/1_bo.txt", fingerprintOf(t, "x"),
		metadata.Info{Tier: metadata.TierLawOrRegulation, Jurisdiction: metadata.JurisdictionVienna}, 2))

	stats, err := s.IndexStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 1, stats.ByJurisdiction[string(metadata.JurisdictionVienna)])
	assert.Equal(t, 1, stats.ByTier[metadata.TierLawOrRegulation.String()])
}
