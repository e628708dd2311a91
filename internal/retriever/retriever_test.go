package retriever

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexarch/lexarch/internal/chunker"
	"github.com/lexarch/lexarch/internal/embedding"
	"github.com/lexarch/lexarch/internal/index"
	"github.com/lexarch/lexarch/internal/llm"
	"github.com/lexarch/lexarch/internal/metadata"
)

type scriptedLLM struct {
	reply      string
	err        error
	lastPrompt string
}

func (s *scriptedLLM) Complete(_ context.Context, _, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type failingEmbedder struct {
	embedding.Embedder
}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, &llm.RetryableError{StatusCode: 503, Message: "embedding backend down"}
}

var hashEmbedder = embedding.NewHashEmbedder(128)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type seedChunk struct {
	identity     string
	text         string
	tier         metadata.Tier
	jurisdiction metadata.Jurisdiction
}

func seedStore(t *testing.T, seeds []seedChunk) *index.Store {
	t.Helper()
	s, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	byDoc := map[string][]seedChunk{}
	for _, seed := range seeds {
		byDoc[seed.identity] = append(byDoc[seed.identity], seed)
	}
	for identity, docSeeds := range byDoc {
		chunks := make([]chunker.Chunk, len(docSeeds))
		texts := make([]string, len(docSeeds))
		for i, seed := range docSeeds {
			chunks[i] = chunker.Chunk{
				ChunkID:      fmt.Sprintf("%s_p1_c%d", identity, i+1),
				Identity:     identity,
				Page:         1,
				Paragraph:    i + 1,
				Tier:         seed.tier,
				Jurisdiction: seed.jurisdiction,
				Text:         seed.text,
			}
			texts[i] = seed.text
		}
		vectors, err := hashEmbedder.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		require.NoError(t, s.ReplaceDocument(ctx, identity, chunks, vectors))
	}
	return s
}

func TestRetrieveProducesAnswerWithCitations(t *testing.T) {
	store := seedStore(t, []seedChunk{
		{"wien/1_bo.pdf", "Die Wohnnutzfläche beträgt 100 m² zuzüglich 10 m², insgesamt 100 + 10 = 110 Quadratmeter.", metadata.TierLawOrRegulation, metadata.JurisdictionVienna},
		{"wien/3_norm.pdf", "Technische Ausführung von Stellplätzen und Rampen.", metadata.TierStandard, metadata.JurisdictionVienna},
	})
	mock := &scriptedLLM{reply: "Die Gesamtfläche beträgt 110 m² (wien/1_bo.pdf, Seite 1)."}
	r := New(store, hashEmbedder, mock, testLogger())

	result := r.Retrieve(context.Background(), Request{Query: "Wie groß ist die Wohnnutzfläche insgesamt?"})

	assert.False(t, result.Degraded)
	assert.False(t, result.LowConfidence)
	assert.Contains(t, result.AnswerText, "110")
	require.NotEmpty(t, result.Citations)

	top := result.Citations[0]
	assert.Equal(t, metadata.TierLawOrRegulation, top.Tier, "law ranks before standard")
	assert.Contains(t, top.Calculations, "100 + 10 = 110")
	assert.Contains(t, top.AreaMeasurements, "100 m²")
	assert.Contains(t, top.AreaMeasurements, "10 m²")
	assert.LessOrEqual(t, len(top.Excerpt), 200)

	assert.Contains(t, mock.lastPrompt, "Wohnnutzfläche", "prompt carries source passages")
}

func TestRetrieveAuthorityOrdering(t *testing.T) {
	// The standard's chunk is longer, but the law must rank first.
	store := seedStore(t, []seedChunk{
		{"4_notiz.txt", "Stellplatzverpflichtung " + strings.Repeat("Anmerkung zur Stellplatzverpflichtung. ", 10), metadata.TierUnknown, metadata.JurisdictionUnknown},
		{"1_gesetz.txt", "Stellplatzverpflichtung besteht je angefangene 100 m² Wohnnutzfläche.", metadata.TierLawOrRegulation, metadata.JurisdictionVienna},
	})
	r := New(store, hashEmbedder, &scriptedLLM{reply: "ok"}, testLogger())

	result := r.Retrieve(context.Background(), Request{Query: "Stellplatzverpflichtung"})
	require.GreaterOrEqual(t, len(result.Citations), 2)
	assert.Equal(t, "1_gesetz.txt", result.Citations[0].Document)
	assert.Equal(t, "4_notiz.txt", result.Citations[1].Document)
}

func TestRetrieveDeduplicatesAcrossVariants(t *testing.T) {
	store := seedStore(t, []seedChunk{
		{"doc.txt", "Stellplatzverpflichtung im Bauland je Wohneinheit.", metadata.TierGuideline, metadata.JurisdictionFederal},
	})
	r := New(store, hashEmbedder, &scriptedLLM{reply: "ok"}, testLogger())

	result := r.Retrieve(context.Background(), Request{
		Query:    "Stellplatzverpflichtung Bauland",
		Variants: []string{"Stellplätze je Wohneinheit", "Pflicht Stellplatz Wohnung"},
	})

	texts := map[string]int{}
	for _, c := range result.Citations {
		texts[c.ChunkID]++
	}
	for chunkID, n := range texts {
		assert.Equal(t, 1, n, "chunk %s cited more than once", chunkID)
	}
}

func TestRetrieveDuplicateTextKeepsHighestAuthority(t *testing.T) {
	// Identical boilerplate text under two identities: the surviving
	// citation must always be the law, never the unknown-tier copy.
	boilerplate := "Stellplatzverpflichtung besteht je angefangene 100 m² Wohnnutzfläche."
	store := seedStore(t, []seedChunk{
		{"4_kopie.txt", boilerplate, metadata.TierUnknown, metadata.JurisdictionUnknown},
		{"1_gesetz.txt", boilerplate, metadata.TierLawOrRegulation, metadata.JurisdictionVienna},
	})
	r := New(store, hashEmbedder, &scriptedLLM{reply: "ok"}, testLogger())

	for i := 0; i < 20; i++ {
		result := r.Retrieve(context.Background(), Request{
			Query:    "Stellplatzverpflichtung",
			Variants: []string{"Stellplätze Wohnnutzfläche", "Pflicht Stellplatz"},
		})
		require.Len(t, result.Citations, 1)
		assert.Equal(t, "1_gesetz.txt", result.Citations[0].Document)
		assert.Equal(t, metadata.TierLawOrRegulation, result.Citations[0].Tier)
	}
}

func TestRetrieveJurisdictionMismatchIsLowConfidence(t *testing.T) {
	store := seedStore(t, []seedChunk{
		{"wien/1_bo.pdf", "Wiener Regelung zur Bauklasse.", metadata.TierLawOrRegulation, metadata.JurisdictionVienna},
	})
	mock := &scriptedLLM{reply: "should not be called"}
	r := New(store, hashEmbedder, mock, testLogger())

	result := r.Retrieve(context.Background(), Request{
		Query:         "Bauklasse Regelung",
		Jurisdictions: []metadata.Jurisdiction{metadata.JurisdictionUpperAustria},
	})

	assert.True(t, result.LowConfidence)
	assert.Empty(t, result.Citations)
	assert.Contains(t, result.AnswerText, string(metadata.JurisdictionUpperAustria))
	assert.Empty(t, mock.lastPrompt, "no generation without matching sources")
}

func TestRetrieveEmbeddingOutageDegrades(t *testing.T) {
	store := seedStore(t, nil)
	r := New(store, failingEmbedder{}, &scriptedLLM{reply: "unused"}, testLogger())

	result := r.Retrieve(context.Background(), Request{Query: "irgendwas"})
	assert.True(t, result.Degraded)
	assert.Empty(t, result.Citations)
	assert.NotEmpty(t, result.AnswerText)
}

func TestRetrieveGenerationOutageDegrades(t *testing.T) {
	store := seedStore(t, []seedChunk{
		{"doc.txt", "Inhalt zur Frage.", metadata.TierGuideline, metadata.JurisdictionFederal},
	})
	mock := &scriptedLLM{err: &llm.RetryableError{StatusCode: 500, Message: "down"}}
	r := New(store, hashEmbedder, mock, testLogger())

	result := r.Retrieve(context.Background(), Request{Query: "Frage zum Inhalt"})
	assert.True(t, result.Degraded)
	assert.Empty(t, result.Citations)
	assert.NotEmpty(t, result.AnswerText)
}

func TestSearchToolMatchesRetrieveSemantics(t *testing.T) {
	store := seedStore(t, []seedChunk{
		{"1_gesetz.txt", "Stellplatzverpflichtung besteht je angefangene 100 m² Wohnnutzfläche.", metadata.TierLawOrRegulation, metadata.JurisdictionVienna},
		{"4_notiz.txt", "Stellplatzverpflichtung Anmerkung.", metadata.TierUnknown, metadata.JurisdictionUnknown},
	})
	r := New(store, hashEmbedder, &scriptedLLM{reply: "ok"}, testLogger())
	ctx := context.Background()

	first, err := r.Search(ctx, "Stellplatzverpflichtung", index.Filter{})
	require.NoError(t, err)
	second, err := r.Search(ctx, "Stellplatzverpflichtung", index.Filter{})
	require.NoError(t, err)

	assert.Equal(t, first, second, "repeated tool calls rank identically")
	require.NotEmpty(t, first)
	assert.Equal(t, metadata.TierLawOrRegulation, first[0].Tier)
}
