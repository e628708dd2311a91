package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/lexarch/lexarch/internal/chunker"
	"github.com/lexarch/lexarch/internal/metadata"
)

// ScoredChunk is a chunk returned from similarity search.
type ScoredChunk struct {
	ChunkID      string
	Identity     string
	Page         int
	Paragraph    int
	Tier         metadata.Tier
	Jurisdiction metadata.Jurisdiction
	Title        string
	Text         string
	Score        float64
}

// Filter restricts a search. Zero value matches everything.
type Filter struct {
	Jurisdictions []metadata.Jurisdiction
	Identities    []string      // restrict to these documents
	MaxTier       metadata.Tier // 0 means no tier bound.
}

func (f Filter) matches(identity string, jurisdiction metadata.Jurisdiction, tier metadata.Tier) bool {
	if f.MaxTier != 0 && tier > f.MaxTier {
		return false
	}
	if len(f.Identities) > 0 {
		found := false
		for _, id := range f.Identities {
			if id == identity {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Jurisdictions) == 0 {
		return true
	}
	for _, j := range f.Jurisdictions {
		if j == jurisdiction {
			return true
		}
	}
	return false
}

// ReplaceDocument atomically replaces all chunks of a document with the
// given chunks and their embeddings. Vectors are written before the
// registry commit, never after.
func (s *Store) ReplaceDocument(ctx context.Context, identity string, chunks []chunker.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE identity = ?", identity); err != nil {
		return fmt.Errorf("clearing chunks of %s: %w", identity, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (chunk_id, identity, page, paragraph, tier, jurisdiction, title, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, c.Identity, c.Page, c.Paragraph,
			int(c.Tier), string(c.Jurisdiction), c.Title, c.Text, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ChunkID, err)
		}
	}

	return tx.Commit()
}

// Search returns the k chunks most similar to the query vector, best
// first, restricted by filter. Brute-force cosine over all candidate
// rows; corpus sizes here are tens of thousands of chunks, well within
// a single scan.
func (s *Store) Search(ctx context.Context, query []float32, k int, filter Filter) ([]ScoredChunk, error) {
	candidates, err := s.scanChunks(ctx, query, filter)
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].chunk.Score > candidates[j].chunk.Score
	})
	if k > len(candidates) {
		k = len(candidates)
	}

	result := make([]ScoredChunk, 0, k)
	for _, c := range candidates[:k] {
		result = append(result, c.chunk)
	}
	return result, nil
}

// SearchMMR runs maximal-marginal-relevance search: from the fetchK
// most similar chunks it greedily picks k that balance query relevance
// against redundancy with already-picked chunks. lambda 1.0 is pure
// relevance, 0.0 pure diversity.
func (s *Store) SearchMMR(ctx context.Context, query []float32, k int, fetchK int, lambda float64, filter Filter) ([]ScoredChunk, error) {
	if fetchK < k {
		fetchK = k
	}
	candidates, err := s.scanChunks(ctx, query, filter)
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].chunk.Score > candidates[j].chunk.Score
	})
	if fetchK > len(candidates) {
		fetchK = len(candidates)
	}
	pool := candidates[:fetchK]

	var selected []scoredCandidate
	remaining := make([]scoredCandidate, len(pool))
	copy(remaining, pool)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			redundancy := 0.0
			for _, sel := range selected {
				if sim := cosine(cand.vector, sel.vector); sim > redundancy {
					redundancy = sim
				}
			}
			score := lambda*cand.chunk.Score - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	result := make([]ScoredChunk, 0, len(selected))
	for _, c := range selected {
		result = append(result, c.chunk)
	}
	return result, nil
}

// Stats summarizes index contents.
type Stats struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	ByJurisdiction map[string]int `json:"by_jurisdiction"`
	ByTier         map[string]int `json:"by_tier"`
}

// IndexStats reports document and chunk counts.
func (s *Store) IndexStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByJurisdiction: map[string]int{},
		ByTier:         map[string]int{},
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return stats, fmt.Errorf("counting documents: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return stats, fmt.Errorf("counting chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT jurisdiction, COUNT(*) FROM documents GROUP BY jurisdiction")
	if err != nil {
		return stats, fmt.Errorf("counting by jurisdiction: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var j string
		var n int
		if err := rows.Scan(&j, &n); err != nil {
			return stats, err
		}
		stats.ByJurisdiction[j] = n
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	tierRows, err := s.db.QueryContext(ctx, "SELECT tier, COUNT(*) FROM documents GROUP BY tier")
	if err != nil {
		return stats, fmt.Errorf("counting by tier: %w", err)
	}
	defer tierRows.Close()
	for tierRows.Next() {
		var tier, n int
		if err := tierRows.Scan(&tier, &n); err != nil {
			return stats, err
		}
		stats.ByTier[metadata.Tier(tier).String()] = n
	}
	return stats, tierRows.Err()
}

type scoredCandidate struct {
	chunk  ScoredChunk
	vector []float32
}

func (s *Store) scanChunks(ctx context.Context, query []float32, filter Filter) ([]scoredCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, identity, page, paragraph, tier, jurisdiction, title, content, embedding
		FROM chunks
	`)
	if err != nil {
		return nil, fmt.Errorf("scanning chunks: %w", err)
	}
	defer rows.Close()

	var candidates []scoredCandidate
	for rows.Next() {
		var c ScoredChunk
		var tier int
		var jurisdiction string
		var blob []byte
		if err := rows.Scan(&c.ChunkID, &c.Identity, &c.Page, &c.Paragraph,
			&tier, &jurisdiction, &c.Title, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Tier = metadata.Tier(tier)
		c.Jurisdiction = metadata.Jurisdiction(jurisdiction)
		if !filter.matches(c.Identity, c.Jurisdiction, c.Tier) {
			continue
		}

		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ChunkID, err)
		}
		if len(vec) != len(query) {
			return nil, fmt.Errorf("chunk %s: dimension %d, query %d", c.ChunkID, len(vec), len(query))
		}
		c.Score = cosine(query, vec)
		candidates = append(candidates, scoredCandidate{chunk: c, vector: vec})
	}
	return candidates, rows.Err()
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding blob of %d bytes", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
