// Package chunker splits parsed documents into bounded, overlapping text
// chunks with structural metadata, the unit of indexing and retrieval.
package chunker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lexarch/lexarch/internal/metadata"
	"github.com/lexarch/lexarch/internal/parser"
)

// Config controls chunking behavior. Sizes are in characters: legal
// formulas often span multiple sentences, so chunks stay small with a
// generous overlap to preserve calculation context across boundaries.
type Config struct {
	ChunkSize    int // Maximum chunk size in characters.
	ChunkOverlap int // Overlap between consecutive chunks of a page.
}

// DefaultConfig returns the defaults tuned for legal/technical text.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    800,
		ChunkOverlap: 300,
	}
}

// Chunk is a bounded span of a document's text plus its provenance.
// Immutable once created; ChunkID is stable across re-indexing of
// unchanged content.
type Chunk struct {
	ChunkID      string
	Identity     string
	Page         int
	Paragraph    int // 1-based chunk index within the page.
	Tier         metadata.Tier
	Jurisdiction metadata.Jurisdiction
	Title        string
	Text         string
}

// Split chunks a parsed document. Pure: no IO, deterministic for a given
// (identity, document, info, cfg).
func Split(identity string, doc *parser.Document, info metadata.Info, cfg Config) []Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 800
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 3
	}

	var chunks []Chunk
	for idx, page := range doc.Pages {
		pageNum := pageNumber(page.Label, idx)
		parts := splitText(page.Text, cfg.ChunkSize, cfg.ChunkOverlap)
		for n, part := range parts {
			chunks = append(chunks, Chunk{
				ChunkID:      ChunkID(identity, pageNum, n+1),
				Identity:     identity,
				Page:         pageNum,
				Paragraph:    n + 1,
				Tier:         info.Tier,
				Jurisdiction: info.Jurisdiction,
				Title:        doc.Title,
				Text:         part,
			})
		}
	}
	return chunks
}

// ChunkID derives the stable chunk identifier from a chunk's position.
func ChunkID(identity string, page, paragraph int) string {
	return fmt.Sprintf("%s_p%d_c%d", identity, page, paragraph)
}

// pageNumber prefers a human-readable page label when it parses as a
// positive integer, else converts the zero-based index to 1-based.
func pageNumber(label string, index int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(label)); err == nil && n >= 1 {
		return n
	}
	return index + 1
}

// splitText breaks text into chunks of at most maxChars with overlap,
// preferring paragraph boundaries, then sentence boundaries, then
// whitespace.
func splitText(text string, maxChars, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var result []string
	var current strings.Builder

	flush := func() string {
		s := strings.TrimSpace(current.String())
		if s != "" {
			result = append(result, s)
		}
		current.Reset()
		return s
	}

	appendPart := func(part string) {
		if current.Len() > 0 && current.Len()+len(part)+2 > maxChars {
			flushed := flush()
			tail := overlapTail(flushed, overlap)
			if tail != "" && len(tail)+len(part)+2 <= maxChars {
				current.WriteString(tail)
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(part)
	}

	for _, para := range splitByParagraphs(text) {
		if len(para) <= maxChars {
			appendPart(para)
			continue
		}
		// Paragraph too large: fall back to sentences, then words.
		for _, piece := range splitBySentences(para, maxChars, overlap) {
			appendPart(piece)
		}
	}
	flush()

	return result
}

// splitByParagraphs splits on blank lines.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitBySentences breaks an oversized paragraph into pieces of at most
// maxChars along sentence boundaries, with overlap between pieces.
func splitBySentences(text string, maxChars, overlap int) []string {
	sentences := splitSentences(text)

	var result []string
	var current strings.Builder

	for _, sent := range sentences {
		if len(sent) > maxChars {
			// Sentence alone exceeds the budget: flush and split on
			// whitespace as the last layer.
			if current.Len() > 0 {
				result = append(result, strings.TrimSpace(current.String()))
				current.Reset()
			}
			result = append(result, splitByWords(sent, maxChars, overlap)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(sent)+1 > maxChars {
			flushed := strings.TrimSpace(current.String())
			result = append(result, flushed)
			current.Reset()
			tail := overlapTail(flushed, overlap)
			if tail != "" && len(tail)+len(sent)+1 <= maxChars {
				current.WriteString(tail)
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}
	if current.Len() > 0 {
		result = append(result, strings.TrimSpace(current.String()))
	}

	return result
}

// splitSentences does basic sentence splitting on terminal punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?' || r == ';') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// splitByWords is the final fallback for text with no usable boundaries.
func splitByWords(text string, maxChars, overlap int) []string {
	words := strings.Fields(text)

	var result []string
	var current strings.Builder

	for _, word := range words {
		if current.Len() > 0 && current.Len()+len(word)+1 > maxChars {
			flushed := current.String()
			result = append(result, flushed)
			current.Reset()
			tail := overlapTail(flushed, overlap)
			if tail != "" && len(tail)+len(word)+1 <= maxChars {
				current.WriteString(tail)
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// overlapTail extracts up to overlap characters from the end of text,
// aligned to a word boundary.
func overlapTail(text string, overlap int) string {
	if overlap <= 0 || len(text) <= overlap {
		return ""
	}
	tail := text[len(text)-overlap:]
	if i := strings.IndexAny(tail, " \n\t"); i >= 0 {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}
