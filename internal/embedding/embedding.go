// Package embedding turns text into dense vectors for similarity search.
package embedding

import "context"

// Embedder produces fixed-dimension vectors for texts. All vectors from
// one Embedder have the same dimension; Name identifies the model so the
// index can detect a model change.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}
