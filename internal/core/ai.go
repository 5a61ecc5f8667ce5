package core

import "context"

// EmbeddingProvider turns texts into fixed-dimensional vectors. A nil
// provider means degraded mode: ingestion skips embedding and search
// falls back to lexical matching.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}
