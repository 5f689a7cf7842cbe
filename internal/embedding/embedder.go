// Package embedding provides the text embedding provider boundary: an ONNX
// implementation (cgo), a deterministic mock, and an LRU cache. All
// implementations return unit-normalized vectors of the configured dimension.
package embedding

import "context"

// Embedder produces vector embeddings for text. Embedding failures are
// surfaced to the caller as errors, never masked by zero vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
