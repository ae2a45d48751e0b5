// Package vector holds the embedding data model of codematch together with
// the blob codec and the cosine similarity primitive the matcher builds on.
package vector

const (
	// DefaultEmbeddingDimensions is the width of the Gemini text embedding
	// model the external embedding tool uses.
	DefaultEmbeddingDimensions = 768
)

// Embedder defines the interface for creating vector embeddings from text.
type Embedder interface {
	// CreateEmbedding converts text into a vector representation.
	CreateEmbedding(text string) ([]float32, error)

	// Initialize sets up the embedder with any required configuration.
	Initialize() error
}
