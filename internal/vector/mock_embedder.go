package vector

import (
	"crypto/md5"
	"encoding/binary"
)

// MockEmbedder produces deterministic unit vectors derived from an MD5 hash of
// the input. It backs the "mock" embedder provider used for offline ingestion
// and for tests; equal text always maps to an equal vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder creates a new MockEmbedder with the specified dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &MockEmbedder{
		dimensions: dimensions,
	}
}

// Dimensions returns the width of the vectors this embedder creates.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Initialize is a no-op; the mock embedder has no external dependencies.
func (e *MockEmbedder) Initialize() error {
	return nil
}

// CreateEmbedding generates a mock embedding for the given text.
func (e *MockEmbedder) CreateEmbedding(text string) ([]float32, error) {
	embedding := make([]float32, e.dimensions)
	hash := md5.Sum([]byte(text))

	for i := 0; i < e.dimensions; i++ {
		// Walk the digest four bytes at a time, wrapping around its end.
		hashIdx := (i * 4) % len(hash)
		seed := binary.LittleEndian.Uint32(append(hash[hashIdx:], hash[:4]...))

		// Map the seed onto [-1, 1).
		embedding[i] = float32(seed%1000)/500.0 - 1.0
	}

	// A digest that maps every dimension to zero would be degenerate; nudge it.
	norm := Norm(embedding)
	if norm == 0 {
		embedding[0] = 1
		norm = 1
	}
	for i := range embedding {
		embedding[i] = float32(float64(embedding[i]) / norm)
	}

	return embedding, nil
}
