package vector

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when two vectors have different lengths.
	ErrDimensionMismatch = errors.New("vectors must have the same dimension")

	// ErrZeroMagnitude is returned when either vector has zero norm.
	ErrZeroMagnitude = errors.New("one or both vectors have zero magnitude")

	// ErrNonFinite is returned when a vector holds NaN or Inf, or its
	// similarity cannot be represented as a finite number.
	ErrNonFinite = errors.New("vector similarity is not finite")
)

// CosineSimilarity calculates the cosine similarity between two vectors.
// The result is a value between -1 and 1, where 1 means the vectors point the
// same way, 0 means they are orthogonal, and -1 means they are opposite.
//
// Products and sums are accumulated in float64. The score is computed as
// dot / sqrt(|a|^2 * |b|^2) so swapping the arguments yields the same bits and
// parallel vectors score exactly 1.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if !isFinite(dot) || !isFinite(normA) || !isFinite(normB) {
		return 0, ErrNonFinite
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroMagnitude
	}

	similarity := dot / math.Sqrt(normA*normB)
	if !isFinite(similarity) {
		return 0, ErrNonFinite
	}

	// Rounding can push the ratio a hair past the mathematical range.
	if similarity > 1 {
		similarity = 1
	} else if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
