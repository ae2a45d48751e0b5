// Package embeddingstore reads and writes the SQLite embedding stores that
// back codematch: the corpus store (one row per ingested artifact) and the
// query store (a single row for the current question).
package embeddingstore

import (
	"context"
	"errors"

	"github.com/localrivet/codematch/internal/vector"
)

// TableName is the table the external embedding tool writes to.
const TableName = "embeddings"

var (
	// ErrMissingQuery is returned when the query store has no rows.
	ErrMissingQuery = errors.New("query store has no embedding")

	// ErrContentNotFound is returned when an identifier has no content row.
	ErrContentNotFound = errors.New("content not found")

	// ErrNotInitialized is returned when a store is used before Initialize.
	ErrNotInitialized = errors.New("store not initialized")
)

// Content is the text of a matched artifact and its content-type tag.
type Content struct {
	ID   string
	Text string
	Type string
}

// Reader loads corpora, queries and artifact content from a store.
type Reader interface {
	// LoadCorpus returns every stored entry in storage order. Rows whose
	// embedding cannot be decoded are kept with Entry.Err set.
	LoadCorpus(ctx context.Context) (vector.Corpus, error)

	// LoadQuery returns the single stored query embedding.
	LoadQuery(ctx context.Context) ([]float32, error)

	// LoadContent returns the content stored for id.
	LoadContent(ctx context.Context, id string) (Content, error)

	// Close releases the underlying connection.
	Close() error
}

// Writer appends embeddings to a store.
type Writer interface {
	// Append stores one artifact. An empty content is stored as NULL.
	Append(ctx context.Context, id, content string, embedding []float32) error

	// Count returns the number of stored rows.
	Count(ctx context.Context) (int, error)

	// Close releases the underlying connection.
	Close() error
}
