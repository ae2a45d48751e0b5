// Package matcher ranks a corpus of embeddings against a query embedding by
// cosine similarity and selects the best match.
//
// Selection is deterministic: the highest score wins and equal scores resolve
// to the entry that comes first in corpus order. Entries that cannot be
// compared are skipped and counted rather than failing the scan.
package matcher

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/localrivet/codematch/internal/vector"
)

var (
	// ErrEmptyQuery is returned when the query vector has no dimensions.
	ErrEmptyQuery = errors.New("query embedding is empty")

	// ErrEmptyCorpus is returned when the corpus has no entries.
	ErrEmptyCorpus = errors.New("corpus is empty")

	// ErrNoComparableEntries is returned when every entry was skipped.
	ErrNoComparableEntries = errors.New("no comparable corpus entries")
)

// minChunkSize keeps parallel chunks large enough to be worth a goroutine.
const minChunkSize = 256

// Diagnostics counts how each corpus entry was handled during a scan.
type Diagnostics struct {
	Total        int `json:"total"`
	Compared     int `json:"compared"`
	Incomparable int `json:"incomparable"`
	Degenerate   int `json:"degenerate"`
	Malformed    int `json:"malformed"`
}

// Skipped returns the number of entries that were not scored.
func (d Diagnostics) Skipped() int {
	return d.Incomparable + d.Degenerate + d.Malformed
}

func (d *Diagnostics) add(o Diagnostics) {
	d.Total += o.Total
	d.Compared += o.Compared
	d.Incomparable += o.Incomparable
	d.Degenerate += o.Degenerate
	d.Malformed += o.Malformed
}

// Result is the best-scoring corpus entry.
type Result struct {
	ID          string      `json:"id"`
	Index       int         `json:"index"`
	Score       float64     `json:"score"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// NoMatchError carries the diagnostics of a scan that produced no result.
// It unwraps to ErrEmptyCorpus or ErrNoComparableEntries.
type NoMatchError struct {
	Err         error
	Diagnostics Diagnostics
}

func (e *NoMatchError) Error() string {
	if errors.Is(e.Err, ErrNoComparableEntries) {
		d := e.Diagnostics
		return fmt.Sprintf("%v: %d entries, %d incomparable, %d degenerate, %d malformed",
			e.Err, d.Total, d.Incomparable, d.Degenerate, d.Malformed)
	}
	return e.Err.Error()
}

func (e *NoMatchError) Unwrap() error {
	return e.Err
}

// Matcher scores corpora against queries. Workers bounds the goroutines used
// for scoring; values below 2 scan sequentially. The zero value is a
// sequential matcher.
type Matcher struct {
	Workers int
}

// New returns a Matcher using the given number of workers. Zero or a negative
// count selects runtime.GOMAXPROCS(0).
func New(workers int) *Matcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Matcher{Workers: workers}
}

// FindBestMatch scans corpus sequentially and returns the entry most similar
// to query.
func FindBestMatch(corpus vector.Corpus, query []float32) (*Result, error) {
	return (&Matcher{}).Match(corpus, query)
}

// Match returns the entry of corpus most similar to query.
//
// Entries whose dimensionality differs from the query are counted as
// incomparable, entries where either vector has zero norm as degenerate and
// entries that failed to decode as malformed; none of these abort the scan.
func (m *Matcher) Match(corpus vector.Corpus, query []float32) (*Result, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if len(corpus) == 0 {
		return nil, &NoMatchError{Err: ErrEmptyCorpus}
	}

	chunks := m.chunks(len(corpus))
	bests := make([]best, len(chunks))

	if len(chunks) == 1 {
		bests[0] = scan(corpus, query, 0, len(corpus))
	} else {
		var g errgroup.Group
		g.SetLimit(m.Workers)
		for i, c := range chunks {
			g.Go(func() error {
				bests[i] = scan(corpus, query, c.start, c.end)
				return nil
			})
		}
		_ = g.Wait()
	}

	// Reduce in chunk order: a later chunk only wins with a strictly greater
	// score, so ties keep the earliest entry.
	var (
		diag   Diagnostics
		winner = best{index: -1}
	)
	for _, b := range bests {
		diag.add(b.diag)
		if b.index >= 0 && (winner.index < 0 || b.score > winner.score) {
			winner = b
		}
	}

	if winner.index < 0 {
		return nil, &NoMatchError{Err: ErrNoComparableEntries, Diagnostics: diag}
	}

	return &Result{
		ID:          corpus[winner.index].ID,
		Index:       winner.index,
		Score:       winner.score,
		Diagnostics: diag,
	}, nil
}

type span struct {
	start, end int
}

func (m *Matcher) chunks(n int) []span {
	workers := m.Workers
	if workers < 2 || n < 2*minChunkSize {
		return []span{{0, n}}
	}

	size := (n + workers - 1) / workers
	if size < minChunkSize {
		size = minChunkSize
	}

	spans := make([]span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		spans = append(spans, span{start, min(start+size, n)})
	}
	return spans
}

type best struct {
	index int
	score float64
	diag  Diagnostics
}

// scan scores corpus[start:end] in order and keeps the first maximum.
func scan(corpus vector.Corpus, query []float32, start, end int) best {
	b := best{index: -1}
	for i := start; i < end; i++ {
		b.diag.Total++

		score, ok := scoreEntry(corpus[i], query, &b.diag)
		if !ok {
			continue
		}
		if b.index < 0 || score > b.score {
			b.index = i
			b.score = score
		}
	}
	return b
}

// scoreEntry computes the similarity of one entry, recording why it was
// skipped when it cannot be scored.
func scoreEntry(entry vector.Entry, query []float32, diag *Diagnostics) (float64, bool) {
	if !entry.Decoded() {
		diag.Malformed++
		return 0, false
	}

	score, err := vector.CosineSimilarity(entry.Embedding, query)
	switch {
	case errors.Is(err, vector.ErrDimensionMismatch):
		diag.Incomparable++
		return 0, false
	case err != nil:
		diag.Degenerate++
		return 0, false
	}

	diag.Compared++
	return score, true
}
