package matcher

import (
	"sort"

	"github.com/localrivet/codematch/internal/vector"
)

// Scored is one ranked corpus entry.
type Scored struct {
	ID    string  `json:"id"`
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Ranking is the ordered output of Rank.
type Ranking struct {
	Matches     []Scored    `json:"matches"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Rank scores every comparable entry and returns up to limit of them, highest
// score first with ties in corpus order. A limit of zero or less returns all
// scored entries. The first element always equals the FindBestMatch result.
func Rank(corpus vector.Corpus, query []float32, limit int) (*Ranking, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if len(corpus) == 0 {
		return nil, &NoMatchError{Err: ErrEmptyCorpus}
	}

	var diag Diagnostics
	scored := make([]Scored, 0, len(corpus))
	for i, entry := range corpus {
		diag.Total++
		score, ok := scoreEntry(entry, query, &diag)
		if !ok {
			continue
		}
		scored = append(scored, Scored{ID: entry.ID, Index: i, Score: score})
	}

	if len(scored) == 0 {
		return nil, &NoMatchError{Err: ErrNoComparableEntries, Diagnostics: diag}
	}

	// scored is already in corpus order, so a stable sort keeps ties there.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if limit > 0 && limit < len(scored) {
		scored = scored[:limit]
	}

	return &Ranking{Matches: scored, Diagnostics: diag}, nil
}
