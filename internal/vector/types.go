package vector

// Entry is one corpus row: an artifact identifier and its embedding.
// Err is set when the stored blob could not be decoded; such entries keep
// their position in the corpus so diagnostics can count them.
type Entry struct {
	ID        string
	Embedding []float32
	Err       error
}

// Decoded reports whether the stored embedding decoded. A decoded entry can
// still be skipped by the matcher for a length or magnitude mismatch.
func (e Entry) Decoded() bool {
	return e.Err == nil
}

// Corpus is an ordered, read-only snapshot of corpus entries. The order is
// the canonical iteration order used for tie-breaking.
type Corpus []Entry

// Len returns the number of entries, malformed ones included.
func (c Corpus) Len() int {
	return len(c)
}

// Malformed returns the number of entries whose embedding failed to decode.
func (c Corpus) Malformed() int {
	n := 0
	for _, e := range c {
		if e.Err != nil {
			n++
		}
	}
	return n
}
