package explainer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/localrivet/codematch/internal/embeddingstore"
)

// BasicExplainer is the offline Explainer. It never calls a model; it returns
// a labelled excerpt of the content so the caller still sees what matched.
type BasicExplainer struct {
	maxExcerptLen int
}

// NewBasicExplainer creates a new BasicExplainer instance.
func NewBasicExplainer(maxExcerptLen int) *BasicExplainer {
	if maxExcerptLen <= 0 {
		maxExcerptLen = DefaultMaxExcerptLength
	}
	return &BasicExplainer{
		maxExcerptLen: maxExcerptLen,
	}
}

// Initialize sets up the explainer with any required configuration.
func (e *BasicExplainer) Initialize() error {
	return nil
}

// Explain returns the excerpt for content.
func (e *BasicExplainer) Explain(_ context.Context, content embeddingstore.Content) (*Explanation, error) {
	excerpt, truncated := e.excerpt(content.Text)

	var b strings.Builder
	if truncated {
		fmt.Fprintf(&b, "No explanation available. First %d bytes of %s:\n", len(excerpt), content.ID)
	} else {
		fmt.Fprintf(&b, "No explanation available. Content of %s:\n", content.ID)
	}
	fence := fenceFor(excerpt)
	b.WriteString(fence)
	b.WriteString(content.Type)
	b.WriteByte('\n')
	b.WriteString(excerpt)
	if truncated {
		b.WriteString("\n...")
	}
	b.WriteByte('\n')
	b.WriteString(fence)

	return &Explanation{
		ID:       content.ID,
		Text:     b.String(),
		Provider: "basic",
		Offline:  true,
	}, nil
}

// excerpt cuts text at the last line break that fits, or at the last whole
// rune when the first line alone is too long.
func (e *BasicExplainer) excerpt(text string) (string, bool) {
	text = strings.TrimRight(text, "\n")
	if len(text) <= e.maxExcerptLen {
		return text, false
	}

	truncated := text[:e.maxExcerptLen]
	if lastNewline := strings.LastIndex(truncated, "\n"); lastNewline > 0 {
		return text[:lastNewline], true
	}

	cut := e.maxExcerptLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}
