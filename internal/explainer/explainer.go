// Package explainer turns the content of a matched artifact into a prompt and
// asks a hosted language model to explain it.
package explainer

import (
	"context"
	"fmt"
	"strings"

	"github.com/localrivet/codematch/internal/embeddingstore"
)

const (
	// DefaultLanguage is the language the explanation is requested in.
	DefaultLanguage = "Japanese"

	// DefaultMaxExcerptLength bounds the offline excerpt.
	DefaultMaxExcerptLength = 800
)

// Explanation is the text produced for one artifact.
type Explanation struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Provider string `json:"provider"`
	// Offline is set when no model answered and Text is a local excerpt.
	Offline bool `json:"offline"`
	Cached  bool `json:"cached"`
}

// Explainer defines the interface for explaining artifact content.
type Explainer interface {
	// Explain returns an explanation of content.
	Explain(ctx context.Context, content embeddingstore.Content) (*Explanation, error)

	// Initialize sets up the explainer with any required configuration.
	Initialize() error
}

// BuildPrompt renders the request sent to the model: an instruction naming
// the answer language followed by the content in a fenced block tagged with
// its content type.
func BuildPrompt(content embeddingstore.Content, language string) string {
	if language == "" {
		language = DefaultLanguage
	}
	fence := fenceFor(content.Text)

	var b strings.Builder
	fmt.Fprintf(&b, "Explain the content about below code by %s:\n", language)
	b.WriteString(fence)
	b.WriteString(content.Type)
	b.WriteByte('\n')
	b.WriteString(content.Text)
	if !strings.HasSuffix(content.Text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(fence)
	return b.String()
}

// fenceFor returns the shortest code fence of three or more backticks that
// does not occur in text.
func fenceFor(text string) string {
	fence := "```"
	for strings.Contains(text, fence) {
		fence += "`"
	}
	return fence
}
