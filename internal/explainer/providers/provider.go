// Package providers contains the hosted LLM backends used to explain a
// matched artifact.
package providers

import (
	"context"
	"errors"
	"time"
)

const (
	// Provider constants
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	// Default settings
	DefaultTimeout         = 30 * time.Second
	DefaultMaxOutputTokens = 1024
	DefaultMaxInputLength  = 32000
)

var (
	// ErrMissingAPIKey is returned when a provider is used without a key.
	ErrMissingAPIKey = errors.New("API key not provided")

	// ErrEmptyResponse is returned when the API answered with no text.
	ErrEmptyResponse = errors.New("empty response")
)

// LLMProvider defines the interface for different LLM service providers
type LLMProvider interface {
	// Generate sends prompt to the model and returns its text answer.
	Generate(ctx context.Context, prompt string) (string, error)

	// Name returns the provider name
	Name() string
}

// Config holds common configuration for LLM providers
type Config struct {
	APIKey  string
	ModelID string
	// BaseURL overrides the provider endpoint. Empty means the public API.
	BaseURL string
}

// truncateInput caps a prompt at DefaultMaxInputLength bytes without
// splitting a UTF-8 sequence.
func truncateInput(prompt string) string {
	if len(prompt) <= DefaultMaxInputLength {
		return prompt
	}
	cut := DefaultMaxInputLength
	for cut > 0 && prompt[cut]&0xC0 == 0x80 {
		cut--
	}
	return prompt[:cut]
}
