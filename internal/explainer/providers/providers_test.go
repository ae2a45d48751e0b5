package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleProviderGenerate(t *testing.T) {
	server := NewMockServer(t, MockResponseConfig{
		StatusCode: http.StatusOK,
		ResponseBody: map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "first "}, {"text": "second"}}}},
			},
		},
	})

	p := NewGoogleProvider(Config{APIKey: "g-key", BaseURL: server.URL})
	out, err := p.Generate(context.Background(), "explain this")
	require.NoError(t, err)
	assert.Equal(t, "first second", out)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/"+DefaultGoogleModel+":generateContent", reqs[0].Path)
	assert.Equal(t, "key=g-key", reqs[0].Query)

	var sent GoogleRequest
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	require.Len(t, sent.Contents, 1)
	assert.Equal(t, "explain this", sent.Contents[0].Parts[0].Text)
	assert.Equal(t, DefaultMaxOutputTokens, sent.GenerationConfig.MaxOutputTokens)
}

func TestGoogleProviderAPIError(t *testing.T) {
	server := NewMockServer(t, MockResponseConfig{
		StatusCode: http.StatusBadRequest,
		ResponseBody: map[string]any{
			"error": map[string]any{"code": 400, "message": "bad key", "status": "INVALID_ARGUMENT"},
		},
	})

	p := NewGoogleProvider(Config{APIKey: "g-key", BaseURL: server.URL})
	_, err := p.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

func TestOpenAIProviderGenerate(t *testing.T) {
	server := NewMockServer(t, MockResponseConfig{
		ResponseBody: `{"choices":[{"message":{"content":"an explanation"}}]}`,
	})

	p := NewOpenAIProvider(Config{APIKey: "o-key", ModelID: "gpt-test", BaseURL: server.URL})
	out, err := p.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "an explanation", out)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer o-key", reqs[0].Headers.Get("Authorization"))

	var sent OpenAIRequest
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	assert.Equal(t, "gpt-test", sent.Model)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, "prompt", sent.Messages[1].Content)
}

func TestAnthropicProviderGenerate(t *testing.T) {
	server := NewMockServer(t, MockResponseConfig{
		ResponseBody: `{"content":[{"type":"text","text":"claude says"}]}`,
	})

	p := NewAnthropicProvider(Config{APIKey: "a-key", BaseURL: server.URL})
	out, err := p.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "claude says", out)

	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "a-key", reqs[0].Headers.Get("X-API-Key"))
	assert.Equal(t, anthropicAPIVersion, reqs[0].Headers.Get("Anthropic-Version"))
}

func TestProvidersEmptyResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		make func(Config) LLMProvider
	}{
		{"google", `{"candidates":[]}`, func(c Config) LLMProvider { return NewGoogleProvider(c) }},
		{"openai", `{"choices":[]}`, func(c Config) LLMProvider { return NewOpenAIProvider(c) }},
		{"anthropic", `{"content":[]}`, func(c Config) LLMProvider { return NewAnthropicProvider(c) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewMockServer(t, MockResponseConfig{ResponseBody: tt.body})
			_, err := tt.make(Config{APIKey: "k", BaseURL: server.URL}).Generate(context.Background(), "p")
			assert.True(t, errors.Is(err, ErrEmptyResponse), "got %v", err)
		})
	}
}

func TestProvidersMissingAPIKey(t *testing.T) {
	for _, p := range []LLMProvider{
		NewGoogleProvider(Config{}),
		NewOpenAIProvider(Config{}),
		NewAnthropicProvider(Config{}),
	} {
		_, err := p.Generate(context.Background(), "p")
		assert.ErrorIs(t, err, ErrMissingAPIKey, p.Name())
	}
}

func TestTruncateInput(t *testing.T) {
	short := "short"
	assert.Equal(t, short, truncateInput(short))

	long := strings.Repeat("あ", DefaultMaxInputLength)
	out := truncateInput(long)
	assert.LessOrEqual(t, len(out), DefaultMaxInputLength)
	assert.Equal(t, 0, len(out)%len("あ"))
}

func TestProviderFactory(t *testing.T) {
	factory := NewProviderFactory(map[string]Config{
		ProviderGoogle:    {APIKey: "g"},
		ProviderOpenAI:    {APIKey: "o"},
		ProviderAnthropic: {APIKey: "a"},
		"unknown":         {APIKey: "u"},
	})

	p, err := factory.GetProvider(ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, p.Name())

	_, err = factory.GetProvider("missing")
	assert.Error(t, err)
	_, err = factory.GetProvider("unknown")
	assert.Error(t, err)

	chain := factory.GetProviderChain([]string{ProviderOpenAI})
	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = p.Name()
	}
	assert.Equal(t, []string{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}, names)
}

func TestProviderFactorySkipsProvidersWithoutKeys(t *testing.T) {
	factory := NewProviderFactory(map[string]Config{
		ProviderGoogle: {APIKey: ""},
		ProviderOpenAI: {APIKey: "o"},
	})

	chain := factory.GetProviderChain([]string{ProviderGoogle, ProviderOpenAI, ProviderOpenAI})
	require.Len(t, chain, 1)
	assert.Equal(t, ProviderOpenAI, chain[0].Name())
}
