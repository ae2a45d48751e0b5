package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	googleAPIURL       = "https://generativelanguage.googleapis.com/v1beta/models"
	DefaultGoogleModel = "gemini-2.0-flash"
)

// GoogleProvider implements the LLMProvider interface for Google's Gemini models
type GoogleProvider struct {
	Config
	httpClient *http.Client
}

// GooglePart is one text part of a Gemini message.
type GooglePart struct {
	Text string `json:"text"`
}

// GoogleContent represents content in Google's Gemini API format
type GoogleContent struct {
	Parts []GooglePart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

// GoogleRequest represents a request to Google's Gemini API
type GoogleRequest struct {
	Contents         []GoogleContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

// GoogleResponse represents a response from Google's Gemini API
type GoogleResponse struct {
	Candidates []struct {
		Content GoogleContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// NewGoogleProvider creates a new instance of the Google provider
func NewGoogleProvider(config Config) *GoogleProvider {
	return &GoogleProvider{
		Config: config,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return ProviderGoogle
}

// Generate implements the LLMProvider interface for Google
func (p *GoogleProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("google: %w", ErrMissingAPIKey)
	}

	model := p.ModelID
	if model == "" {
		model = DefaultGoogleModel
	}

	reqBody := GoogleRequest{
		Contents: []GoogleContent{
			{Parts: []GooglePart{{Text: truncateInput(prompt)}}, Role: "user"},
		},
	}
	reqBody.GenerationConfig.MaxOutputTokens = DefaultMaxOutputTokens

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	base := p.BaseURL
	if base == "" {
		base = googleAPIURL
	}
	apiURL := fmt.Sprintf("%s/%s:generateContent?key=%s", base, url.PathEscape(model), url.QueryEscape(p.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request to Google API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var googleResponse GoogleResponse
	if err := json.Unmarshal(respBody, &googleResponse); err != nil {
		return "", fmt.Errorf("error unmarshaling response (status %d): %w", resp.StatusCode, err)
	}

	if googleResponse.Error != nil {
		return "", fmt.Errorf("Google API error: %s: %s",
			googleResponse.Error.Status, googleResponse.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Google API returned status %d", resp.StatusCode)
	}

	if len(googleResponse.Candidates) == 0 {
		return "", fmt.Errorf("google: %w", ErrEmptyResponse)
	}
	var text bytes.Buffer
	for _, part := range googleResponse.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("google: %w", ErrEmptyResponse)
	}

	return text.String(), nil
}
