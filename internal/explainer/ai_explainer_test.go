package explainer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/localrivet/codematch/internal/embeddingstore"
	"github.com/localrivet/codematch/internal/explainer/providers"
	"github.com/localrivet/codematch/internal/telemetry"
)

// MockLLMProvider implements the providers.LLMProvider interface for testing
type MockLLMProvider struct {
	name         string
	returnError  bool
	failureCount int
	currentTries int
	calls        int
	returnText   string
}

// Generate implements the providers.LLMProvider interface for testing
func (m *MockLLMProvider) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls++
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if m.returnError || (m.failureCount > 0 && m.currentTries < m.failureCount) {
		m.currentTries++
		return "", errors.New("mock generation error")
	}

	if m.returnText == "" {
		return "This is a mock explanation.", nil
	}
	return m.returnText, nil
}

// Name returns the provider name
func (m *MockLLMProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func sampleContent() embeddingstore.Content {
	return embeddingstore.Content{ID: "src/app.py", Text: "print('hi')\n", Type: "py"}
}

func newTestExplainer(config *AIExplainerConfig, primary providers.LLMProvider, fallbacks ...providers.LLMProvider) *AIExplainer {
	e := NewAIExplainer(config, nil, nil)
	e.provider = primary
	e.fallbackProviders = fallbacks
	e.providerInitialized = true
	return e
}

func TestNewAIExplainer(t *testing.T) {
	e1 := NewAIExplainer(nil, nil, nil)
	if e1.config.Language != DefaultLanguage {
		t.Errorf("Expected default language, got %q", e1.config.Language)
	}
	if e1.config.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout, got %v", e1.config.Timeout)
	}
	if e1.GetMetrics() == nil {
		t.Fatal("Expected a metrics collector")
	}

	config := &AIExplainerConfig{
		Language:      "English",
		Timeout:       5 * time.Second,
		MaxRetries:    1,
		RetryDelay:    time.Second,
		CacheCapacity: 5,
		CacheTTL:      time.Hour,
	}
	e2 := NewAIExplainer(config, nil, nil)
	if e2.config.Language != "English" {
		t.Errorf("Expected language English, got %q", e2.config.Language)
	}
	if e2.cache.capacity != 5 {
		t.Errorf("Expected cache capacity 5, got %d", e2.cache.capacity)
	}
}

func TestAIExplainerInitialize(t *testing.T) {
	e := NewAIExplainer(&AIExplainerConfig{
		Provider: providers.ProviderGoogle,
		Providers: map[string]providers.Config{
			providers.ProviderGoogle: {APIKey: "g"},
			providers.ProviderOpenAI: {APIKey: "o"},
		},
	}, nil, nil)

	if err := e.Initialize(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if e.PrimaryProvider() != providers.ProviderGoogle {
		t.Errorf("Expected google primary, got %q", e.PrimaryProvider())
	}
	if len(e.fallbackProviders) != 1 || e.fallbackProviders[0].Name() != providers.ProviderOpenAI {
		t.Errorf("Expected openai fallback, got %v", e.fallbackProviders)
	}
}

func TestAIExplainerInitializeWithoutKeys(t *testing.T) {
	e := NewAIExplainer(&AIExplainerConfig{
		Provider:  providers.ProviderGoogle,
		Providers: map[string]providers.Config{providers.ProviderGoogle: {}},
	}, nil, nil)

	if err := e.Initialize(); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("Expected ErrNoProviders, got %v", err)
	}

	// Explain still answers, offline.
	explanation, err := e.Explain(context.Background(), sampleContent())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !explanation.Offline {
		t.Errorf("Expected an offline explanation")
	}
}

func TestAIExplainerSendsPrompt(t *testing.T) {
	capturing := providers.NewCapturingProvider("capture", "explained", nil)
	e := newTestExplainer(&AIExplainerConfig{Language: "English"}, capturing)

	explanation, err := e.Explain(context.Background(), sampleContent())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if explanation.Text != "explained" || explanation.Provider != "capture" {
		t.Errorf("Unexpected explanation: %+v", explanation)
	}

	prompts := capturing.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("Expected 1 prompt, got %d", len(prompts))
	}
	if !strings.HasPrefix(prompts[0], "Explain the content about below code by English:\n```py\n") {
		t.Errorf("Unexpected prompt: %q", prompts[0])
	}
}

func TestAIExplainerCache(t *testing.T) {
	mockProvider := &MockLLMProvider{returnText: "This is a cached explanation."}
	e := newTestExplainer(&AIExplainerConfig{CacheCapacity: 10, CacheTTL: time.Hour}, mockProvider)

	first, err := e.Explain(context.Background(), sampleContent())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first.Cached {
		t.Errorf("First call should not be cached")
	}

	mockProvider.returnText = "This is a different explanation."

	second, err := e.Explain(context.Background(), sampleContent())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if second.Text != "This is a cached explanation." || !second.Cached {
		t.Errorf("Expected cache hit, got %+v", second)
	}

	other := sampleContent()
	other.Text = "print('bye')\n"
	third, err := e.Explain(context.Background(), other)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if third.Text != "This is a different explanation." {
		t.Errorf("Expected provider call for new content, got %q", third.Text)
	}

	if hits := e.metrics.GetCounter(telemetry.MetricCacheHits); hits != 1 {
		t.Errorf("Expected 1 cache hit, got %d", hits)
	}
}

func TestAIExplainerCacheHitKeepsRequestedID(t *testing.T) {
	mockProvider := &MockLLMProvider{returnText: "shared"}
	e := newTestExplainer(&AIExplainerConfig{CacheCapacity: 10, CacheTTL: time.Hour}, mockProvider)

	first := sampleContent()
	first.ID = "a/util.py"
	if _, err := e.Explain(context.Background(), first); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	copied := first
	copied.ID = "b/util.py"
	second, err := e.Explain(context.Background(), copied)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !second.Cached || second.Text != "shared" {
		t.Errorf("Expected cache hit, got %+v", second)
	}
	if second.ID != "b/util.py" {
		t.Errorf("Expected ID b/util.py, got %q", second.ID)
	}
}

func TestAIExplainerCacheEviction(t *testing.T) {
	e := newTestExplainer(&AIExplainerConfig{CacheCapacity: 2}, &MockLLMProvider{})

	for i := 0; i < 5; i++ {
		e.cacheResult(string(rune('a'+i)), Explanation{Text: "x"})
	}
	if len(e.cache.items) != 2 {
		t.Errorf("Expected cache to hold 2 items, got %d", len(e.cache.items))
	}
}

func TestAIExplainerRetries(t *testing.T) {
	mockProvider := &MockLLMProvider{failureCount: 2, returnText: "Success after retries"}
	e := newTestExplainer(&AIExplainerConfig{MaxRetries: 3, RetryDelay: 5 * time.Millisecond}, mockProvider)

	explanation, err := e.Explain(context.Background(), sampleContent())
	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if explanation.Text != "Success after retries" {
		t.Errorf("Expected 'Success after retries', got %q", explanation.Text)
	}
	if got := e.metrics.GetCounter(telemetry.MetricRetryAttempts); got != 2 {
		t.Errorf("Expected 2 retry attempts, got %d", got)
	}
	if got := e.metrics.GetCounter(telemetry.MetricRetrySuccess); got != 1 {
		t.Errorf("Expected 1 retry success, got %d", got)
	}

	t.Run("retries exhausted", func(t *testing.T) {
		failing := &MockLLMProvider{returnError: true}
		fe := newTestExplainer(&AIExplainerConfig{MaxRetries: 1, RetryDelay: 5 * time.Millisecond}, failing)

		_, err := fe.generateWithRetries(context.Background(), failing, "prompt")
		if err == nil {
			t.Fatal("Expected error from generateWithRetries")
		}
		if failing.calls != 2 {
			t.Errorf("Expected 2 calls, got %d", failing.calls)
		}
	})
}

func TestAIExplainerFallback(t *testing.T) {
	primary := &MockLLMProvider{name: "primary", returnError: true}
	fallback := &MockLLMProvider{name: "fallback", returnText: "Fallback explanation"}
	config := &AIExplainerConfig{RetryDelay: time.Millisecond}

	e := newTestExplainer(config, primary, fallback)
	explanation, err := e.Explain(context.Background(), sampleContent())
	if err != nil {
		t.Fatalf("Expected success with fallback, got error: %v", err)
	}
	if explanation.Text != "Fallback explanation" || explanation.Provider != "fallback" {
		t.Errorf("Unexpected explanation: %+v", explanation)
	}
	if got := e.metrics.GetCounter(telemetry.MetricFallbackSuccess); got != 1 {
		t.Errorf("Expected 1 fallback success, got %d", got)
	}

	// Every provider failing ends in the offline excerpt.
	fallback.returnError = true
	e2 := newTestExplainer(config, primary, fallback)
	explanation, err = e2.Explain(context.Background(), sampleContent())
	if err != nil {
		t.Fatalf("Expected offline explanation, got error: %v", err)
	}
	if !explanation.Offline || !strings.Contains(explanation.Text, "print('hi')") {
		t.Errorf("Expected offline excerpt, got %+v", explanation)
	}
	if got := e2.metrics.GetCounter(telemetry.MetricOfflineFallback); got != 1 {
		t.Errorf("Expected 1 offline fallback, got %d", got)
	}
}

func TestAIExplainerDisableOffline(t *testing.T) {
	e := newTestExplainer(&AIExplainerConfig{DisableOffline: true, RetryDelay: time.Millisecond},
		&MockLLMProvider{returnError: true})

	_, err := e.Explain(context.Background(), sampleContent())
	if !errors.Is(err, ErrExplanationFailed) {
		t.Fatalf("Expected ErrExplanationFailed, got %v", err)
	}
}

func TestAIExplainerCanceledContext(t *testing.T) {
	mockProvider := &MockLLMProvider{}
	e := newTestExplainer(nil, mockProvider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Explain(ctx, sampleContent())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if mockProvider.calls != 0 {
		t.Errorf("Expected no provider calls, got %d", mockProvider.calls)
	}
}
