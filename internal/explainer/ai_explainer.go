package explainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/localrivet/codematch/internal/embeddingstore"
	"github.com/localrivet/codematch/internal/explainer/providers"
	"github.com/localrivet/codematch/internal/telemetry"
	"github.com/localrivet/codematch/internal/util"
)

const (
	// Default settings
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 2
	DefaultRetryDelay    = 2 * time.Second
	DefaultCacheCapacity = 256
	DefaultCacheTTL      = 24 * time.Hour
)

// Errors
var (
	ErrNoProviders       = errors.New("no explanation provider configured")
	ErrExplanationFailed = errors.New("explanation failed")
)

// AIExplainerConfig holds configuration for the AIExplainer
type AIExplainerConfig struct {
	// Provider is the primary provider name.
	Provider string
	// Providers holds the per-provider credentials and models.
	Providers map[string]providers.Config
	// FallbackOrder lists the providers tried after the primary.
	FallbackOrder []string

	Language      string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	CacheCapacity int
	CacheTTL      time.Duration
	// DisableOffline makes Explain fail instead of returning an excerpt
	// when every provider fails.
	DisableOffline bool
}

// AIExplainer is an implementation of the Explainer interface backed by
// hosted LLMs, with retries, a provider fallback chain and a result cache.
type AIExplainer struct {
	config              AIExplainerConfig
	provider            providers.LLMProvider
	fallbackProviders   []providers.LLMProvider
	providerInitialized bool
	offline             *BasicExplainer
	cache               *explanationCache
	metrics             *telemetry.MetricsCollector
	logger              *slog.Logger
	mu                  sync.RWMutex
}

// explanationCache provides thread-safe caching keyed by prompt hash.
type explanationCache struct {
	items    map[string]cachedExplanation
	capacity int
	ttl      time.Duration
	mu       sync.RWMutex
}

type cachedExplanation struct {
	explanation Explanation
	expireAt    time.Time
}

// NewAIExplainer creates a new AIExplainer. A nil metrics collector gets a
// private one; a nil logger uses slog.Default.
func NewAIExplainer(config *AIExplainerConfig, metrics *telemetry.MetricsCollector, logger *slog.Logger) *AIExplainer {
	var cfg AIExplainerConfig
	if config != nil {
		cfg = *config
	}

	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if metrics == nil {
		metrics = telemetry.NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AIExplainer{
		config:  cfg,
		offline: NewBasicExplainer(DefaultMaxExcerptLength),
		cache: &explanationCache{
			items:    make(map[string]cachedExplanation),
			capacity: cfg.CacheCapacity,
			ttl:      cfg.CacheTTL,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Initialize builds the provider chain from the configuration. It fails
// with ErrNoProviders when no configured provider has an API key.
func (e *AIExplainer) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.providerInitialized {
		return nil
	}

	if e.provider == nil {
		factory := providers.NewProviderFactory(e.config.Providers)

		order := append([]string{e.config.Provider}, e.config.FallbackOrder...)
		chain := factory.GetProviderChain(order)
		if len(chain) == 0 {
			return ErrNoProviders
		}
		if chain[0].Name() != e.config.Provider {
			e.logger.Warn("Primary explanation provider unavailable, using fallback",
				"configured", e.config.Provider, "using", chain[0].Name())
		}
		e.provider = chain[0]
		e.fallbackProviders = chain[1:]
	}

	e.providerInitialized = true
	return nil
}

// Explain asks the provider chain to explain content. When every provider
// fails the offline excerpt is returned with Offline set, unless the
// configuration disables it.
func (e *AIExplainer) Explain(ctx context.Context, content embeddingstore.Content) (*Explanation, error) {
	startTime := time.Now()
	defer func() {
		e.metrics.RecordTimer(telemetry.MetricExplainDuration, time.Since(startTime))
	}()

	e.mu.RLock()
	initialized := e.providerInitialized
	e.mu.RUnlock()
	if !initialized {
		if err := e.Initialize(); err != nil {
			return e.offlineOr(ctx, content, fmt.Errorf("failed to initialize explainer: %w", err))
		}
	}

	prompt := BuildPrompt(content, e.config.Language)
	key := util.HashText(prompt)

	if cached, found := e.checkCache(key); found {
		e.metrics.IncrementCounter(telemetry.MetricCacheHits, 1)
		// The key covers the prompt only, so identical content under
		// another identifier shares the entry.
		cached.ID = content.ID
		cached.Cached = true
		return &cached, nil
	}
	e.metrics.IncrementCounter(telemetry.MetricCacheMisses, 1)

	chain := append([]providers.LLMProvider{e.provider}, e.fallbackProviders...)
	var lastErr error
	for i, provider := range chain {
		if i > 0 {
			e.metrics.IncrementCounter(telemetry.MetricFallbackAttempts, 1)
		}
		e.metrics.IncrementCounter(telemetry.APICallsMetric(provider.Name()), 1)

		providerStart := time.Now()
		text, err := e.generateWithRetries(ctx, provider, prompt)
		if err == nil {
			e.metrics.IncrementCounter(telemetry.MetricAPICallsSuccess, 1)
			e.metrics.RecordTimer(telemetry.ResponseTimeMetric(provider.Name()), time.Since(providerStart))
			if i > 0 {
				e.metrics.IncrementCounter(telemetry.MetricFallbackSuccess, 1)
			}

			explanation := Explanation{ID: content.ID, Text: text, Provider: provider.Name()}
			e.cacheResult(key, explanation)
			return &explanation, nil
		}

		e.metrics.IncrementCounter(telemetry.MetricAPICallsFailure, 1)
		e.logger.Warn("Explanation provider failed", "provider", provider.Name(), "error", err)
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return e.offlineOr(ctx, content, fmt.Errorf("%w: %w", ErrExplanationFailed, lastErr))
}

// offlineOr returns the offline excerpt, or err when offline answers are
// disabled or the context is done.
func (e *AIExplainer) offlineOr(ctx context.Context, content embeddingstore.Content, err error) (*Explanation, error) {
	if e.config.DisableOffline || ctx.Err() != nil {
		return nil, err
	}
	e.metrics.IncrementCounter(telemetry.MetricOfflineFallback, 1)
	e.logger.Warn("Falling back to offline excerpt", "id", content.ID, "error", err)
	return e.offline.Explain(ctx, content)
}

// generateWithRetries calls provider up to MaxRetries+1 times with a linear
// backoff between attempts. Each attempt gets its own timeout.
func (e *AIExplainer) generateWithRetries(ctx context.Context, provider providers.LLMProvider, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			e.metrics.IncrementCounter(telemetry.MetricRetryAttempts, 1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.config.RetryDelay * time.Duration(attempt)):
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		text, err := provider.Generate(attemptCtx, prompt)
		cancel()
		if err == nil {
			if attempt > 0 {
				e.metrics.IncrementCounter(telemetry.MetricRetrySuccess, 1)
			}
			return text, nil
		}

		lastErr = err
	}

	return "", lastErr
}

// checkCache looks for an unexpired cached explanation.
func (e *AIExplainer) checkCache(key string) (Explanation, bool) {
	e.cache.mu.RLock()
	defer e.cache.mu.RUnlock()

	if item, exists := e.cache.items[key]; exists && time.Now().Before(item.expireAt) {
		return item.explanation, true
	}
	return Explanation{}, false
}

// cacheResult stores an explanation, evicting the entry closest to expiry
// when the cache is full.
func (e *AIExplainer) cacheResult(key string, explanation Explanation) {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()

	if _, exists := e.cache.items[key]; !exists && len(e.cache.items) >= e.cache.capacity {
		var oldestKey string
		var oldest time.Time
		for k, item := range e.cache.items {
			if oldestKey == "" || item.expireAt.Before(oldest) {
				oldestKey, oldest = k, item.expireAt
			}
		}
		delete(e.cache.items, oldestKey)
	}

	e.cache.items[key] = cachedExplanation{
		explanation: explanation,
		expireAt:    time.Now().Add(e.cache.ttl),
	}

	e.metrics.SetGauge(telemetry.MetricCacheSize, float64(len(e.cache.items)))
}

// GetMetrics returns the metrics collector for this explainer
func (e *AIExplainer) GetMetrics() *telemetry.MetricsCollector {
	return e.metrics
}

// PrimaryProvider returns the name of the first provider in the chain, or
// an empty string before initialization.
func (e *AIExplainer) PrimaryProvider() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.provider == nil {
		return ""
	}
	return e.provider.Name()
}

// CheckProviderHealth sends a short prompt to every provider in the chain.
func (e *AIExplainer) CheckProviderHealth(ctx context.Context) map[string]bool {
	results := make(map[string]bool)

	if err := e.Initialize(); err != nil {
		return results
	}

	e.mu.RLock()
	chain := append([]providers.LLMProvider{e.provider}, e.fallbackProviders...)
	e.mu.RUnlock()

	for _, provider := range chain {
		name := provider.Name()
		if _, alreadyChecked := results[name]; alreadyChecked {
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := provider.Generate(checkCtx, "Reply with the single word OK.")
		cancel()

		results[name] = err == nil
		e.metrics.SetGauge(telemetry.ProviderHealthMetric(name), boolToFloat64(results[name]))
	}

	return results
}

// boolToFloat64 converts a boolean to a float64 (1.0 for true, 0.0 for false)
func boolToFloat64(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
