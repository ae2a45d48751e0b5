package providers

import (
	"fmt"
	"slices"
	"sort"
)

// ProviderFactory creates and returns appropriate LLM providers
type ProviderFactory struct {
	// ProviderConfigs stores configuration for each provider
	ProviderConfigs map[string]Config
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(configs map[string]Config) *ProviderFactory {
	if configs == nil {
		configs = make(map[string]Config)
	}
	return &ProviderFactory{
		ProviderConfigs: configs,
	}
}

// GetProvider returns an initialized provider instance for the specified provider name
func (f *ProviderFactory) GetProvider(providerName string) (LLMProvider, error) {
	config, exists := f.ProviderConfigs[providerName]
	if !exists {
		return nil, fmt.Errorf("configuration for provider '%s' not found", providerName)
	}

	switch providerName {
	case ProviderGoogle:
		return NewGoogleProvider(config), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(config), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(config), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", providerName)
	}
}

// GetProviderChain returns an ordered list of providers to try in sequence.
// Providers named in preferenceOrder come first, in that order; any other
// configured provider follows in name order. Providers without an API key
// are left out.
func (f *ProviderFactory) GetProviderChain(preferenceOrder []string) []LLMProvider {
	var chain []LLMProvider
	seen := make(map[string]bool)

	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if config, exists := f.ProviderConfigs[name]; !exists || config.APIKey == "" {
			return
		}
		if provider, err := f.GetProvider(name); err == nil {
			chain = append(chain, provider)
		}
	}

	for _, name := range preferenceOrder {
		add(name)
	}

	rest := make([]string, 0, len(f.ProviderConfigs))
	for name := range f.ProviderConfigs {
		if !slices.Contains(preferenceOrder, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		add(name)
	}

	return chain
}
