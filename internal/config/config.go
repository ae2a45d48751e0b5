// Package config loads the codematch configuration from defaults, an
// optional JSON file and CODEMATCH_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/localrivet/configurator"
)

// Config represents the codematch configuration
type Config struct {
	// Store locates the embedding stores.
	Store struct {
		// DataDir holds source stores, the question store and manifests.
		DataDir string `json:"data_dir" env:"DATA_DIR" validate:"required"`

		// CorpusPath is the corpus store. Empty means <data_dir>/common_database.db.
		CorpusPath string `json:"corpus_path" env:"CORPUS_PATH"`

		// QueryPath is the query store. Empty means <data_dir>/question.db.
		QueryPath string `json:"query_path" env:"QUERY_PATH"`
	} `json:"store"`

	// Matcher contains scoring configuration.
	Matcher struct {
		// Workers bounds parallel scoring. Zero uses every CPU.
		Workers int `json:"workers" env:"MATCHER_WORKERS"`

		// RankLimit is the default number of ranked matches returned.
		RankLimit int `json:"rank_limit" env:"MATCHER_RANK_LIMIT" validate:"min:1"`
	} `json:"matcher"`

	// Explainer contains text-generation configuration.
	Explainer struct {
		// Provider is "google", "openai", "anthropic" or "basic" (offline).
		Provider string `json:"provider" env:"EXPLAINER_PROVIDER" validate:"required"`

		// ModelID overrides the primary provider's default model.
		ModelID string `json:"model_id" env:"EXPLAINER_MODEL_ID"`

		// APIKey is the primary provider's key. Empty falls back to the
		// provider's conventional environment variable.
		APIKey string `json:"api_key" env:"EXPLAINER_API_KEY"`

		// Language is the language explanations are requested in.
		Language string `json:"language" env:"EXPLAINER_LANGUAGE"`

		// FallbackOrder is a comma-separated list of providers tried after the primary.
		FallbackOrder string `json:"fallback_order" env:"EXPLAINER_FALLBACK_ORDER"`

		// MaxRetries is the number of retries per provider.
		MaxRetries int `json:"max_retries" env:"EXPLAINER_MAX_RETRIES"`

		// TimeoutSeconds bounds one provider call.
		TimeoutSeconds int `json:"timeout_seconds" env:"EXPLAINER_TIMEOUT_SECONDS" validate:"min:1"`

		// DisableOffline turns provider failure into an error instead of a
		// local excerpt.
		DisableOffline bool `json:"disable_offline" env:"EXPLAINER_DISABLE_OFFLINE"`
	} `json:"explainer"`

	// Embedder contains ingestion configuration.
	Embedder struct {
		// Provider is "command" (external tool) or "mock" (in-process, offline).
		Provider string `json:"provider" env:"EMBEDDER_PROVIDER" validate:"required"`

		// Command is the external embedding tool.
		Command string `json:"command" env:"EMBEDDER_COMMAND"`

		// Dimensions is the vector width of the mock embedder.
		Dimensions int `json:"dimensions" env:"EMBEDDER_DIMENSIONS" validate:"min:1"`
	} `json:"embedder"`

	// Logging contains logging-related configuration.
	Logging struct {
		// Level is the minimum log level to display ("debug", "info", "warn", "error").
		Level string `json:"level" env:"LOG_LEVEL" validate:"required"`

		// Format is the log format to use ("text", "json").
		Format string `json:"format" env:"LOG_FORMAT"`
	} `json:"logging"`

	// Internal state (not saved to config file)
	configPath     string       `json:"-"`
	mutex          sync.RWMutex `json:"-"`
	lastModifiedAt time.Time    `json:"-"`
}

// Default configuration values
const (
	DefaultConfigFilename   = ".codematchconfig"
	DefaultEnvPrefix        = "CODEMATCH"
	DefaultDataDir          = "data"
	DefaultCorpusFilename   = "common_database.db"
	DefaultQueryFilename    = "question.db"
	DefaultExplainer        = "google"
	DefaultLanguage         = "Japanese"
	DefaultFallbackOrder    = "openai,anthropic"
	DefaultMaxRetries       = 2
	DefaultTimeoutSeconds   = 60
	DefaultEmbedder         = "command"
	DefaultEmbedderCommand  = "gemini-cli"
	DefaultEmbedderDims     = 768
	DefaultRankLimit        = 5
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	ExplainerBasic          = "basic"
	EmbedderCommandProvider = "command"
	EmbedderMockProvider    = "mock"
)

var (
	explainerProviders = []string{"google", "openai", "anthropic", ExplainerBasic}
	embedderProviders  = []string{EmbedderCommandProvider, EmbedderMockProvider}
	logLevels          = []string{"debug", "info", "warn", "error"}
	logFormats         = []string{"text", "json"}

	// apiKeyEnv lists the conventional key variables per provider, most
	// specific first.
	apiKeyEnv = map[string][]string{
		"google":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"openai":    {"OPENAI_API_KEY"},
		"anthropic": {"ANTHROPIC_API_KEY"},
	}
)

// NewConfig creates a new Config instance with default values
func NewConfig() *Config {
	config := &Config{}
	config.Store.DataDir = DefaultDataDir
	config.Matcher.RankLimit = DefaultRankLimit
	config.Explainer.Provider = DefaultExplainer
	config.Explainer.Language = DefaultLanguage
	config.Explainer.FallbackOrder = DefaultFallbackOrder
	config.Explainer.MaxRetries = DefaultMaxRetries
	config.Explainer.TimeoutSeconds = DefaultTimeoutSeconds
	config.Embedder.Provider = DefaultEmbedder
	config.Embedder.Command = DefaultEmbedderCommand
	config.Embedder.Dimensions = DefaultEmbedderDims
	config.Logging.Level = DefaultLogLevel
	config.Logging.Format = DefaultLogFormat
	return config
}

// LoadConfig loads the configuration from the default path
func LoadConfig() (*Config, error) {
	return LoadConfigWithPath(DefaultConfigFilename)
}

// LoadConfigWithPath loads the configuration from a specific path. Loading
// logs to stderr so stdout stays free for the MCP transport.
func LoadConfigWithPath(configPath string) (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	return Load(context.Background(), configPath, logger)
}

// Load reads the configuration file at configPath, if any, on top of the
// defaults and then applies the environment.
func Load(ctx context.Context, configPath string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if configPath == "" {
		configPath = DefaultConfigFilename
	}

	cfg := NewConfig()

	if configPath == DefaultConfigFilename {
		if foundPath, err := configurator.FindConfigFile(configPath); err == nil {
			configPath = foundPath
			logger.Debug("Found config file at " + foundPath)
		}
	}

	loader := configurator.New(logger).
		WithProvider(configurator.NewDefaultProvider())

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		logger.Debug("Config file not found, using default configuration", "path", configPath)
	} else {
		logger.Info("Loading configuration", "path", configPath)
		loader = loader.WithProvider(configurator.NewFileProvider(configPath))
	}

	loader = loader.
		WithProvider(configurator.NewEnvProvider(DefaultEnvPrefix)).
		WithValidator(configurator.NewDefaultValidator())

	if err := loader.Load(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.ApplyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.configPath = configPath
	cfg.lastModifiedAt = time.Now()
	return cfg, nil
}

// ApplyEnvironment applies the variables the embedding tool and the hosted
// APIs conventionally use: PROJECT_ROOT moves the default data directory,
// and provider keys fill an empty explainer key.
func (c *Config) ApplyEnvironment() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if root := os.Getenv("PROJECT_ROOT"); root != "" && c.Store.DataDir == DefaultDataDir {
		c.Store.DataDir = filepath.Join(root, DefaultDataDir)
	}
	if dir := os.Getenv(DefaultEnvPrefix + "_DATA_DIR"); dir != "" {
		c.Store.DataDir = dir
	}
	if c.Explainer.APIKey == "" {
		c.Explainer.APIKey = LookupAPIKey(c.Explainer.Provider)
	}
}

// LookupAPIKey returns the first non-empty conventional key variable for
// provider.
func LookupAPIKey(provider string) string {
	for _, name := range apiKeyEnv[provider] {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if strings.TrimSpace(c.Store.DataDir) == "" {
		return errors.New("store.data_dir is required")
	}
	if !slices.Contains(explainerProviders, c.Explainer.Provider) {
		return fmt.Errorf("explainer.provider %q is not one of %s", c.Explainer.Provider, strings.Join(explainerProviders, ", "))
	}
	for _, name := range c.FallbackProviders() {
		if !slices.Contains(explainerProviders, name) || name == ExplainerBasic {
			return fmt.Errorf("explainer.fallback_order has unknown provider %q", name)
		}
	}
	if !slices.Contains(embedderProviders, c.Embedder.Provider) {
		return fmt.Errorf("embedder.provider %q is not one of %s", c.Embedder.Provider, strings.Join(embedderProviders, ", "))
	}
	if c.Embedder.Dimensions < 1 {
		return errors.New("embedder.dimensions must be positive")
	}
	if c.Matcher.Workers < 0 {
		return errors.New("matcher.workers must not be negative")
	}
	if c.Explainer.MaxRetries < 0 {
		return errors.New("explainer.max_retries must not be negative")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level %q is not one of %s", c.Logging.Level, strings.Join(logLevels, ", "))
	}
	if c.Logging.Format != "" && !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("logging.format %q is not one of %s", c.Logging.Format, strings.Join(logFormats, ", "))
	}
	return nil
}

// CorpusPath returns the corpus store path.
func (c *Config) CorpusPath() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.Store.CorpusPath != "" {
		return c.Store.CorpusPath
	}
	return filepath.Join(c.Store.DataDir, DefaultCorpusFilename)
}

// QueryPath returns the query store path.
func (c *Config) QueryPath() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.Store.QueryPath != "" {
		return c.Store.QueryPath
	}
	return filepath.Join(c.Store.DataDir, DefaultQueryFilename)
}

// FallbackProviders returns the parsed fallback order.
func (c *Config) FallbackProviders() []string {
	var names []string
	for _, name := range strings.Split(c.Explainer.FallbackOrder, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ExplainerTimeout returns the per-call timeout.
func (c *Config) ExplainerTimeout() time.Duration {
	return time.Duration(c.Explainer.TimeoutSeconds) * time.Second
}

// SaveToFile saves the configuration to the specified file
func (c *Config) SaveToFile(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := configurator.SaveToFile(c, path, configurator.FormatJSON); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	c.configPath = path
	c.lastModifiedAt = time.Now()

	return nil
}

// Save saves the configuration to the last used file path
func (c *Config) Save() error {
	if c.configPath == "" {
		c.configPath = DefaultConfigFilename
	}
	return c.SaveToFile(c.configPath)
}

// GetConfigPath returns the path of the currently loaded configuration file
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// LastModified returns when the configuration was last loaded or saved.
func (c *Config) LastModified() time.Time {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.lastModifiedAt
}
