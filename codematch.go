// Package codematch finds the stored source artifact whose embedding is most
// similar to a question's embedding and explains it with a hosted LLM.
package codematch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/localrivet/codematch/internal/config"
	"github.com/localrivet/codematch/internal/errortypes"
	"github.com/localrivet/codematch/internal/explainer"
	"github.com/localrivet/codematch/internal/explainer/providers"
	"github.com/localrivet/codematch/internal/ingest"
	"github.com/localrivet/codematch/internal/matcher"
	"github.com/localrivet/codematch/internal/pipeline"
	"github.com/localrivet/codematch/internal/server"
	"github.com/localrivet/codematch/internal/telemetry"
	"github.com/localrivet/codematch/internal/vector"
)

// Config represents the configuration for the codematch service.
type Config = config.Config

// Answer is a match, its content and the explanation of that content.
type Answer = pipeline.Answer

// Service represents the codematch service.
type Service struct {
	config     *config.Config
	components *Components
	pipeline   *pipeline.Pipeline
	toolServer server.ToolServer
	logger     *slog.Logger
}

// ServiceOptions defines the options for creating a new Service.
type ServiceOptions struct {
	Config     *Config      // Pre-filled config. If nil, ConfigPath is used.
	ConfigPath string       // Path to config file. Used if Config is nil. If both are empty, DefaultConfig() is used.
	Logger     *slog.Logger // External logger. If nil, slog.Default() is used.
}

// Components are the parts a Service is assembled from.
type Components struct {
	Matcher   *matcher.Matcher
	Explainer explainer.Explainer
	Ingester  *ingest.Ingester
	Metrics   *telemetry.MetricsCollector
}

// NewService creates a new codematch Service with the given options.
// If opts.Config is provided, it will be used directly.
// Otherwise, if opts.ConfigPath is provided, configuration will be loaded from that path.
// If neither is provided, DefaultConfig() will be used.
func NewService(opts ServiceOptions) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg *Config
	var err error

	if opts.Config != nil {
		cfg = opts.Config
		logger.Debug("Using provided Config object for service initialization")
	} else if opts.ConfigPath != "" {
		logger.Info("Loading configuration for service initialization", "path", opts.ConfigPath)
		cfg, err = config.Load(context.Background(), opts.ConfigPath, logger)
		if err != nil {
			return nil, errortypes.ConfigError(err, "failed to load configuration from path: "+opts.ConfigPath)
		}
	} else {
		logger.Debug("No Config object or ConfigPath provided, using default configuration")
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errortypes.ConfigError(err, "invalid configuration")
	}

	components, err := CreateComponents(cfg, logger)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(pipeline.Options{
		CorpusPath: cfg.CorpusPath(),
		QueryPath:  cfg.QueryPath(),
		Matcher:    components.Matcher,
		Explainer:  components.Explainer,
		Ingester:   components.Ingester,
		Metrics:    components.Metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	toolServer := server.NewToolServer(p, logger)
	if err := toolServer.Initialize(); err != nil {
		return nil, errortypes.ConfigError(err, "failed to initialize MCP tool server")
	}

	logger.Debug("codematch service initialized",
		"corpus", cfg.CorpusPath(), "query", cfg.QueryPath(), "data_dir", cfg.Store.DataDir)
	return &Service{
		config:     cfg,
		components: components,
		pipeline:   p,
		toolServer: toolServer,
		logger:     logger,
	}, nil
}

// DefaultConfig returns the default configuration for the codematch service.
func DefaultConfig() *Config {
	return config.NewConfig()
}

// CreateComponents creates the matcher, explainer and ingester described by
// cfg without creating a service.
func CreateComponents(cfg *Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := telemetry.NewMetricsCollector()

	exp, err := newExplainer(cfg, metrics, logger)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Components{
		Matcher:   matcher.New(cfg.Matcher.Workers),
		Explainer: exp,
		Ingester:  ingest.New(cfg.Store.DataDir, backend, metrics, logger),
		Metrics:   metrics,
	}, nil
}

// newExplainer builds the configured explainer. Without any usable API key
// it degrades to the offline explainer unless offline answers are disabled.
func newExplainer(cfg *Config, metrics *telemetry.MetricsCollector, logger *slog.Logger) (explainer.Explainer, error) {
	if cfg.Explainer.Provider == config.ExplainerBasic {
		logger.Debug("Using offline explainer")
		return explainer.NewBasicExplainer(explainer.DefaultMaxExcerptLength), nil
	}

	configs := make(map[string]providers.Config)
	for _, name := range append([]string{cfg.Explainer.Provider}, cfg.FallbackProviders()...) {
		configs[name] = providers.Config{APIKey: config.LookupAPIKey(name)}
	}
	configs[cfg.Explainer.Provider] = providers.Config{
		APIKey:  cfg.Explainer.APIKey,
		ModelID: cfg.Explainer.ModelID,
	}

	exp := explainer.NewAIExplainer(&explainer.AIExplainerConfig{
		Provider:       cfg.Explainer.Provider,
		Providers:      configs,
		FallbackOrder:  cfg.FallbackProviders(),
		Language:       cfg.Explainer.Language,
		Timeout:        cfg.ExplainerTimeout(),
		MaxRetries:     cfg.Explainer.MaxRetries,
		DisableOffline: cfg.Explainer.DisableOffline,
	}, metrics, logger)

	if err := exp.Initialize(); err != nil {
		if cfg.Explainer.DisableOffline {
			return nil, errortypes.ConfigError(err, "failed to initialize explainer").
				WithField("provider", cfg.Explainer.Provider)
		}
		logger.Warn("No explanation provider has an API key, answers will be offline excerpts",
			"provider", cfg.Explainer.Provider)
		return explainer.NewBasicExplainer(explainer.DefaultMaxExcerptLength), nil
	}
	return exp, nil
}

func newBackend(cfg *Config, logger *slog.Logger) (ingest.Backend, error) {
	switch cfg.Embedder.Provider {
	case config.EmbedderMockProvider:
		return ingest.NewEmbedderBackend(vector.NewMockEmbedder(cfg.Embedder.Dimensions), logger), nil
	case config.EmbedderCommandProvider, "":
		return ingest.NewCommandBackend(cfg.Embedder.Command, logger), nil
	default:
		return nil, errortypes.ConfigError(fmt.Errorf("unknown embedder provider %q", cfg.Embedder.Provider), "invalid configuration")
	}
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// Metrics returns the service's metrics collector.
func (s *Service) Metrics() *telemetry.MetricsCollector {
	return s.components.Metrics
}

// Match selects the entry of source most similar to the stored question.
// An empty source uses the configured corpus.
func (s *Service) Match(ctx context.Context, source string) (*matcher.Result, error) {
	return s.pipeline.Match(ctx, source)
}

// Rank returns the entries of source ordered by similarity. A limit of zero
// or less uses the configured rank limit.
func (s *Service) Rank(ctx context.Context, source string, limit int) (*matcher.Ranking, error) {
	if limit <= 0 {
		limit = s.config.Matcher.RankLimit
	}
	return s.pipeline.Rank(ctx, source, limit)
}

// Explain matches and explains the best entry of source.
func (s *Service) Explain(ctx context.Context, source string) (*Answer, error) {
	return s.pipeline.Explain(ctx, source)
}

// Ask stores question as the new query and explains its best match.
func (s *Service) Ask(ctx context.Context, source, question string) (*Answer, error) {
	return s.pipeline.Ask(ctx, source, question)
}

// MakeSourceDB embeds the files of dir selected by filesSpec.
func (s *Service) MakeSourceDB(ctx context.Context, dir, filesSpec string) (*ingest.SourceRecord, error) {
	return s.pipeline.MakeSourceDB(ctx, dir, filesSpec)
}

// MakeQuestionDB replaces the query store with the embedding of question.
func (s *Service) MakeQuestionDB(ctx context.Context, question string) (*ingest.QuestionRecord, error) {
	return s.pipeline.MakeQuestionDB(ctx, question)
}

// Sources returns the recorded source stores.
func (s *Service) Sources() ([]ingest.SourceRecord, error) {
	return s.pipeline.Sources()
}

// ErrOfflineExplainer is returned by Health when explanations are produced
// offline and there is no provider to probe.
var ErrOfflineExplainer = errors.New("explainer runs offline")

// Health probes every configured LLM provider and reports the explainer's
// request metrics.
func (s *Service) Health(ctx context.Context) (*explainer.HealthReport, error) {
	ai, ok := s.components.Explainer.(*explainer.AIExplainer)
	if !ok {
		return nil, errortypes.ValidationError(ErrOfflineExplainer, "no LLM provider is configured")
	}
	report, err := explainer.CreateHealthReport(ctx, ai)
	if err != nil {
		return nil, errortypes.InternalError(err, "failed to create health report")
	}
	return report, nil
}

// Serve runs the MCP server on stdio until stdin closes.
func (s *Service) Serve() error {
	s.logger.Info("Starting codematch MCP service")
	return s.toolServer.Start()
}

// Close stops the MCP server. Stores are opened per call, so nothing else
// is held open.
func (s *Service) Close() error {
	if err := s.toolServer.Stop(); err != nil {
		s.logger.Error("Error stopping tool server", "error", err)
		return err
	}
	s.logger.Debug("codematch service stopped")
	return nil
}
