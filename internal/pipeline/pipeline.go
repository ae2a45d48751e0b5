// Package pipeline runs the codematch operations end to end: it opens the
// corpus and query stores, selects the best match, loads the matched content
// and asks the explainer about it. The MCP server and the command line both
// drive the same Pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/localrivet/codematch/internal/embeddingstore"
	"github.com/localrivet/codematch/internal/errortypes"
	"github.com/localrivet/codematch/internal/explainer"
	"github.com/localrivet/codematch/internal/ingest"
	"github.com/localrivet/codematch/internal/matcher"
	"github.com/localrivet/codematch/internal/telemetry"
	"github.com/localrivet/codematch/internal/vector"
)

// ErrStoreNotFound is returned when a store file does not exist.
var ErrStoreNotFound = errors.New("store file not found")

// Options wires a Pipeline.
type Options struct {
	CorpusPath string
	QueryPath  string
	Matcher    *matcher.Matcher
	Explainer  explainer.Explainer
	Ingester   *ingest.Ingester
	Metrics    *telemetry.MetricsCollector
	Logger     *slog.Logger
}

// Pipeline runs match, rank, explain and ingestion operations.
type Pipeline struct {
	corpusPath string
	queryPath  string
	matcher    *matcher.Matcher
	explainer  explainer.Explainer
	ingester   *ingest.Ingester
	metrics    *telemetry.MetricsCollector
	logger     *slog.Logger
}

// Answer is the outcome of Explain: the match, its content and the
// explanation of that content.
type Answer struct {
	Result      *matcher.Result
	Content     embeddingstore.Content
	Explanation *explainer.Explanation
}

// New creates a Pipeline. The explainer and ingester are required; a nil
// matcher uses every CPU.
func New(opts Options) (*Pipeline, error) {
	if opts.Explainer == nil || opts.Ingester == nil {
		return nil, errortypes.ConfigError(errors.New("missing dependencies"), "pipeline initialization failed")
	}
	if opts.CorpusPath == "" || opts.QueryPath == "" {
		return nil, errortypes.ConfigError(errors.New("corpus and query paths are required"), "pipeline initialization failed")
	}
	if opts.Matcher == nil {
		opts.Matcher = matcher.New(0)
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewMetricsCollector()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Pipeline{
		corpusPath: opts.CorpusPath,
		queryPath:  opts.QueryPath,
		matcher:    opts.Matcher,
		explainer:  opts.Explainer,
		ingester:   opts.Ingester,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}, nil
}

// Metrics returns the collector the pipeline records to.
func (p *Pipeline) Metrics() *telemetry.MetricsCollector {
	return p.metrics
}

// ResolveCorpus returns the corpus store path for source. An empty source
// is the configured corpus; an existing file path is used as is; anything
// else is looked up in the source manifest.
func (p *Pipeline) ResolveCorpus(source string) (string, error) {
	if source == "" {
		return p.corpusPath, nil
	}
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		return source, nil
	}

	path, err := p.ingester.ResolveSource(source)
	if err != nil {
		if errors.Is(err, ingest.ErrSourceNotFound) {
			return "", errortypes.NotFoundError(err, "unknown source").WithField("source", source)
		}
		return "", errortypes.InternalError(err, "failed to read source manifest")
	}
	return path, nil
}

// openStore opens a store read-only, reporting a missing file as
// ErrStoreNotFound.
func (p *Pipeline) openStore(path, role string) (*embeddingstore.SQLiteStore, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, errortypes.NotFoundError(ErrStoreNotFound, fmt.Sprintf("%s store is missing", role)).
			WithField("path", path)
	}

	store := embeddingstore.NewSQLiteStore(p.logger)
	if err := store.Initialize(path); err != nil {
		return nil, errortypes.DatabaseError(err, fmt.Sprintf("failed to open %s store", role)).
			WithField("path", path)
	}
	return store, nil
}

// loadQuery reads the query embedding from the query store.
func (p *Pipeline) loadQuery(ctx context.Context) ([]float32, error) {
	if _, err := os.Stat(p.queryPath); errors.Is(err, os.ErrNotExist) {
		return nil, errortypes.NotFoundError(embeddingstore.ErrMissingQuery, "no question has been stored").
			WithField("path", p.queryPath)
	}

	store, err := p.openStore(p.queryPath, "query")
	if err != nil {
		return nil, err
	}
	defer store.Close()

	query, err := store.LoadQuery(ctx)
	switch {
	case err == nil:
		return query, nil
	case errors.Is(err, embeddingstore.ErrMissingQuery):
		return nil, errortypes.NotFoundError(err, "no question has been stored").WithField("path", p.queryPath)
	case errors.Is(err, vector.ErrMalformedEmbedding):
		return nil, errortypes.ValidationError(err, "query embedding is malformed").WithField("path", p.queryPath)
	default:
		return nil, errortypes.DatabaseError(err, "failed to load query").WithField("path", p.queryPath)
	}
}

// selectBest runs the matcher against the corpus held by store.
func (p *Pipeline) selectBest(ctx context.Context, store *embeddingstore.SQLiteStore) (*matcher.Result, error) {
	start := time.Now()
	p.metrics.IncrementCounter(telemetry.MetricMatchRuns, 1)
	p.metrics.RecordTimestamp(telemetry.MetricMatchLastRun)

	corpus, err := store.LoadCorpus(ctx)
	if err != nil {
		p.metrics.IncrementCounter(telemetry.MetricMatchFailures, 1)
		return nil, errortypes.DatabaseError(err, "failed to load corpus").WithField("path", store.Path())
	}
	p.logger.Debug("Loaded corpus", "path", store.Path(), "entries", corpus.Len(), "malformed", corpus.Malformed())

	query, err := p.loadQuery(ctx)
	if err != nil {
		p.metrics.IncrementCounter(telemetry.MetricMatchFailures, 1)
		return nil, err
	}

	result, err := p.matcher.Match(corpus, query)
	p.metrics.RecordTimer(telemetry.MetricMatchDuration, time.Since(start))
	if err != nil {
		p.metrics.IncrementCounter(telemetry.MetricMatchFailures, 1)
		return nil, p.matchError(err, store.Path())
	}

	p.recordDiagnostics(result.Diagnostics)
	p.metrics.SetGauge(telemetry.MetricMatchBestScore, result.Score)
	p.logger.Info("Selected best match",
		"id", result.ID, "score", result.Score,
		"compared", result.Diagnostics.Compared, "skipped", result.Diagnostics.Skipped())
	return result, nil
}

func (p *Pipeline) matchError(err error, corpusPath string) error {
	var noMatch *matcher.NoMatchError
	if errors.As(err, &noMatch) {
		p.recordDiagnostics(noMatch.Diagnostics)
		return errortypes.NotFoundError(err, "no match").
			WithField("path", corpusPath).
			WithField("total", noMatch.Diagnostics.Total)
	}
	if errors.Is(err, matcher.ErrEmptyQuery) {
		return errortypes.ValidationError(err, "invalid query")
	}
	return errortypes.InternalError(err, "match failed")
}

func (p *Pipeline) recordDiagnostics(d matcher.Diagnostics) {
	p.metrics.IncrementCounter(telemetry.MetricMatchCompared, int64(d.Compared))
	p.metrics.IncrementCounter(telemetry.MetricMatchIncomparable, int64(d.Incomparable))
	p.metrics.IncrementCounter(telemetry.MetricMatchDegenerate, int64(d.Degenerate))
	p.metrics.IncrementCounter(telemetry.MetricMatchMalformed, int64(d.Malformed))
	if d.Skipped() > 0 {
		p.logger.Warn("Skipped corpus entries",
			"incomparable", d.Incomparable, "degenerate", d.Degenerate, "malformed", d.Malformed)
	}
}

// Match selects the corpus entry most similar to the stored question.
func (p *Pipeline) Match(ctx context.Context, source string) (*matcher.Result, error) {
	corpusPath, err := p.ResolveCorpus(source)
	if err != nil {
		return nil, err
	}
	store, err := p.openStore(corpusPath, "corpus")
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return p.selectBest(ctx, store)
}

// Rank returns up to limit corpus entries ordered by similarity.
func (p *Pipeline) Rank(ctx context.Context, source string, limit int) (*matcher.Ranking, error) {
	corpusPath, err := p.ResolveCorpus(source)
	if err != nil {
		return nil, err
	}
	store, err := p.openStore(corpusPath, "corpus")
	if err != nil {
		return nil, err
	}
	defer store.Close()

	corpus, err := store.LoadCorpus(ctx)
	if err != nil {
		return nil, errortypes.DatabaseError(err, "failed to load corpus").WithField("path", corpusPath)
	}
	query, err := p.loadQuery(ctx)
	if err != nil {
		return nil, err
	}

	ranking, err := matcher.Rank(corpus, query, limit)
	if err != nil {
		return nil, p.matchError(err, corpusPath)
	}
	return ranking, nil
}

// Explain selects the best match, loads its content and explains it.
func (p *Pipeline) Explain(ctx context.Context, source string) (*Answer, error) {
	corpusPath, err := p.ResolveCorpus(source)
	if err != nil {
		return nil, err
	}
	store, err := p.openStore(corpusPath, "corpus")
	if err != nil {
		return nil, err
	}
	defer store.Close()

	result, err := p.selectBest(ctx, store)
	if err != nil {
		return nil, err
	}

	content, err := store.LoadContent(ctx, result.ID)
	if err != nil {
		if errors.Is(err, embeddingstore.ErrContentNotFound) {
			return nil, errortypes.NotFoundError(err, "matched entry has no content").
				WithField("id", result.ID).
				WithField("path", corpusPath)
		}
		return nil, errortypes.DatabaseError(err, "failed to load content").WithField("id", result.ID)
	}

	explanation, err := p.explainer.Explain(ctx, content)
	if err != nil {
		return nil, errortypes.ExternalError(err, "failed to explain match").WithField("id", result.ID)
	}

	return &Answer{Result: result, Content: content, Explanation: explanation}, nil
}

// Ask stores question as the new query and then runs Explain.
func (p *Pipeline) Ask(ctx context.Context, source, question string) (*Answer, error) {
	if _, err := p.MakeQuestionDB(ctx, question); err != nil {
		return nil, err
	}
	return p.Explain(ctx, source)
}

// MakeSourceDB embeds the files of dir selected by filesSpec into a new
// source store.
func (p *Pipeline) MakeSourceDB(ctx context.Context, dir, filesSpec string) (*ingest.SourceRecord, error) {
	record, err := p.ingester.MakeSourceDB(ctx, dir, filesSpec)
	if err != nil {
		return nil, ingestError(err, "failed to create source store").WithField("dir", dir)
	}
	return record, nil
}

// MakeQuestionDB replaces the query store with the embedding of question.
func (p *Pipeline) MakeQuestionDB(ctx context.Context, question string) (*ingest.QuestionRecord, error) {
	record, err := p.ingester.MakeQuestionDB(ctx, question)
	if err != nil {
		return nil, ingestError(err, "failed to create question store")
	}
	return record, nil
}

// Sources returns the recorded source stores.
func (p *Pipeline) Sources() ([]ingest.SourceRecord, error) {
	sources, err := p.ingester.Sources()
	if err != nil {
		return nil, errortypes.InternalError(err, "failed to read source manifest")
	}
	return sources, nil
}

func ingestError(err error, message string) *errortypes.AppError {
	switch {
	case errors.Is(err, ingest.ErrEmptyTarget),
		errors.Is(err, ingest.ErrEmptyFilesSpec),
		errors.Is(err, ingest.ErrEmptyQuestion),
		errors.Is(err, ingest.ErrPatternUnsupported):
		return errortypes.ValidationError(err, message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errortypes.InternalError(err, message)
	default:
		return errortypes.ExternalError(err, message)
	}
}
