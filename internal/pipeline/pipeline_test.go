package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrivet/codematch/internal/embeddingstore"
	"github.com/localrivet/codematch/internal/errortypes"
	"github.com/localrivet/codematch/internal/explainer"
	"github.com/localrivet/codematch/internal/ingest"
	"github.com/localrivet/codematch/internal/matcher"
	"github.com/localrivet/codematch/internal/telemetry"
	"github.com/localrivet/codematch/internal/vector"
)

const (
	helloPy = "print('hello')\n"
	mainGo  = "package main\n\nfunc main() {}\n"
)

type fixture struct {
	pipeline *Pipeline
	ingester *ingest.Ingester
	dataDir  string
	srcDir   string
	metrics  *telemetry.MetricsCollector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dataDir := filepath.Join(t.TempDir(), "data")
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.py"), []byte(helloPy), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "main.go"), []byte(mainGo), 0o644))

	metrics := telemetry.NewMetricsCollector()
	backend := ingest.NewEmbedderBackend(vector.NewMockEmbedder(32), nil)
	ing := ingest.New(dataDir, backend, metrics, nil)

	p, err := New(Options{
		CorpusPath: filepath.Join(dataDir, "common_database.db"),
		QueryPath:  ing.QuestionDBPath(),
		Matcher:    matcher.New(2),
		Explainer:  explainer.NewBasicExplainer(0),
		Ingester:   ing,
		Metrics:    metrics,
	})
	require.NoError(t, err)

	return &fixture{pipeline: p, ingester: ing, dataDir: dataDir, srcDir: srcDir, metrics: metrics}
}

func (f *fixture) addSource(t *testing.T) *ingest.SourceRecord {
	t.Helper()
	record, err := f.pipeline.MakeSourceDB(context.Background(), f.srcDir, "hello.py,main.go")
	require.NoError(t, err)
	return record
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{CorpusPath: "c.db", QueryPath: "q.db"})
	assert.True(t, errortypes.Is(err, errortypes.ErrorTypeConfig))

	_, err = New(Options{
		Explainer: explainer.NewBasicExplainer(0),
		Ingester:  ingest.New(t.TempDir(), nil, nil, nil),
	})
	assert.True(t, errortypes.Is(err, errortypes.ErrorTypeConfig))
}

func TestMatchSelectsQuestionSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.addSource(t)

	_, err := f.pipeline.MakeQuestionDB(ctx, mainGo)
	require.NoError(t, err)

	result, err := f.pipeline.Match(ctx, record.UUID)
	require.NoError(t, err)
	assert.Equal(t, "main.go", result.ID)
	assert.Equal(t, 1, result.Index)
	assert.InDelta(t, 1.0, result.Score, 1e-6)
	assert.Equal(t, 2, result.Diagnostics.Compared)

	assert.Equal(t, int64(1), f.metrics.GetCounter(telemetry.MetricMatchRuns))
	assert.Equal(t, int64(2), f.metrics.GetCounter(telemetry.MetricMatchCompared))
	assert.InDelta(t, 1.0, f.metrics.GetGauge(telemetry.MetricMatchBestScore), 1e-6)
}

func TestMatchBySourcePath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addSource(t)

	_, err := f.pipeline.MakeQuestionDB(ctx, helloPy)
	require.NoError(t, err)

	result, err := f.pipeline.Match(ctx, f.srcDir)
	require.NoError(t, err)
	assert.Equal(t, "hello.py", result.ID)
}

func TestMatchWithoutQuestion(t *testing.T) {
	f := newFixture(t)
	record := f.addSource(t)

	_, err := f.pipeline.Match(context.Background(), record.UUID)
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddingstore.ErrMissingQuery)
	assert.True(t, errortypes.IsNotFoundError(err))
	assert.Equal(t, int64(1), f.metrics.GetCounter(telemetry.MetricMatchFailures))
}

func TestMatchMissingCorpus(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Match(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreNotFound)
	assert.True(t, errortypes.IsNotFoundError(err))
}

func TestMatchUnknownSource(t *testing.T) {
	f := newFixture(t)
	f.addSource(t)

	_, err := f.pipeline.Match(context.Background(), "not-a-source")
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrSourceNotFound)
	assert.True(t, errortypes.IsNotFoundError(err))
}

func writeStore(t *testing.T, path string, rows map[string]string, order []string, embed func(string) []float32) {
	t.Helper()
	store := embeddingstore.NewSQLiteStore(nil)
	require.NoError(t, store.InitializeWritable(path))
	defer store.Close()
	for _, id := range order {
		require.NoError(t, store.Append(context.Background(), id, rows[id], embed(id)))
	}
}

func TestMatchEmptyCorpus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	corpusPath := filepath.Join(t.TempDir(), "empty.db")
	writeStore(t, corpusPath, nil, nil, nil)

	_, err := f.pipeline.MakeQuestionDB(ctx, "anything")
	require.NoError(t, err)

	_, err = f.pipeline.Match(ctx, corpusPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, matcher.ErrEmptyCorpus)
	assert.True(t, errortypes.IsNotFoundError(err))
}

func TestMatchNoComparableEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	corpusPath := filepath.Join(t.TempDir(), "short.db")
	writeStore(t, corpusPath, map[string]string{"a.go": "x"}, []string{"a.go"},
		func(string) []float32 { return []float32{1, 0} })

	_, err := f.pipeline.MakeQuestionDB(ctx, "anything")
	require.NoError(t, err)

	_, err = f.pipeline.Match(ctx, corpusPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, matcher.ErrNoComparableEntries)

	var noMatch *matcher.NoMatchError
	require.True(t, errors.As(err, &noMatch))
	assert.Equal(t, 1, noMatch.Diagnostics.Incomparable)
	assert.Equal(t, int64(1), f.metrics.GetCounter(telemetry.MetricMatchIncomparable))
}

func TestRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.addSource(t)

	_, err := f.pipeline.MakeQuestionDB(ctx, helloPy)
	require.NoError(t, err)

	ranking, err := f.pipeline.Rank(ctx, record.UUID, 0)
	require.NoError(t, err)
	require.Len(t, ranking.Matches, 2)
	assert.Equal(t, "hello.py", ranking.Matches[0].ID)
	assert.GreaterOrEqual(t, ranking.Matches[0].Score, ranking.Matches[1].Score)

	ranking, err = f.pipeline.Rank(ctx, record.UUID, 1)
	require.NoError(t, err)
	assert.Len(t, ranking.Matches, 1)
}

func TestExplain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.addSource(t)

	_, err := f.pipeline.MakeQuestionDB(ctx, mainGo)
	require.NoError(t, err)

	answer, err := f.pipeline.Explain(ctx, record.UUID)
	require.NoError(t, err)
	assert.Equal(t, "main.go", answer.Result.ID)
	assert.Equal(t, mainGo, answer.Content.Text)
	assert.Equal(t, "go", answer.Content.Type)
	require.NotNil(t, answer.Explanation)
	assert.True(t, answer.Explanation.Offline)
	assert.Contains(t, answer.Explanation.Text, "package main")
}

func TestExplainContentNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.MakeQuestionDB(ctx, "question")
	require.NoError(t, err)

	embedder := vector.NewMockEmbedder(32)
	query, err := embedder.CreateEmbedding("question")
	require.NoError(t, err)

	corpusPath := filepath.Join(t.TempDir(), "nocontent.db")
	writeStore(t, corpusPath, map[string]string{"a.go": ""}, []string{"a.go"},
		func(string) []float32 { return query })

	_, err = f.pipeline.Explain(ctx, corpusPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddingstore.ErrContentNotFound)
	assert.True(t, errortypes.IsNotFoundError(err))
}

func TestAskReplacesQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.addSource(t)

	answer, err := f.pipeline.Ask(ctx, record.UUID, helloPy)
	require.NoError(t, err)
	assert.Equal(t, "hello.py", answer.Result.ID)

	answer, err = f.pipeline.Ask(ctx, record.UUID, mainGo)
	require.NoError(t, err)
	assert.Equal(t, "main.go", answer.Result.ID)

	questions, err := f.ingester.Questions()
	require.NoError(t, err)
	assert.Len(t, questions, 2)
}

func TestIngestErrorsAreTyped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.MakeQuestionDB(ctx, "  ")
	assert.ErrorIs(t, err, ingest.ErrEmptyQuestion)
	assert.True(t, errortypes.IsValidationError(err))

	_, err = f.pipeline.MakeSourceDB(ctx, f.srcDir, "*.py")
	assert.ErrorIs(t, err, ingest.ErrPatternUnsupported)
	assert.True(t, errortypes.IsValidationError(err))

	_, err = f.pipeline.MakeSourceDB(ctx, f.srcDir, "missing.py")
	assert.True(t, errortypes.IsExternalError(err))
}

func TestSources(t *testing.T) {
	f := newFixture(t)

	sources, err := f.pipeline.Sources()
	require.NoError(t, err)
	assert.Empty(t, sources)

	record := f.addSource(t)
	sources, err = f.pipeline.Sources()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, record.UUID, sources[0].UUID)
	assert.Equal(t, ingest.TypeFilesList, sources[0].Type)
}
