// Package ingest builds the corpus and question stores that the matcher
// reads, and keeps the JSON manifests that record them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localrivet/codematch/internal/embeddingstore"
	"github.com/localrivet/codematch/internal/telemetry"
)

// Well-known names inside the data directory.
const (
	SourceManifestName   = "source_db_map.json"
	QuestionManifestName = "question_map.json"
	QuestionDBName       = "question.db"
)

var (
	// ErrEmptyTarget is returned when no target directory is given.
	ErrEmptyTarget = errors.New("target directory is empty")

	// ErrEmptyFilesSpec is returned when no extension or file list is given.
	ErrEmptyFilesSpec = errors.New("files spec is empty")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrSourceNotFound is returned when a manifest reference is unknown.
	ErrSourceNotFound = errors.New("source store not found")
)

// ParseFilesSpec splits a files spec into a glob pattern or a list of file
// names. A spec starting with "*." is a pattern of type "files"; anything
// else is a comma-separated list of type "files-list".
func ParseFilesSpec(spec string) (fileType, pattern string, files []string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", nil, ErrEmptyFilesSpec
	}
	if strings.HasPrefix(spec, "*.") {
		return TypeFiles, spec, nil, nil
	}

	for _, f := range strings.Split(spec, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return "", "", nil, ErrEmptyFilesSpec
	}
	return TypeFilesList, "", files, nil
}

// ExtensionSpec turns a bare extension such as "py" or ".py" into the
// pattern "*.py".
func ExtensionSpec(ext string) string {
	return "*." + strings.TrimPrefix(strings.TrimSpace(ext), ".")
}

// Ingester creates stores in a data directory and records them in manifests.
type Ingester struct {
	dataDir string
	backend Backend
	metrics *telemetry.MetricsCollector
	logger  *slog.Logger

	now   func() time.Time
	newID func() string

	// mu serializes manifest updates within the process.
	mu sync.Mutex
}

// New creates an Ingester writing to dataDir through backend.
func New(dataDir string, backend Backend, metrics *telemetry.MetricsCollector, logger *slog.Logger) *Ingester {
	if metrics == nil {
		metrics = telemetry.NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		dataDir: dataDir,
		backend: backend,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// DataDir returns the directory the ingester writes to.
func (i *Ingester) DataDir() string {
	return i.dataDir
}

// SourceDBPath returns the store path for a source UUID.
func (i *Ingester) SourceDBPath(id string) string {
	return filepath.Join(i.dataDir, id+".db")
}

// QuestionDBPath returns the path of the question store.
func (i *Ingester) QuestionDBPath() string {
	return filepath.Join(i.dataDir, QuestionDBName)
}

// MakeSourceDB embeds the files of targetDir selected by filesSpec into a
// new store named after a fresh UUID and records it in the source manifest.
func (i *Ingester) MakeSourceDB(ctx context.Context, targetDir, filesSpec string) (*SourceRecord, error) {
	i.metrics.IncrementCounter(telemetry.MetricIngestSourceRuns, 1)

	record, err := i.makeSourceDB(ctx, targetDir, filesSpec)
	if err != nil {
		i.metrics.IncrementCounter(telemetry.MetricIngestFailures, 1)
		return nil, err
	}
	return record, nil
}

func (i *Ingester) makeSourceDB(ctx context.Context, targetDir, filesSpec string) (*SourceRecord, error) {
	targetDir = strings.TrimSpace(targetDir)
	if targetDir == "" {
		return nil, ErrEmptyTarget
	}
	fileType, pattern, files, err := ParseFilesSpec(filesSpec)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(i.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	id := i.newID()
	dbPath := i.SourceDBPath(id)
	req := EmbedRequest{DBPath: dbPath, Dir: targetDir, Files: files, Pattern: pattern}

	i.logger.Info("Creating source store", "dir", targetDir, "files", req.FilesArg(), "backend", i.backend.Name(), "db", dbPath)
	if err := i.backend.Embed(ctx, req); err != nil {
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to embed %s: %w", targetDir, err)
	}

	record := SourceRecord{
		Path: targetDir,
		UUID: id,
		Type: fileType,
		Time: i.now().Format(time.RFC3339Nano),
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := appendManifest(filepath.Join(i.dataDir, SourceManifestName), record); err != nil {
		return nil, err
	}

	i.logger.Info("Saved source store", "db", dbPath, "uuid", id)
	return &record, nil
}

// MakeQuestionDB saves question to <uuid>.txt, replaces the question store
// with a store holding exactly its embedding, and records it in the question
// manifest. A failed run leaves the previous question store in place.
func (i *Ingester) MakeQuestionDB(ctx context.Context, question string) (*QuestionRecord, error) {
	i.metrics.IncrementCounter(telemetry.MetricIngestQuestionRuns, 1)

	record, err := i.makeQuestionDB(ctx, question)
	if err != nil {
		i.metrics.IncrementCounter(telemetry.MetricIngestFailures, 1)
		return nil, err
	}
	return record, nil
}

func (i *Ingester) makeQuestionDB(ctx context.Context, question string) (record *QuestionRecord, err error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if err := os.MkdirAll(i.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	id := i.newID()
	txtPath := filepath.Join(i.dataDir, id+".txt")
	if err := os.WriteFile(txtPath, []byte(question), 0o644); err != nil {
		return nil, fmt.Errorf("failed to save question: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(txtPath)
		}
	}()

	// Build the new store beside the old one, then swap it in.
	stagingPath := filepath.Join(i.dataDir, "question-"+id+".db")
	defer os.Remove(stagingPath)

	req := EmbedRequest{DBPath: stagingPath, Files: []string{txtPath}}
	if err := i.backend.Embed(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	if err := i.checkQuestionStore(ctx, stagingPath); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := os.Rename(stagingPath, i.QuestionDBPath()); err != nil {
		return nil, fmt.Errorf("failed to replace question store: %w", err)
	}

	saved := QuestionRecord{
		Question: question,
		UUID:     id,
		Time:     i.now().Format(time.RFC3339Nano),
	}
	if err := appendManifest(filepath.Join(i.dataDir, QuestionManifestName), saved); err != nil {
		return nil, err
	}

	i.logger.Info("Saved question store", "db", i.QuestionDBPath(), "uuid", id)
	return &saved, nil
}

// checkQuestionStore verifies a freshly embedded question store holds one
// readable query embedding.
func (i *Ingester) checkQuestionStore(ctx context.Context, path string) error {
	store := embeddingstore.NewSQLiteStore(i.logger)
	if err := store.Initialize(path); err != nil {
		return fmt.Errorf("embedding tool produced no usable store: %w", err)
	}
	defer store.Close()

	if _, err := store.LoadQuery(ctx); err != nil {
		return fmt.Errorf("embedding tool produced no usable query: %w", err)
	}
	return nil
}

// Sources returns the source manifest.
func (i *Ingester) Sources() ([]SourceRecord, error) {
	return readManifest[SourceRecord](filepath.Join(i.dataDir, SourceManifestName))
}

// Questions returns the question manifest.
func (i *Ingester) Questions() ([]QuestionRecord, error) {
	return readManifest[QuestionRecord](filepath.Join(i.dataDir, QuestionManifestName))
}

// ResolveSource maps a reference to a store path. A reference is a source
// UUID, a unique UUID prefix, or the target path recorded for a source (the
// most recent store for that path wins).
func (i *Ingester) ResolveSource(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrSourceNotFound)
	}

	sources, err := i.Sources()
	if err != nil {
		return "", err
	}

	var prefixMatches []SourceRecord
	for idx := len(sources) - 1; idx >= 0; idx-- {
		src := sources[idx]
		if src.UUID == ref || src.Path == ref {
			return i.SourceDBPath(src.UUID), nil
		}
		if strings.HasPrefix(src.UUID, ref) {
			prefixMatches = append(prefixMatches, src)
		}
	}

	switch len(prefixMatches) {
	case 1:
		return i.SourceDBPath(prefixMatches[0].UUID), nil
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, ref)
	default:
		return "", fmt.Errorf("%w: %s is ambiguous (%d stores)", ErrSourceNotFound, ref, len(prefixMatches))
	}
}
