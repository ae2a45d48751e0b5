package embeddingstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"crawshaw.io/sqlite"

	"github.com/localrivet/codematch/internal/util"
	"github.com/localrivet/codematch/internal/vector"
)

// SQLiteStore is an embedding store kept in a single SQLite file.
// A crawshaw connection is not safe for concurrent use, so every operation
// holds mu for its duration.
type SQLiteStore struct {
	conn       *sqlite.Conn
	dbPath     string
	hasContent bool
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewSQLiteStore creates a new, unopened SQLiteStore. A nil logger falls back
// to slog.Default().
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{logger: logger}
}

// Initialize opens an existing store read-only. The embeddings table must
// exist and have id and embedding columns; content is optional.
func (s *SQLiteStore) Initialize(dbPath string) error {
	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database %s: %w", dbPath, err)
	}
	return s.attach(conn, dbPath)
}

// InitializeWritable opens or creates a store for writing, creating the
// embeddings table if it does not exist.
func (s *SQLiteStore) InitializeWritable(dbPath string) error {
	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_READWRITE)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database %s: %w", dbPath, err)
	}

	if err := exec(conn, `
	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT NOT NULL,
		content TEXT,
		embedding BLOB NOT NULL
	);`); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create table: %w", err)
	}

	return s.attach(conn, dbPath)
}

func (s *SQLiteStore) attach(conn *sqlite.Conn, dbPath string) error {
	columns, err := tableColumns(conn)
	if err != nil {
		conn.Close()
		return err
	}
	if !columns["id"] || !columns["embedding"] {
		conn.Close()
		return fmt.Errorf("table %s in %s must have id and embedding columns", TableName, dbPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.dbPath = dbPath
	s.hasContent = columns["content"]
	return nil
}

// Path returns the database file this store was opened on.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// HasContent reports whether the store carries a content column.
func (s *SQLiteStore) HasContent() bool {
	return s.hasContent
}

// Close closes the store and releases any resources.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// LoadCorpus reads all (id, embedding) rows in rowid order.
func (s *SQLiteStore) LoadCorpus(ctx context.Context) (vector.Corpus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrNotInitialized
	}
	defer s.interruptOn(ctx)()

	stmt, err := s.conn.Prepare(`SELECT id, embedding FROM embeddings ORDER BY rowid;`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare corpus query: %w", err)
	}
	defer stmt.Reset()

	corpus := vector.Corpus{}
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus row %d: %w", len(corpus), err)
		}
		if !hasRow {
			break
		}

		entry := vector.Entry{ID: stmt.ColumnText(0)}
		entry.Embedding, entry.Err = decodeColumn(stmt, 1)
		if entry.Err != nil {
			s.logger.Debug("Skipping undecodable corpus embedding", "id", entry.ID, "error", entry.Err)
		}
		corpus = append(corpus, entry)
	}

	return corpus, nil
}

// LoadQuery reads the query embedding. The store is expected to hold exactly
// one row; when it holds more, the first in rowid order is used.
func (s *SQLiteStore) LoadQuery(ctx context.Context) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, ErrNotInitialized
	}
	defer s.interruptOn(ctx)()

	stmt, err := s.conn.Prepare(`SELECT embedding FROM embeddings ORDER BY rowid;`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query lookup: %w", err)
	}
	defer stmt.Reset()

	hasRow, err := stmt.Step()
	if err != nil {
		return nil, fmt.Errorf("failed to read query row: %w", err)
	}
	if !hasRow {
		return nil, fmt.Errorf("%w: %s", ErrMissingQuery, s.dbPath)
	}

	embedding, err := decodeColumn(stmt, 0)
	if err != nil {
		return nil, fmt.Errorf("query embedding in %s: %w", s.dbPath, err)
	}

	extra := 0
	for {
		more, err := stmt.Step()
		if err != nil {
			s.logger.Warn("Stopped counting extra query rows", "path", s.dbPath, "counted", extra, "error", err)
			break
		}
		if !more {
			break
		}
		extra++
	}
	if extra > 0 {
		s.logger.Warn("Query store holds more than one embedding, using the first", "path", s.dbPath, "ignored", extra)
	}

	return embedding, nil
}

// LoadContent returns the content stored for id. The first row with that id
// wins when identifiers repeat.
func (s *SQLiteStore) LoadContent(ctx context.Context, id string) (Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return Content{}, ErrNotInitialized
	}
	if !s.hasContent {
		return Content{}, fmt.Errorf("%w: %s has no content column", ErrContentNotFound, s.dbPath)
	}
	defer s.interruptOn(ctx)()

	stmt, err := s.conn.Prepare(`SELECT content FROM embeddings WHERE id = ? ORDER BY rowid LIMIT 1;`)
	if err != nil {
		return Content{}, fmt.Errorf("failed to prepare content lookup: %w", err)
	}
	defer stmt.Reset()
	defer stmt.ClearBindings()

	stmt.BindText(1, id)

	hasRow, err := stmt.Step()
	if err != nil {
		return Content{}, fmt.Errorf("failed to read content for %s: %w", id, err)
	}
	if !hasRow {
		return Content{}, fmt.Errorf("%w: no row for id %q", ErrContentNotFound, id)
	}

	var text string
	switch stmt.ColumnType(0) {
	case sqlite.SQLITE_NULL:
		return Content{}, fmt.Errorf("%w: id %q has no content", ErrContentNotFound, id)
	case sqlite.SQLITE_BLOB:
		buf := make([]byte, stmt.ColumnLen(0))
		stmt.ColumnBytes(0, buf)
		text = string(buf)
	default:
		text = stmt.ColumnText(0)
	}

	return Content{ID: id, Text: text, Type: util.ContentType(id)}, nil
}

// Append stores one artifact.
func (s *SQLiteStore) Append(ctx context.Context, id, content string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotInitialized
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: refusing to store an empty embedding for %s", vector.ErrMalformedEmbedding, id)
	}
	defer s.interruptOn(ctx)()

	query := `INSERT INTO embeddings (id, embedding) VALUES (?, ?);`
	if s.hasContent {
		query = `INSERT INTO embeddings (id, embedding, content) VALUES (?, ?, ?);`
	}

	stmt, err := s.conn.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Reset()
	defer stmt.ClearBindings()

	stmt.BindText(1, id)
	stmt.BindBytes(2, vector.EncodeEmbedding(embedding))
	if s.hasContent {
		if content == "" {
			stmt.BindNull(3)
		} else {
			stmt.BindText(3, content)
		}
	}

	if _, err := stmt.Step(); err != nil {
		return fmt.Errorf("failed to insert embedding for %s: %w", id, err)
	}
	return nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return 0, ErrNotInitialized
	}
	defer s.interruptOn(ctx)()

	stmt, err := s.conn.Prepare(`SELECT COUNT(*) FROM embeddings;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare count: %w", err)
	}
	defer stmt.Reset()

	if _, err := stmt.Step(); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return int(stmt.ColumnInt64(0)), nil
}

// interruptOn makes ctx cancellation interrupt the running statement and
// returns a func restoring the previous interrupt channel.
func (s *SQLiteStore) interruptOn(ctx context.Context) func() {
	old := s.conn.SetInterrupt(ctx.Done())
	conn := s.conn
	return func() { conn.SetInterrupt(old) }
}

// decodeColumn decodes an embedding column. TEXT columns hold the legacy JSON
// form; anything other than BLOB or TEXT is malformed.
func decodeColumn(stmt *sqlite.Stmt, col int) ([]float32, error) {
	switch stmt.ColumnType(col) {
	case sqlite.SQLITE_BLOB:
		buf := make([]byte, stmt.ColumnLen(col))
		stmt.ColumnBytes(col, buf)
		return vector.DecodeEmbedding(buf)
	case sqlite.SQLITE_TEXT:
		return vector.DecodeEmbedding([]byte(stmt.ColumnText(col)))
	case sqlite.SQLITE_NULL:
		return nil, fmt.Errorf("%w: NULL embedding", vector.ErrMalformedEmbedding)
	default:
		return nil, fmt.Errorf("%w: numeric column where a blob was expected", vector.ErrMalformedEmbedding)
	}
}

func tableColumns(conn *sqlite.Conn) (map[string]bool, error) {
	stmt, err := conn.Prepare(`PRAGMA table_info(embeddings);`)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s table: %w", TableName, err)
	}
	defer stmt.Reset()

	columns := make(map[string]bool)
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s table: %w", TableName, err)
		}
		if !hasRow {
			break
		}
		columns[strings.ToLower(stmt.ColumnText(1))] = true
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no %s table found", TableName)
	}
	return columns, nil
}

func exec(conn *sqlite.Conn, query string) error {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Reset()

	_, err = stmt.Step()
	return err
}
