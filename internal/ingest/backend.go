package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/localrivet/codematch/internal/embeddingstore"
	"github.com/localrivet/codematch/internal/vector"
)

// DefaultCommand is the external embedding tool.
const DefaultCommand = "gemini-cli"

// ErrPatternUnsupported is returned by backends that only embed explicit
// file lists when given a glob pattern.
var ErrPatternUnsupported = errors.New("backend does not expand file patterns")

// EmbedRequest describes one embedding run.
type EmbedRequest struct {
	// DBPath is the store to write.
	DBPath string
	// Dir is the base directory of Files or Pattern. It may be empty.
	Dir string
	// Files lists explicit files, relative to Dir unless absolute.
	Files []string
	// Pattern is a glob such as "*.py". It excludes Files.
	Pattern string
}

// FilesArg renders the request in the external tool's --files syntax:
// "<dir>,<pattern or comma list>", or just the list when Dir is empty.
func (r EmbedRequest) FilesArg() string {
	spec := r.Pattern
	if spec == "" {
		spec = strings.Join(r.Files, ",")
	}
	if r.Dir == "" {
		return spec
	}
	return r.Dir + "," + spec
}

// Backend produces an embedding store for a request.
type Backend interface {
	Embed(ctx context.Context, req EmbedRequest) error
	Name() string
}

// CommandBackend runs the external embedding tool:
//
//	<command> embed db <db> --files <files-arg>
type CommandBackend struct {
	Command string
	logger  *slog.Logger
}

// NewCommandBackend creates a CommandBackend. An empty command uses
// DefaultCommand.
func NewCommandBackend(command string, logger *slog.Logger) *CommandBackend {
	if command == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandBackend{Command: command, logger: logger}
}

// Name returns the backend name.
func (b *CommandBackend) Name() string {
	return "command"
}

// Args returns the argument list passed to the command for req.
func (b *CommandBackend) Args(req EmbedRequest) []string {
	return []string{"embed", "db", req.DBPath, "--files", req.FilesArg()}
}

// Embed runs the tool and waits for it to exit.
func (b *CommandBackend) Embed(ctx context.Context, req EmbedRequest) error {
	args := b.Args(req)
	b.logger.Debug("Running embedding command", "command", b.Command, "args", args)

	cmd := exec.CommandContext(ctx, b.Command, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w: %s", b.Command, err, strings.TrimSpace(output.String()))
	}

	if output.Len() > 0 {
		b.logger.Debug("Embedding command output", "output", strings.TrimSpace(output.String()))
	}
	return nil
}

// EmbedderBackend embeds explicit file lists in-process with a
// vector.Embedder and writes them through an embedding store.
type EmbedderBackend struct {
	embedder vector.Embedder
	logger   *slog.Logger
}

// NewEmbedderBackend creates an EmbedderBackend.
func NewEmbedderBackend(embedder vector.Embedder, logger *slog.Logger) *EmbedderBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbedderBackend{embedder: embedder, logger: logger}
}

// Name returns the backend name.
func (b *EmbedderBackend) Name() string {
	return "embedder"
}

// Embed reads every file in req.Files and appends its content and
// embedding to req.DBPath. Each file's identifier is the name as listed.
func (b *EmbedderBackend) Embed(ctx context.Context, req EmbedRequest) error {
	if req.Pattern != "" {
		return fmt.Errorf("%w: %s", ErrPatternUnsupported, req.Pattern)
	}
	if len(req.Files) == 0 {
		return errors.New("no files to embed")
	}
	if err := b.embedder.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	store := embeddingstore.NewSQLiteStore(b.logger)
	if err := store.InitializeWritable(req.DBPath); err != nil {
		return err
	}
	defer store.Close()

	for _, name := range req.Files {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := name
		if req.Dir != "" && !filepath.IsAbs(name) {
			path = filepath.Join(req.Dir, name)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		embedding, err := b.embedder.CreateEmbedding(string(data))
		if err != nil {
			return fmt.Errorf("failed to embed %s: %w", path, err)
		}
		if err := store.Append(ctx, name, string(data), embedding); err != nil {
			return err
		}
	}

	b.logger.Debug("Embedded files", "db", req.DBPath, "count", len(req.Files))
	return nil
}
