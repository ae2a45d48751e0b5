// Package server provides the MCP server implementation for the codematch service.
package server

import (
	"context"

	"github.com/localrivet/codematch/internal/ingest"
	"github.com/localrivet/codematch/internal/matcher"
	"github.com/localrivet/codematch/internal/pipeline"
)

// ToolServer defines the interface for the MCP server that handles
// matching tool calls from MCP clients.
type ToolServer interface {
	// Initialize registers the tools.
	Initialize() error

	// Start starts the MCP server on the stdio transport.
	Start() error

	// Stop gracefully shuts down the MCP server.
	Stop() error
}

// Pipeline is the set of operations the tools expose.
// *pipeline.Pipeline implements it.
type Pipeline interface {
	Match(ctx context.Context, source string) (*matcher.Result, error)
	Rank(ctx context.Context, source string, limit int) (*matcher.Ranking, error)
	Explain(ctx context.Context, source string) (*pipeline.Answer, error)
	Ask(ctx context.Context, source, question string) (*pipeline.Answer, error)
	MakeQuestionDB(ctx context.Context, question string) (*ingest.QuestionRecord, error)
	Sources() ([]ingest.SourceRecord, error)
}

var _ Pipeline = (*pipeline.Pipeline)(nil)
