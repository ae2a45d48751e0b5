package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/localrivet/gomcp/server"

	"github.com/localrivet/codematch/internal/errortypes"
	"github.com/localrivet/codematch/internal/pipeline"
	"github.com/localrivet/codematch/internal/tools"
)

// Common server error types
var (
	ErrServerNotInitialized = errors.New("server not initialized")
	ErrMissingDependencies  = errors.New("one or more required dependencies are nil")
)

// ServerName is the name announced to MCP clients.
const ServerName = "codematch"

// MCPToolServer implements ToolServer on top of a Pipeline.
type MCPToolServer struct {
	pipeline  Pipeline
	logger    *slog.Logger
	mcpServer server.Server

	// ctx bounds every tool call; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewToolServer creates a new MCPToolServer instance.
func NewToolServer(p Pipeline, logger *slog.Logger) *MCPToolServer {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MCPToolServer{
		pipeline: p,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Initialize registers the tools with a new MCP server.
func (s *MCPToolServer) Initialize() error {
	s.logger.Info("Initializing MCP tool server")

	if s.pipeline == nil {
		return errortypes.ConfigError(ErrMissingDependencies, "server initialization failed")
	}

	srv := server.NewServer(ServerName)

	srv = srv.Tool(tools.ToolFindBestMatch,
		"Find the stored source entry most similar to the current question",
		s.handleFindBestMatch)

	srv = srv.Tool(tools.ToolRankMatches,
		"List the source entries most similar to the current question, best first",
		s.handleRankMatches)

	srv = srv.Tool(tools.ToolExplainMatch,
		"Find the best match for a question and explain its content",
		s.handleExplainMatch)

	srv = srv.Tool(tools.ToolMakeQuestionDB,
		"Embed a question and make it the current query",
		s.handleMakeQuestionDB)

	srv = srv.Tool(tools.ToolListSources,
		"List the recorded source stores",
		s.handleListSources)

	s.mu.Lock()
	s.mcpServer = srv
	s.mu.Unlock()

	s.logger.Info("MCP tool server initialized successfully", "tool_count", 5)
	return nil
}

// Start runs the MCP server on the stdio transport until stdin closes.
func (s *MCPToolServer) Start() error {
	s.mu.Lock()
	srv := s.mcpServer
	s.mu.Unlock()
	if srv == nil {
		return errortypes.ConfigError(ErrServerNotInitialized, "cannot start server")
	}

	s.logger.Info("Starting MCP tool server")
	return srv.AsStdio().Run()
}

// Stop cancels in-flight tool calls. The transport exits when stdin is
// closed.
func (s *MCPToolServer) Stop() error {
	s.logger.Info("Stopping MCP tool server")
	s.cancel()
	return nil
}

// fail logs err and returns its code and message for a tool response.
func (s *MCPToolServer) fail(tool string, err error) (code, message string) {
	errortypes.LogError(s.logger.With("tool", tool), err)
	return ErrorCode(err), err.Error()
}

// handleFindBestMatch handles the find_best_match MCP tool call.
func (s *MCPToolServer) handleFindBestMatch(_ *server.Context, req tools.FindBestMatchRequest) (tools.FindBestMatchResponse, error) {
	s.logger.Info("Processing find_best_match request", "source", req.Source)

	response := tools.FindBestMatchResponse{Status: tools.StatusSuccess}

	result, err := s.pipeline.Match(s.ctx, req.Source)
	if err != nil {
		response.Status = tools.StatusError
		response.Code, response.Error = s.fail(tools.ToolFindBestMatch, err)
		return response, nil
	}

	response.ID = result.ID
	response.Index = result.Index
	response.Score = result.Score
	response.Diagnostics = result.Diagnostics
	s.logger.Info("Found best match", "id", result.ID, "score", result.Score)
	return response, nil
}

// handleRankMatches handles the rank_matches MCP tool call.
func (s *MCPToolServer) handleRankMatches(_ *server.Context, req tools.RankMatchesRequest) (tools.RankMatchesResponse, error) {
	s.logger.Info("Processing rank_matches request", "source", req.Source, "limit", req.Limit)

	response := tools.RankMatchesResponse{Status: tools.StatusSuccess}

	limit := req.Limit
	if limit <= 0 {
		limit = tools.DefaultRankLimit
		s.logger.Debug("Using default limit for rank_matches", "limit", limit)
	}

	ranking, err := s.pipeline.Rank(s.ctx, req.Source, limit)
	if err != nil {
		response.Status = tools.StatusError
		response.Code, response.Error = s.fail(tools.ToolRankMatches, err)
		return response, nil
	}

	response.Matches = ranking.Matches
	response.Diagnostics = ranking.Diagnostics
	s.logger.Info("Ranked matches", "count", len(ranking.Matches))
	return response, nil
}

// handleExplainMatch handles the explain_match MCP tool call. A question in
// the request replaces the stored question first.
func (s *MCPToolServer) handleExplainMatch(_ *server.Context, req tools.ExplainMatchRequest) (tools.ExplainMatchResponse, error) {
	s.logger.Info("Processing explain_match request", "source", req.Source, "has_question", req.Question != "")

	response := tools.ExplainMatchResponse{Status: tools.StatusSuccess}

	answer, err := s.explain(req)
	if err != nil {
		response.Status = tools.StatusError
		response.Code, response.Error = s.fail(tools.ToolExplainMatch, err)
		return response, nil
	}

	response.ID = answer.Result.ID
	response.Score = answer.Result.Score
	response.ContentType = answer.Content.Type
	if answer.Explanation != nil {
		response.Explanation = answer.Explanation.Text
		response.Provider = answer.Explanation.Provider
		response.Offline = answer.Explanation.Offline
	}
	s.logger.Info("Explained match", "id", response.ID, "provider", response.Provider, "offline", response.Offline)
	return response, nil
}

func (s *MCPToolServer) explain(req tools.ExplainMatchRequest) (*pipeline.Answer, error) {
	if req.Question != "" {
		return s.pipeline.Ask(s.ctx, req.Source, req.Question)
	}
	return s.pipeline.Explain(s.ctx, req.Source)
}

// handleMakeQuestionDB handles the make_question_db MCP tool call.
func (s *MCPToolServer) handleMakeQuestionDB(_ *server.Context, req tools.MakeQuestionDBRequest) (tools.MakeQuestionDBResponse, error) {
	s.logger.Info("Processing make_question_db request", "question_length", len(req.Question))

	response := tools.MakeQuestionDBResponse{Status: tools.StatusSuccess}

	record, err := s.pipeline.MakeQuestionDB(s.ctx, req.Question)
	if err != nil {
		response.Status = tools.StatusError
		response.Code, response.Error = s.fail(tools.ToolMakeQuestionDB, err)
		return response, nil
	}

	response.UUID = record.UUID
	s.logger.Info("Saved question", "uuid", record.UUID)
	return response, nil
}

// handleListSources handles the list_sources MCP tool call.
func (s *MCPToolServer) handleListSources(_ *server.Context, _ tools.ListSourcesRequest) (tools.ListSourcesResponse, error) {
	s.logger.Info("Processing list_sources request")

	response := tools.ListSourcesResponse{Status: tools.StatusSuccess, Sources: []tools.SourceInfo{}}

	sources, err := s.pipeline.Sources()
	if err != nil {
		response.Status = tools.StatusError
		response.Code, response.Error = s.fail(tools.ToolListSources, err)
		return response, nil
	}

	for _, src := range sources {
		response.Sources = append(response.Sources, tools.SourceInfo{
			UUID: src.UUID,
			Path: src.Path,
			Type: src.Type,
			Time: src.Time,
		})
	}
	return response, nil
}
