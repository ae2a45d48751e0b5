// Package tools defines the request and response schemas of the codematch
// MCP tools.
package tools

import "github.com/localrivet/codematch/internal/matcher"

const (
	// ToolFindBestMatch is the name of the find_best_match MCP tool
	ToolFindBestMatch = "find_best_match"

	// ToolRankMatches is the name of the rank_matches MCP tool
	ToolRankMatches = "rank_matches"

	// ToolExplainMatch is the name of the explain_match MCP tool
	ToolExplainMatch = "explain_match"

	// ToolMakeQuestionDB is the name of the make_question_db MCP tool
	ToolMakeQuestionDB = "make_question_db"

	// ToolListSources is the name of the list_sources MCP tool
	ToolListSources = "list_sources"

	// DefaultRankLimit is the number of matches rank_matches returns when
	// no limit is given
	DefaultRankLimit = 5

	// StatusSuccess and StatusError are the values of every response's Status
	StatusSuccess = "success"
	StatusError   = "error"
)

// FindBestMatchRequest defines the input schema for find_best_match tool
type FindBestMatchRequest struct {
	// Source selects a source store by UUID, UUID prefix or path. Empty
	// uses the configured corpus.
	Source string `json:"source,omitempty"`
}

// FindBestMatchResponse defines the output schema for find_best_match tool
type FindBestMatchResponse struct {
	// Status indicates the result of the operation ("success" or "error")
	Status string `json:"status"`

	// ID is the identifier of the best-matching corpus entry
	ID string `json:"id,omitempty"`

	// Index is the entry's position in the corpus
	Index int `json:"index"`

	// Score is the cosine similarity of the entry and the query
	Score float64 `json:"score"`

	// Diagnostics counts compared and skipped entries
	Diagnostics matcher.Diagnostics `json:"diagnostics"`

	// Code classifies the error if Status is "error"
	Code string `json:"code,omitempty"`

	// Error contains an error message if Status is "error"
	Error string `json:"error,omitempty"`
}

// RankMatchesRequest defines the input schema for rank_matches tool
type RankMatchesRequest struct {
	Source string `json:"source,omitempty"`

	// Limit is the maximum number of matches to return
	// If not specified, DefaultRankLimit will be used
	Limit int `json:"limit,omitempty"`
}

// RankMatchesResponse defines the output schema for rank_matches tool
type RankMatchesResponse struct {
	Status      string              `json:"status"`
	Matches     []matcher.Scored    `json:"matches"`
	Diagnostics matcher.Diagnostics `json:"diagnostics"`
	Code        string              `json:"code,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// ExplainMatchRequest defines the input schema for explain_match tool
type ExplainMatchRequest struct {
	Source string `json:"source,omitempty"`

	// Question, when set, replaces the stored question before matching
	Question string `json:"question,omitempty"`
}

// ExplainMatchResponse defines the output schema for explain_match tool
type ExplainMatchResponse struct {
	Status      string  `json:"status"`
	ID          string  `json:"id,omitempty"`
	Score       float64 `json:"score"`
	ContentType string  `json:"content_type,omitempty"`

	// Explanation is the model's answer, or a local excerpt when Offline
	Explanation string `json:"explanation,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Offline     bool   `json:"offline"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// MakeQuestionDBRequest defines the input schema for make_question_db tool
type MakeQuestionDBRequest struct {
	// Question is the text to embed as the new query
	Question string `json:"question"`
}

// MakeQuestionDBResponse defines the output schema for make_question_db tool
type MakeQuestionDBResponse struct {
	Status string `json:"status"`

	// UUID identifies the saved question in the question manifest
	UUID  string `json:"uuid,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// ListSourcesRequest defines the input schema for list_sources tool
type ListSourcesRequest struct{}

// SourceInfo describes one recorded source store
type SourceInfo struct {
	UUID string `json:"uuid"`
	Path string `json:"path"`
	Type string `json:"type"`
	Time string `json:"time"`
}

// ListSourcesResponse defines the output schema for list_sources tool
type ListSourcesResponse struct {
	Status  string       `json:"status"`
	Sources []SourceInfo `json:"sources"`
	Code    string       `json:"code,omitempty"`
	Error   string       `json:"error,omitempty"`
}
