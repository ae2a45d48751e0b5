package server

import (
	"errors"

	"github.com/localrivet/codematch/internal/embeddingstore"
	"github.com/localrivet/codematch/internal/errortypes"
	"github.com/localrivet/codematch/internal/explainer"
	"github.com/localrivet/codematch/internal/ingest"
	"github.com/localrivet/codematch/internal/matcher"
	"github.com/localrivet/codematch/internal/pipeline"
	"github.com/localrivet/codematch/internal/vector"
)

// Error codes reported in the Code field of failed tool responses.
const (
	CodeEmptyCorpus         = "EMPTY_CORPUS"
	CodeNoComparableEntries = "NO_COMPARABLE_ENTRIES"
	CodeMissingQuery        = "MISSING_QUERY"
	CodeMalformedEmbedding  = "MALFORMED_EMBEDDING"
	CodeContentNotFound     = "CONTENT_NOT_FOUND"
	CodeEmptyQuery          = "EMPTY_QUERY"
	CodeSourceNotFound      = "SOURCE_NOT_FOUND"
	CodeStoreNotFound       = "STORE_NOT_FOUND"
	CodeExplanationFailed   = "EXPLANATION_FAILED"
)

// Codes for errors that carry no domain sentinel, by AppError type.
const (
	StatusCodeValidationError = "VALIDATION_ERROR"
	StatusCodeNotFoundError   = "NOT_FOUND"
	StatusCodeDatabaseError   = "DATABASE_ERROR"
	StatusCodeNetworkError    = "NETWORK_ERROR"
	StatusCodeInternalError   = "INTERNAL_ERROR"
	StatusCodeConfigError     = "CONFIG_ERROR"
	StatusCodeExternalError   = "EXTERNAL_ERROR"
	StatusCodeUnknownError    = "UNKNOWN_ERROR"
)

var sentinelCodes = []struct {
	err  error
	code string
}{
	{matcher.ErrEmptyCorpus, CodeEmptyCorpus},
	{matcher.ErrNoComparableEntries, CodeNoComparableEntries},
	{embeddingstore.ErrMissingQuery, CodeMissingQuery},
	{vector.ErrMalformedEmbedding, CodeMalformedEmbedding},
	{embeddingstore.ErrContentNotFound, CodeContentNotFound},
	{matcher.ErrEmptyQuery, CodeEmptyQuery},
	{ingest.ErrSourceNotFound, CodeSourceNotFound},
	{pipeline.ErrStoreNotFound, CodeStoreNotFound},
	{explainer.ErrExplanationFailed, CodeExplanationFailed},
}

// ErrorCode classifies err for a tool response. Domain sentinels take
// precedence over the AppError type wrapping them.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}

	switch errortypes.TypeOf(err) {
	case errortypes.ErrorTypeValidation:
		return StatusCodeValidationError
	case errortypes.ErrorTypeNotFound:
		return StatusCodeNotFoundError
	case errortypes.ErrorTypeDatabase:
		return StatusCodeDatabaseError
	case errortypes.ErrorTypeNetwork:
		return StatusCodeNetworkError
	case errortypes.ErrorTypeAPI, errortypes.ErrorTypeExternal:
		return StatusCodeExternalError
	case errortypes.ErrorTypeConfig:
		return StatusCodeConfigError
	case errortypes.ErrorTypeInternal:
		return StatusCodeInternalError
	default:
		return StatusCodeUnknownError
	}
}
