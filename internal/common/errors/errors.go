// Package errors provides standardized error handling for the chat pipeline.
package errors

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionBusy     ErrorCode = "SESSION_BUSY"
	ErrCodeBudgetExceeded  ErrorCode = "BUDGET_EXCEEDED"
	ErrCodeTurnCancelled   ErrorCode = "TURN_CANCELLED"

	ErrCodeIndexUnavailable   ErrorCode = "INDEX_UNAVAILABLE"
	ErrCodeBundleInvalid      ErrorCode = "BUNDLE_INVALID"
	ErrCodeEmbeddingFailed    ErrorCode = "EMBEDDING_FAILED"
	ErrCodeRetrievalFailed    ErrorCode = "RETRIEVAL_FAILED"
	ErrCodeSearchQueryFailed  ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeWebSearchTimeout   ErrorCode = "WEB_SEARCH_TIMEOUT"
	ErrCodeWebSearchFailed    ErrorCode = "WEB_SEARCH_FAILED"
	ErrCodeElasticsearchError ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"

	ErrCodeGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"
	ErrCodeGenerationTimeout     ErrorCode = "GENERATION_TIMEOUT"
	ErrCodeGenerationFailed      ErrorCode = "GENERATION_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeTurnLogWriteFailed       ErrorCode = "TURN_LOG_WRITE_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. API Error Integration
// ==========================

// APIError is the error body returned by the HTTP surface.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
	Status    int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("APIError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidInputError creates a non-retryable validation error.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid request", details, false)
}

// NewSessionNotFoundError creates a non-retryable lookup error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return newError(ErrCodeSessionNotFound, "Session not found", fmt.Sprintf("sessionId: %s", sessionID), false)
}

// NewSessionBusyError is returned when a turn is already in flight.
func NewSessionBusyError(sessionID string) *StandardError {
	return newError(ErrCodeSessionBusy, "A turn is already in progress for this session", fmt.Sprintf("sessionId: %s", sessionID), true)
}

func NewBudgetExceededError(total, ceiling int) *StandardError {
	return newError(ErrCodeBudgetExceeded, "Session token limit reached", fmt.Sprintf("total: %d, ceiling: %d", total, ceiling), false)
}

func NewTurnCancelledError() *StandardError {
	return newError(ErrCodeTurnCancelled, "Turn cancelled", "", false)
}

// NewGenerationUnavailableError is used when no API key is configured.
func NewGenerationUnavailableError() *StandardError {
	return newError(ErrCodeGenerationUnavailable, "Generation service not configured", "", false)
}

func NewGenerationTimeoutError() *StandardError {
	return newError(ErrCodeGenerationTimeout, "Generation service timed out", "", true)
}

func NewGenerationFailedError(err error) *StandardError {
	return newError(ErrCodeGenerationFailed, "Generation service error", err.Error(), true)
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// ==========================
// 4. Error Conversion
// ==========================

// HTTPStatusMapping maps internal error codes to response status codes.
var HTTPStatusMapping = map[ErrorCode]int{
	ErrCodeInvalidInput:          http.StatusBadRequest,
	ErrCodeSessionNotFound:       http.StatusNotFound,
	ErrCodeSessionBusy:           http.StatusConflict,
	ErrCodeBudgetExceeded:        http.StatusTooManyRequests,
	ErrCodeTurnCancelled:         499,
	ErrCodeGenerationUnavailable: http.StatusServiceUnavailable,
	ErrCodeGenerationTimeout:     http.StatusGatewayTimeout,
	ErrCodeGenerationFailed:      http.StatusBadGateway,
	ErrCodeWebSearchTimeout:      http.StatusGatewayTimeout,
	ErrCodeIndexUnavailable:      http.StatusServiceUnavailable,
}

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeGenerationFailed,
		ErrCodeEmbeddingFailed,
		ErrCodeElasticsearchError,
		ErrCodeSearchQueryFailed,
		ErrCodeDatabaseConnectionFailed:
		return 3

	case ErrCodeWebSearchTimeout,
		ErrCodeWebSearchFailed,
		ErrCodeRetrievalFailed:
		return 1

	case ErrCodeGenerationTimeout,
		ErrCodeSessionBusy:
		return 1

	default:
		return 0
	}
}

// ConvertToAPIError converts a StandardError to the HTTP error body.
func ConvertToAPIError(stdErr *StandardError) *APIError {
	status, exists := HTTPStatusMapping[stdErr.Code]
	if !exists {
		status = http.StatusInternalServerError
	}

	return &APIError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Status:    status,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsKnownCode reports whether s is one of the declared error codes.
func IsKnownCode(s string) bool {
	switch ErrorCode(s) {
	case ErrCodeInvalidInput, ErrCodeSessionNotFound, ErrCodeSessionBusy, ErrCodeBudgetExceeded,
		ErrCodeTurnCancelled, ErrCodeIndexUnavailable, ErrCodeBundleInvalid, ErrCodeEmbeddingFailed,
		ErrCodeRetrievalFailed, ErrCodeSearchQueryFailed, ErrCodeWebSearchTimeout, ErrCodeWebSearchFailed,
		ErrCodeElasticsearchError, ErrCodeGenerationUnavailable, ErrCodeGenerationTimeout,
		ErrCodeGenerationFailed, ErrCodeDatabaseConnectionFailed, ErrCodeTurnLogWriteFailed, ErrCodeInternal:
		return true
	}
	return false
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "BUDGET") || strings.Contains(codeStr, "TURN_CANCELLED"):
		return "SESSION"
	case strings.Contains(codeStr, "INDEX") || strings.Contains(codeStr, "BUNDLE") || strings.Contains(codeStr, "EMBEDDING") || strings.Contains(codeStr, "RETRIEVAL"):
		return "RETRIEVAL"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "GENERATION"):
		return "AI"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "TURN_LOG"):
		return "STORAGE"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
