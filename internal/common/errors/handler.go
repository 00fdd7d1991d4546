// internal/common/errors/handler.go
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MsgGenerationUnavailable is shown in place of a reply when no API key is configured.
	MsgGenerationUnavailable = "⚠️ Generation service not available. Check API key configuration."

	generationFailedHint = "\n\nPlease check:\n" +
		"1. Your OPENAI_API_KEY is set correctly\n" +
		"2. Your API key has available credits\n" +
		"3. You have access to the selected model"
)

// ErrorHandler turns stage errors into structured, logged results.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleTurnError logs err against the session and returns the API error body.
func (h *ErrorHandler) HandleTurnError(sessionID string, err error) *APIError {
	stdErr := Normalize(err)
	apiErr := ConvertToAPIError(stdErr)
	h.logError(sessionID, stdErr, apiErr)
	return apiErr
}

// UserMessage returns the literal text shown to the user in place of a reply.
func (h *ErrorHandler) UserMessage(err error) string {
	stdErr := Normalize(err)
	switch stdErr.Code {
	case ErrCodeGenerationUnavailable:
		return MsgGenerationUnavailable
	case ErrCodeGenerationTimeout:
		return "❌ Error calling the generation service: request timed out" + generationFailedHint
	default:
		detail := stdErr.Details
		if detail == "" {
			detail = stdErr.Message
		}
		return fmt.Sprintf("❌ Error calling the generation service: %s", detail) + generationFailedHint
	}
}

// Normalize ensures we always have a StandardError. Stage sentinels carry
// their error code as the message prefix, e.g. "GENERATION_TIMEOUT: ...".
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return NewTurnCancelledError()
	case stderrors.Is(err, context.DeadlineExceeded):
		return newError(ErrCodeGenerationTimeout, "Operation timed out", err.Error(), true)
	}

	msg := err.Error()
	code := msg
	if i := strings.Index(msg, ":"); i >= 0 {
		code = msg[:i]
	}
	if IsKnownCode(code) {
		details := strings.TrimSpace(strings.TrimPrefix(msg, code))
		details = strings.TrimSpace(strings.TrimPrefix(details, ":"))
		return &StandardError{
			Code:      ErrorCode(code),
			Message:   strings.ToLower(strings.ReplaceAll(code, "_", " ")),
			Details:   details,
			Retryable: IsRetryableErrorCode(ErrorCode(code)),
			Timestamp: time.Now().UTC(),
		}
	}

	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   msg,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *ErrorHandler) logError(sessionID string, stdErr *StandardError, apiErr *APIError) {
	h.logger.Error("Turn failed", map[string]interface{}{
		"sessionId":     sessionID,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       GetRetryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"status":        apiErr.Status,
	})
}
