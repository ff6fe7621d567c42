package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies provider failures.
type ErrorType int8

const (
	ErrorTypeRateLimit ErrorType = iota
	ErrorTypeTransient
	ErrorTypeEmptyResponse
	ErrorTypeAuth
	ErrorTypeBadPrompt
	ErrorTypeUnknown
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified provider error.
type Error struct {
	Cause      error
	Message    string
	StatusCode int
	Type       ErrorType
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Type, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithCause creates a classified error wrapping cause.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Cause: cause, Message: message}
}

// TypeOf returns the classification of err, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Classify maps an SDK error to an *Error using its status code or message text.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request canceled")
	}

	errStr := err.Error()
	switch code := extractStatusCode(errStr); code {
	case 401, 403:
		return &Error{Type: ErrorTypeAuth, StatusCode: code, Cause: err, Message: "authentication failed - check API key"}
	case 429:
		return &Error{Type: ErrorTypeRateLimit, StatusCode: code, Cause: err, Message: "rate limit exceeded"}
	case 400:
		return &Error{Type: ErrorTypeBadPrompt, StatusCode: code, Cause: err, Message: "bad request"}
	case 500, 502, 503, 504:
		return &Error{Type: ErrorTypeTransient, StatusCode: code, Cause: err, Message: "server error"}
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "timeout"),
		strings.Contains(lower, "eof"), strings.Contains(lower, "reset"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case strings.Contains(lower, "rate"), strings.Contains(lower, "quota"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "api key"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	}
	return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
}

// extractStatusCode finds an HTTP status code in SDK error text.
func extractStatusCode(errStr string) int {
	lower := strings.ToLower(errStr)
	for _, pattern := range []string{"status code: ", "status: ", "http ", "code "} {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start+3 > len(lower) {
			continue
		}
		var code int
		if _, err := fmt.Sscanf(lower[start:start+3], "%d", &code); err == nil && code >= 400 && code < 600 {
			return code
		}
	}
	return 0
}

// GenerationError reports a failed or malformed generation. Callers recover
// locally with a fallback verdict or templated text.
type GenerationError struct {
	Purpose Purpose
	Err     error
	Raw     string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Purpose, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
