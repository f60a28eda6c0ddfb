package types

import (
	"errors"
	"fmt"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ERROR TAXONOMY
// ═══════════════════════════════════════════════════════════════════════════════

// ErrorKind classifies runtime failures so callers can decide between
// rejecting, retrying, failing over, or reporting inside a tool outcome.
type ErrorKind string

const (
	KindInvalidRequest      ErrorKind = "invalid_request"
	KindPermissionDenied    ErrorKind = "permission_denied"
	KindToolNotFound        ErrorKind = "tool_not_found"
	KindValidationError     ErrorKind = "validation_error"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindLLMError            ErrorKind = "llm_error"
	KindRepositoryError     ErrorKind = "repository_error"
	KindInternalError       ErrorKind = "internal_error"
)

// Error is the runtime's typed error. It carries a kind, a user-presentable
// message, and an optional wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns text safe to show to the end user.
func (e *Error) UserMessage() string { return e.Message }

// NewInvalidRequest reports a request that fails input bounds.
func NewInvalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

// NewPermissionDenied reports a tool call the caller's permissions don't cover.
func NewPermissionDenied(msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: msg}
}

// NewToolNotFound reports a dispatch to an unregistered tool.
func NewToolNotFound(name string) *Error {
	return &Error{Kind: KindToolNotFound, Message: fmt.Sprintf("tool %q is not registered", name)}
}

// NewValidationError reports arguments or model output that fail validation.
func NewValidationError(msg string, cause error) *Error {
	return &Error{Kind: KindValidationError, Message: msg, Err: cause}
}

// NewProviderUnavailable reports that no provider can serve the request.
func NewProviderUnavailable(msg string) *Error {
	return &Error{Kind: KindProviderUnavailable, Message: msg}
}

// NewLLMError wraps a failed provider call.
func NewLLMError(msg string, cause error) *Error {
	return &Error{Kind: KindLLMError, Message: msg, Err: cause}
}

// NewRepositoryError wraps a storage failure. Tool executors convert these
// into failed ToolOutcomes rather than aborting the reasoning loop.
func NewRepositoryError(msg string, cause error) *Error {
	return &Error{Kind: KindRepositoryError, Message: msg, Err: cause}
}

// NewInternalError wraps an unexpected runtime failure.
func NewInternalError(msg string, cause error) *Error {
	return &Error{Kind: KindInternalError, Message: msg, Err: cause}
}

// KindOf extracts the ErrorKind from err, or KindInternalError for untyped errors.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternalError
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
