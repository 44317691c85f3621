package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Spellbook error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotAVault           ErrorCode = "NOT_A_VAULT"          // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrAliasConflict       ErrorCode = "ALIAS_CONFLICT"       // 409
	ErrNoFrontmatter       ErrorCode = "NO_FRONTMATTER"       // 422
	ErrInvalidFrontmatter  ErrorCode = "INVALID_FRONTMATTER"  // 422
	ErrNoTimestamp         ErrorCode = "NO_TIMESTAMP"         // 422
	ErrMalformedTranscript ErrorCode = "MALFORMED_TRANSCRIPT" // 422
	ErrCancelled           ErrorCode = "CANCELLED"            // 499
	ErrInternal            ErrorCode = "INTERNAL"             // 500
)

// SpellbookError represents a structured error with code, status, and details.
type SpellbookError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *SpellbookError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SpellbookError {
	return &SpellbookError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotAVault creates a 400 error for a path that has no .spellbook marker above it.
func NewNotAVault(path string) *SpellbookError {
	return &SpellbookError{
		Code:    ErrNotAVault,
		Status:  400,
		Message: fmt.Sprintf("not a spellbook vault: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNotFound creates a 404 error for a missing entity, session, document or file.
func NewNotFound(identifier string) *SpellbookError {
	return &SpellbookError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewAliasConflict creates a 409 error when an alias already maps to another entity.
func NewAliasConflict(alias, existing string) *SpellbookError {
	return &SpellbookError{
		Code:    ErrAliasConflict,
		Status:  409,
		Message: fmt.Sprintf("alias %q already maps to %q", alias, existing),
		Details: map[string]any{"alias": alias, "canonical": existing},
	}
}

// NewNoFrontmatter creates a 422 error for a document without a metadata block.
func NewNoFrontmatter(docID string) *SpellbookError {
	return &SpellbookError{
		Code:    ErrNoFrontmatter,
		Status:  422,
		Message: "no frontmatter",
		Details: map[string]any{"doc_id": docID},
	}
}

// NewInvalidFrontmatter creates a 422 error for a metadata block that does not parse.
func NewInvalidFrontmatter(docID string, cause error) *SpellbookError {
	msg := "invalid frontmatter"
	if cause != nil {
		msg = fmt.Sprintf("invalid frontmatter: %v", cause)
	}
	return &SpellbookError{
		Code:    ErrInvalidFrontmatter,
		Status:  422,
		Message: msg,
		Details: map[string]any{"doc_id": docID},
	}
}

// NewNoTimestamp creates a 422 error for a document without ts or date.
func NewNoTimestamp(docID string) *SpellbookError {
	return &SpellbookError{
		Code:    ErrNoTimestamp,
		Status:  422,
		Message: "no timestamp",
		Details: map[string]any{"doc_id": docID},
	}
}

// NewMalformedTranscript creates a 422 error for a transcript line that is not a JSON object.
func NewMalformedTranscript(line int, cause error) *SpellbookError {
	return &SpellbookError{
		Code:    ErrMalformedTranscript,
		Status:  422,
		Message: fmt.Sprintf("line %d: %v", line, cause),
		Details: map[string]any{"line": line},
	}
}

// NewCancelled creates a 499 error when an operation stops on context cancellation.
func NewCancelled(operation string) *SpellbookError {
	return &SpellbookError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SpellbookError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &SpellbookError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is, or wraps, a SpellbookError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := As(err); ok {
		return sErr.Code == code
	}
	return false
}

// As returns the first SpellbookError in err's chain.
func As(err error) (*SpellbookError, bool) {
	var sErr *SpellbookError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}
