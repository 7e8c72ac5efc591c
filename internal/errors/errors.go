package errors

import (
	"errors"
	"fmt"
)

// AppError is the structured error type for amanrag.
// It carries enough context for logging, CLI display and transport mapping.
type AppError struct {
	// Code is the unique error code (e.g., "ERR_404_QUERY_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError by code, so errors.Is(err, ErrQueryEmpty) works
// for any AppError carrying ERR_404_QUERY_EMPTY.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AppError with the given code and message.
func New(code string, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AppError from an existing error.
func Wrap(code string, err error) *AppError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrQueryEmpty         = &AppError{Code: ErrCodeQueryEmpty}
	ErrInvalidName        = &AppError{Code: ErrCodeInvalidName}
	ErrBackendUnavailable = &AppError{Code: ErrCodeBackendUnavailable}
	ErrEmbeddingTimeout   = &AppError{Code: ErrCodeEmbeddingTimeout}
	ErrStateCorrupt       = &AppError{Code: ErrCodeStateCorrupt}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AppError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AppError {
	return New(ErrCodeInvalidInput, message, cause)
}

// QueryEmptyError is returned when a search query is blank after trimming.
func QueryEmptyError() *AppError {
	return New(ErrCodeQueryEmpty, "Query is empty", nil).
		WithSuggestion("Provide a non-empty search query")
}

// BackendError marks a dependency (embedding service, ANN backend) as
// unavailable for the current request.
func BackendError(message string, cause error) *AppError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// CorruptStateError records a persisted file that could not be decoded.
func CorruptStateError(path string, cause error) *AppError {
	return New(ErrCodeStateCorrupt, "persisted state is unreadable", cause).
		WithDetail("path", path)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AppError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether any AppError in the chain is retryable.
func IsRetryable(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Category == CategoryValidation
	}
	return false
}

// GetCode extracts the error code from the first AppError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from the first AppError in the chain.
func GetCategory(err error) Category {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}
