package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// CodeOf extracts the ErrorCode from an error, unwrapping as needed.
// Returns ErrCodeInternal for non-AppError errors and "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// --- Common Error Constructors ---

// NotFound creates a new AppError for a provider that was not found.
func NotFound(name string) *AppError {
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("Provider %q is not registered.", name),
		Retryable: false,
		Details:   map[string]any{"provider": name},
	}
}

// AlreadyExists creates a new AppError for a provider name that is already taken.
func AlreadyExists(name string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("Provider %q is already registered.", name),
		Retryable: false,
		Details:   map[string]any{"provider": name},
	}
}

// StoreClosed creates a new AppError for operations on a closed store.
func StoreClosed() *AppError {
	return &AppError{
		Code: ErrCodeStoreClosed, Message: "The provider store has been shut down.",
		Retryable: false,
	}
}

// InvalidState creates a new AppError for an operation not valid in the
// provider's current lifecycle state.
func InvalidState(name, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidState, Message: reason,
		Retryable: false,
		Details:   map[string]any{"provider": name},
	}
}

// ModuleResolutionFailed creates a new AppError when no search location
// yielded a loadable module for the provider.
func ModuleResolutionFailed(name string, searched []string) *AppError {
	return &AppError{
		Code: ErrCodeModuleResolutionFailed, Message: fmt.Sprintf("No module for provider %q found on the search path.", name),
		Retryable: true,
		Details:   map[string]any{"provider": name, "searched": searched},
	}
}

// ModuleLoadFailed creates a new AppError for a module that was found but
// could not be loaded.
func ModuleLoadFailed(name, path string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeModuleLoadFailed, Message: fmt.Sprintf("Module for provider %q failed to load.", name),
		Retryable: true, Cause: cause,
		Details: map[string]any{"provider": name, "path": path},
	}
}

// SymbolNotFound creates a new AppError for a loaded module missing its
// init entry point.
func SymbolNotFound(name, symbol string) *AppError {
	return &AppError{
		Code: ErrCodeSymbolNotFound, Message: fmt.Sprintf("Module for provider %q does not export %s.", name, symbol),
		Retryable: true,
		Details:   map[string]any{"provider": name, "symbol": symbol},
	}
}

// InitFailed creates a new AppError when the provider's init routine failed.
func InitFailed(name string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeInitFailed, Message: fmt.Sprintf("Provider %q init routine failed.", name),
		Retryable: true, Cause: cause,
		Details: map[string]any{"provider": name},
	}
}

// CapabilityAbsent creates a new AppError for a capability the provider does
// not offer. Callers must treat this as "nothing to return", not a failure.
func CapabilityAbsent(name, capability string) *AppError {
	return &AppError{
		Code: ErrCodeCapabilityAbsent, Message: fmt.Sprintf("Provider %q does not offer %s.", name, capability),
		Retryable: false,
		Details:   map[string]any{"provider": name, "capability": capability},
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		Retryable: false,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		Retryable: false,
		Details:   map[string]any{"field": field},
	}
}

// Internal creates a new AppError for an unexpected internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		Retryable: false, Cause: cause,
	}
}
