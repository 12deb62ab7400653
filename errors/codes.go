package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Registry errors
const (
	// ErrCodeNotFound indicates no provider with the requested name is registered.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates a provider with the requested name is already registered.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeStoreClosed indicates the provider store has been shut down.
	ErrCodeStoreClosed ErrorCode = "STORE_CLOSED"
	// ErrCodeInvalidState indicates an operation was attempted in a lifecycle
	// state that does not permit it.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Activation errors (retryable: the caller may fix the search path and retry)
const (
	// ErrCodeModuleResolutionFailed indicates no search location yielded a module file.
	ErrCodeModuleResolutionFailed ErrorCode = "MODULE_RESOLUTION_FAILED"
	// ErrCodeModuleLoadFailed indicates a module file was found but could not be loaded.
	ErrCodeModuleLoadFailed ErrorCode = "MODULE_LOAD_FAILED"
	// ErrCodeSymbolNotFound indicates the module lacks the well-known init symbol.
	ErrCodeSymbolNotFound ErrorCode = "SYMBOL_NOT_FOUND"
	// ErrCodeInitFailed indicates the provider's own init routine reported failure.
	ErrCodeInitFailed ErrorCode = "INIT_FAILED"
)

// Dispatch errors
const (
	// ErrCodeCapabilityAbsent indicates the provider does not offer the requested
	// capability. This is informational, not a hard failure.
	ErrCodeCapabilityAbsent ErrorCode = "CAPABILITY_ABSENT"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeModuleResolutionFailed: true,
	ErrCodeModuleLoadFailed:       true,
	ErrCodeSymbolNotFound:         true,
	ErrCodeInitFailed:             true,
	ErrCodeInternal:               false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
// Activation failures are retryable: the provider stays inactive and a later
// activation attempt (e.g. after adding a module location) is legitimate.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
