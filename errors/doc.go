// Package errors provides unified error handling for cryptokit.
// It implements structured error types with machine-readable error codes
// and retryable detection, so callers can distinguish recoverable failures
// (a module that was not found on the current search path) from hard ones.
package errors
