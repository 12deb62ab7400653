// Package validation provides input validation helpers for cryptokit.
//
// Struct-tag validation (backed by go-playground/validator) is used by the
// config package; the fluent Validator collector is for hand-rolled checks.
package validation
