package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeNotFound, "not found")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Message != "not found" {
		t.Errorf("expected message 'not found', got %q", err.Message)
	}
	if err.Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeModuleResolutionFailed, "no module")
	if !err.Retryable {
		t.Error("MODULE_RESOLUTION_FAILED should be retryable")
	}
}

func TestAppError_NotFound_Success(t *testing.T) {
	err := NotFound("legacy")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", err.Code)
	}
	if err.Details["provider"] != "legacy" {
		t.Errorf("expected provider=legacy, got %v", err.Details["provider"])
	}
	if err.Retryable {
		t.Error("NotFound should not be retryable")
	}
}

func TestAppError_ModuleResolutionFailed_Details(t *testing.T) {
	err := ModuleResolutionFailed("fips", []string{"/a", "/b"})
	if !err.Retryable {
		t.Error("resolution failure must be retryable")
	}
	searched, ok := err.Details["searched"].([]string)
	if !ok || len(searched) != 2 {
		t.Errorf("expected 2 searched locations, got %v", err.Details["searched"])
	}
}

func TestAppError_Error_WithCause(t *testing.T) {
	cause := fmt.Errorf("dlopen: no such file")
	err := ModuleLoadFailed("fips", "/lib/fips.so", cause)
	if !strings.Contains(err.Error(), "cause:") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to match the cause")
	}
}

func TestAppError_WithDetail(t *testing.T) {
	err := New(ErrCodeInitFailed, "boom").WithDetail("provider", "fips")
	if err.Details["provider"] != "fips" {
		t.Errorf("expected detail provider=fips, got %v", err.Details["provider"])
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Error("expected empty code for nil error")
	}
	if CodeOf(fmt.Errorf("plain")) != ErrCodeInternal {
		t.Error("expected INTERNAL_ERROR for non-AppError")
	}
	wrapped := fmt.Errorf("wrap: %w", SymbolNotFound("fips", "CryptokitInit"))
	if CodeOf(wrapped) != ErrCodeSymbolNotFound {
		t.Errorf("expected SYMBOL_NOT_FOUND through wrapping, got %s", CodeOf(wrapped))
	}
}

func TestIsCode(t *testing.T) {
	err := CapabilityAbsent("default", "query_operation")
	if !IsCode(err, ErrCodeCapabilityAbsent) {
		t.Error("expected IsCode to match CAPABILITY_ABSENT")
	}
	if IsCode(err, ErrCodeNotFound) {
		t.Error("IsCode must not match a different code")
	}
}
