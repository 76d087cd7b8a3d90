package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeVaultLocked        = "VAULT_LOCKED"
	ErrCodeAlreadyInitialized = "VAULT_ALREADY_INITIALIZED"
	ErrCodeNotInitialized     = "VAULT_NOT_INITIALIZED"
	ErrCodeAccessDenied       = "ACCESS_DENIED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInvalidRecovery    = "INVALID_RECOVERY_CODE"
	ErrCodeCrypto             = "CRYPTO_ERROR"
	ErrCodeStore              = "STORE_ERROR"
)

// VaultError is the structured error type for all vault operations.
type VaultError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *VaultError) Unwrap() error {
	return e.Cause
}

// NewError creates a new VaultError.
func NewError(code, message string) *VaultError {
	return &VaultError{Code: code, Message: message}
}

// NewErrorf creates a new VaultError with a formatted message.
func NewErrorf(code, format string, args ...any) *VaultError {
	return &VaultError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *VaultError) WithCause(err error) *VaultError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *VaultError) WithDetails(details map[string]any) *VaultError {
	e.Details = details
	return e
}

// IsCode reports whether err is, or wraps, a *VaultError carrying the
// given code.
func IsCode(err error, code string) bool {
	var ve *VaultError
	return errors.As(err, &ve) && ve.Code == code
}
