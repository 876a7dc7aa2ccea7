package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("payment order not found")
	ErrConflict              = errors.New("payment order already exists")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrUnauthorized          = errors.New("invalid webhook credentials")
	ErrProviderNotConfigured = errors.New("payment provider not configured")
	ErrCaptureNotSupported   = errors.New("payment provider does not support capture")
	ErrLookupNotSupported    = errors.New("payment provider does not support status lookup")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type InsufficientStockError struct {
	ProductID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ProviderError carries the upstream message. StatusCode is zero for
// transport failures and timeouts.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the provider refused the request itself, as
// opposed to being unreachable or failing internally.
func (e *ProviderError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
