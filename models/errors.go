package models

import (
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
)

// ValidationError carries a message per offending field.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// ValidationFailedError is returned when an order's line items can no longer
// be fulfilled.
type ValidationFailedError struct {
	Issues []string
}

func (e *ValidationFailedError) Error() string {
	return "order validation failed: " + strings.Join(e.Issues, "; ")
}

// InsufficientStockError is returned when a reservation loses a race for
// stock after validation passed.
type InsufficientStockError struct {
	Issues []string
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock: " + strings.Join(e.Issues, "; ")
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Issues extracts the human-readable issue list from validation or stock
// errors, or nil for any other error.
func Issues(err error) []string {
	var vf *ValidationFailedError
	if errors.As(err, &vf) {
		return vf.Issues
	}
	var is *InsufficientStockError
	if errors.As(err, &is) {
		return is.Issues
	}
	return nil
}
