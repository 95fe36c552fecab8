package services

import (
	"errors"
	"fmt"
)

// Kind classifies an error returned by InventoryService.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInsufficientStock
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the error type returned by InventoryService. Available and Requested
// are only set for KindInsufficientStock.
type Error struct {
	Kind      Kind
	Message   string
	Available int
	Requested int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindInternal {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err. Errors not produced by this package are internal.
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

func newValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func newNotFoundError(name, lot string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("product '%s' lot '%s' not found", name, lot)}
}

func newInsufficientStockError(name, lot string, available, requested int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for product '%s' lot '%s': available %d, requested %d", name, lot, available, requested),
		Available: available,
		Requested: requested,
	}
}

func newConflictError(name, lot string, attempts int, err error) *Error {
	return &Error{
		Kind:    KindConflict,
		Message: fmt.Sprintf("product '%s' lot '%s' was modified concurrently; gave up after %d attempts", name, lot, attempts),
		Err:     err,
	}
}

func newInternalError(action string, err error) *Error {
	return &Error{Kind: KindInternal, Message: "failed to " + action, Err: err}
}
