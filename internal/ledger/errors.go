package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced customer, supplier, product or document does not exist.
	ErrNotFound = errors.New("ledger: not found")
	// ErrStockInsufficient indicates a sale or reversal would take stock below zero.
	ErrStockInsufficient = errors.New("ledger: stock insufficient")
	// ErrReturnExceedsInvoiced indicates a return larger than the remaining returnable quantity.
	ErrReturnExceedsInvoiced = errors.New("ledger: return exceeds invoiced quantity")
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrConcurrencyConflict indicates the store aborted the transaction because of a concurrent update.
	ErrConcurrencyConflict = errors.New("ledger: concurrency conflict")
	// ErrStorageUnavailable indicates the store could not be reached.
	ErrStorageUnavailable = errors.New("ledger: storage unavailable")
	// ErrDuplicateRequest indicates the request key was already used for a committed posting.
	ErrDuplicateRequest = errors.New("ledger: duplicate request")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a NotFoundError.
func NotFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// StockInsufficientError carries the quantity that was available when the
// operation was rejected.
type StockInsufficientError struct {
	ProductCode string
	Requested   int64
	Available   int64
}

func (e *StockInsufficientError) Error() string {
	return fmt.Sprintf("stock insufficient for %s: requested %d, available %d", e.ProductCode, e.Requested, e.Available)
}

// Is matches ErrStockInsufficient.
func (e *StockInsufficientError) Is(target error) bool {
	return target == ErrStockInsufficient
}

// ReturnExceedsInvoicedError reports the returnable quantity left on an invoice line.
type ReturnExceedsInvoicedError struct {
	ProductCode     string
	Invoiced        int64
	AlreadyReturned int64
	Requested       int64
}

func (e *ReturnExceedsInvoicedError) Error() string {
	return fmt.Sprintf("return of %d %s exceeds remaining %d (invoiced %d, returned %d)",
		e.Requested, e.ProductCode, e.Remaining(), e.Invoiced, e.AlreadyReturned)
}

// Remaining is the quantity that can still be returned.
func (e *ReturnExceedsInvoicedError) Remaining() int64 {
	return e.Invoiced - e.AlreadyReturned
}

// Is matches ErrReturnExceedsInvoiced.
func (e *ReturnExceedsInvoicedError) Is(target error) bool {
	return target == ErrReturnExceedsInvoiced
}

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
