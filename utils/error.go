package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError rejects bad input before any transaction opens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError rejects unknown ids before any transaction opens.
type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func NewNotFoundError(resource string, id int) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func IsNotFoundError(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// InsufficientStockError is the expected, retryable case: the caller may
// re-issue the operation with negative stock explicitly allowed.
type InsufficientStockError struct {
	WarehouseId int
	ProductId   int
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d in warehouse %d: requested %s, available %s",
		e.ProductId, e.WarehouseId, e.Requested.String(), e.Available.String())
}

func IsInsufficientStockError(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

// InvalidStateError indicates a caller logic error (e.g. finishing a batch
// twice). Terminal for the request; nothing was written.
type InvalidStateError struct {
	Resource string
	ID       int
	State    string
	Action   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %d in state %q", e.Action, e.Resource, e.ID, e.State)
}

func IsInvalidStateError(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}
