// Package apperr holds the error taxonomy shared by the catalog, the order
// workflow and the HTTP layer.
package apperr

import "errors"

var (
	// ErrNotFound is returned when a product, category, order or line item
	// reference does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned when a requested quantity exceeds the
	// units available for reservation.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict is returned when a concurrent mutation won the race for the
	// same rows. Retrying usually surfaces ErrInsufficientStock.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrOrderClosed is returned when items of a confirmed order are changed.
	ErrOrderClosed = errors.New("order already confirmed")
	// ErrDuplicate is returned when a unique name is taken.
	ErrDuplicate = errors.New("already exists")
)

// ValidationError communicates rule violations in caller input.
type ValidationError struct {
	message string
}

func (e ValidationError) Error() string { return e.message }

// Validation builds a ValidationError.
func Validation(msg string) error {
	return ValidationError{message: msg}
}

// IsValidation helps callers distinguish between input and infrastructure failures.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
