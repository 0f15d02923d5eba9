package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness constraint was hit.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation marks bad input; callers wrap it with detail.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a request that contradicts the current state.
	ErrConflict = errors.New("conflict")
	// ErrForbidden is returned when the actor lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated is returned when no usable identity was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrEmptyCart is returned by checkout on a cart without items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidTransition is matched by every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyMatched is returned when a matched bank transaction would be rematched.
	ErrAlreadyMatched = errors.New("transaction already matched")
)

// EmptyCartError is kept as an alias so callers can name the checkout failure directly.
var EmptyCartError = ErrEmptyCart

// InvalidTransitionError reports a rejected order status change.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// Is lets errors.Is(err, ErrInvalidTransition) and errors.Is(err, ErrConflict) match.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || target == ErrConflict
}

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
