package order

import "errors"

var (
	// ErrNotFound is returned when no order exists for the given id.
	ErrNotFound = errors.New("order not found")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidParameters is returned for bad creation input before any
	// store write is attempted.
	ErrInvalidParameters = errors.New("invalid order parameters")

	// ErrStatusConflict is returned by a conditional status update whose
	// expected prior status no longer matches the stored row. Exactly one
	// of two racing transitions observes the match; the other gets this.
	ErrStatusConflict = errors.New("order status conflict")
)
