package shared

import "errors"

// Sentinel errors shared across domain modules. Typed errors in the modules
// unwrap to one of these so HTTP mapping stays in one place.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates the operation is not legal for the current status.
	ErrInvalidState = errors.New("operation not allowed in current status")
	// ErrInvalidTransition indicates an illegal status transition was requested.
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrInsufficientInventory indicates a driver lacks stock to cover an order.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrInsufficientHolding indicates a remittance exceeds the driver's holding ceiling.
	ErrInsufficientHolding = errors.New("insufficient holding amount")
)
