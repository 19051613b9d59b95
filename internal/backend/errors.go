package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable covers transport failures and unexpected responses.
	ErrBackendUnavailable = errors.New("backend: unavailable")
	// ErrNotFound is returned when the requested product does not exist.
	ErrNotFound = errors.New("backend: not found")
)

// OrderRejectedError is returned when the backend refuses an order with a
// reason meant for the customer, e.g. insufficient stock or a duplicate VS.
type OrderRejectedError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *OrderRejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: order rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("backend: order rejected (status %d): %s", e.Status, e.Message)
}

func unavailable(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}
