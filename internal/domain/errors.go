package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrPackageNotFound      = fmt.Errorf("package %w", ErrNotFound)
	ErrBookingNotFound      = fmt.Errorf("booking %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)

	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrConflict             = errors.New("concurrent transition conflict")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrStorageFailure       = errors.New("storage failure")

	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidMaxSlots  = errors.New("max slots below confirmed slots")
	ErrPackageInactive  = errors.New("package is not accepting bookings")
	ErrPackageInUse     = errors.New("package has confirmed bookings")
	ErrCapacityOverflow = errors.New("release exceeds max slots")
)

// StorageError marks err as a backing store failure for op. The result
// matches both ErrStorageFailure and err.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
