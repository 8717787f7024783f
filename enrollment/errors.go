/*
errors.go - Error taxonomy of the booking engine

ERROR CATEGORIES:
  1. Domain errors - terminal, reported verbatim, never retried
     (ErrClassNotFound, ErrAlreadyBooked, ErrUserNotFound, ErrNoBooking,
     ErrInsufficientCredit)
  2. Contention errors - optimistic commit conflicts, retried internally
     (ErrConcurrentModification); exhaustion surfaces as ErrBusy, which is
     safe for the caller to retry
  3. Store errors - ErrNotFound for point reads, anything else is an
     infrastructure failure

SEE ALSO:
  - retry.go: converts contention into ErrBusy
  - api/handlers.go: maps these errors to HTTP status codes
*/
package enrollment

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrClassNotFound is returned when the class does not exist or is cancelled.
	ErrClassNotFound = errors.New("class not found")

	// ErrAlreadyBooked is returned when the member already holds an active
	// or waitlisted booking for the class.
	ErrAlreadyBooked = errors.New("already booked")

	// ErrUserNotFound is returned when the member has no credit account.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoBooking is returned when cancelling without a live booking.
	ErrNoBooking = errors.New("no booking")

	// ErrInsufficientCredit is returned when a seat is free but the member
	// cannot pay for it.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrBusy is returned when the retry budget is exhausted by concurrent writers.
	ErrBusy = errors.New("busy: too many concurrent updates, retry later")

	// ErrConcurrentModification is returned by Store.Commit when a record's
	// revision changed since it was read. Nothing was written.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNotFound is returned by point reads for missing records.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidClass is returned when a class definition is malformed.
	ErrInvalidClass = errors.New("invalid class")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// BusyError reports how many attempts were made before giving up.
type BusyError struct {
	Attempts int
	Last     error
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%v (after %d attempts: %v)", ErrBusy, e.Attempts, e.Last)
}

func (e *BusyError) Unwrap() error { return ErrBusy }

// InsufficientCreditError carries the balance that was too low.
type InsufficientCreditError struct {
	UserID   UserID
	Balance  int
	Required int
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit for %s: balance %d, required %d",
		e.UserID, e.Balance, e.Required)
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error is worth retrying by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrConcurrentModification)
}

// IsDomainError returns true for terminal business-rule failures.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrAlreadyBooked) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrNoBooking) ||
		errors.Is(err, ErrInsufficientCredit) ||
		errors.Is(err, ErrInvalidClass)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrNoBooking)
}
