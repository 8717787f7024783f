/*
catalog.go - Class session administration

PURPOSE:
  Creates and retires class sessions and exposes read-only views of who is
  in a class. Enrollment counts are never written here: a new class starts
  at zero and only the enrollment.Coordinator moves it afterwards.

OPERATIONS:
  CreateClass:    insert a session (capacity > 0, start time required)
  GetClass:       point read
  CancelClass:    mark a session cancelled; new enrollments are rejected,
                  existing members can still cancel, nobody is promoted
  Roster:         active members + ordered waitlist
  CheckInvariant: Enrolled must equal the number of active bookings

SEE ALSO:
  - enrollment/coordinator.go: the only writer of Enrolled
*/
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/class-booking/enrollment"
)

var (
	// ErrClassExists is returned when creating a class whose ID is taken.
	ErrClassExists = errors.New("class already exists")
)

// ClassSpec describes a class to create.
type ClassSpec struct {
	ID        enrollment.ClassID // Generated when empty
	Capacity  int
	StartTime time.Time
}

// Roster is a snapshot of a class's members.
type Roster struct {
	Class    enrollment.ClassSession
	Active   []enrollment.Booking
	Waitlist []enrollment.Booking
}

// InvariantError reports a class whose counter disagrees with its ledger.
type InvariantError struct {
	ClassID  enrollment.ClassID
	Enrolled int
	Active   int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("class %s: enrolled=%d but %d active bookings", e.ClassID, e.Enrolled, e.Active)
}

// Catalog manages class sessions.
type Catalog struct {
	store enrollment.Store
	retry enrollment.RetryPolicy
}

func New(store enrollment.Store) *Catalog {
	return &Catalog{store: store, retry: enrollment.DefaultRetryPolicy()}
}

// CreateClass inserts a new active class with nobody enrolled.
func (c *Catalog) CreateClass(ctx context.Context, spec ClassSpec) (enrollment.ClassSession, error) {
	if spec.Capacity <= 0 {
		return enrollment.ClassSession{}, fmt.Errorf("%w: capacity must be positive, got %d", enrollment.ErrInvalidClass, spec.Capacity)
	}
	if spec.StartTime.IsZero() {
		return enrollment.ClassSession{}, fmt.Errorf("%w: start time is required", enrollment.ErrInvalidClass)
	}
	if spec.ID == "" {
		spec.ID = enrollment.ClassID(uuid.NewString())
	}

	class := enrollment.ClassSession{
		ID:        spec.ID,
		Capacity:  spec.Capacity,
		StartTime: spec.StartTime.UTC(),
		Status:    enrollment.ClassActive,
	}
	err := enrollment.RetryTransaction(ctx, c.store, c.retry, func(ctx context.Context, tx *enrollment.Txn) error {
		_, err := tx.Class(ctx, class.ID)
		if err == nil {
			return ErrClassExists
		}
		if !errors.Is(err, enrollment.ErrNotFound) {
			return err
		}
		tx.PutClass(class)
		return nil
	})
	if err != nil {
		return enrollment.ClassSession{}, err
	}
	return c.GetClass(ctx, class.ID)
}

// GetClass returns a class or enrollment.ErrClassNotFound.
func (c *Catalog) GetClass(ctx context.Context, id enrollment.ClassID) (enrollment.ClassSession, error) {
	class, err := c.store.GetClass(ctx, id)
	if errors.Is(err, enrollment.ErrNotFound) {
		return enrollment.ClassSession{}, enrollment.ErrClassNotFound
	}
	return class, err
}

// CancelClass marks a class cancelled. Cancelling twice is a no-op.
func (c *Catalog) CancelClass(ctx context.Context, id enrollment.ClassID) error {
	return enrollment.RetryTransaction(ctx, c.store, c.retry, func(ctx context.Context, tx *enrollment.Txn) error {
		class, err := tx.Class(ctx, id)
		if errors.Is(err, enrollment.ErrNotFound) {
			return enrollment.ErrClassNotFound
		}
		if err != nil {
			return err
		}
		if class.Status == enrollment.ClassCancelled {
			return nil
		}
		class.Status = enrollment.ClassCancelled
		tx.PutClass(class)
		return nil
	})
}

// Roster returns active members (by booking time) and the waitlist (by position).
func (c *Catalog) Roster(ctx context.Context, id enrollment.ClassID) (Roster, error) {
	class, err := c.GetClass(ctx, id)
	if err != nil {
		return Roster{}, err
	}
	bookings, err := c.store.BookingsByClass(ctx, id)
	if err != nil {
		return Roster{}, err
	}
	waitlist, err := c.store.Waitlist(ctx, id)
	if err != nil {
		return Roster{}, err
	}

	r := Roster{Class: class, Waitlist: waitlist}
	for _, b := range bookings {
		if b.Status == enrollment.BookingActive {
			r.Active = append(r.Active, b)
		}
	}
	return r, nil
}

// CheckInvariant verifies Enrolled == count(active bookings).
// The two reads are not atomic, so run it on a quiescent class.
func (c *Catalog) CheckInvariant(ctx context.Context, id enrollment.ClassID) error {
	r, err := c.Roster(ctx, id)
	if err != nil {
		return err
	}
	if r.Class.Enrolled != len(r.Active) || r.Class.Enrolled > r.Class.Capacity {
		return &InvariantError{ClassID: id, Enrolled: r.Class.Enrolled, Active: len(r.Active)}
	}
	return nil
}
