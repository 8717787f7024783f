/*
Package enrollment provides the class booking engine.

PURPOSE:
  Decides who gets a seat in a class. Many members may try to reserve the
  last seats of a class at the same time; cancellations free (or do not
  free) credit depending on timing; a full class accepts a waitlist and
  promotes from it in arrival order when a seat opens.

KEY CONCEPTS IN THIS FILE (types.go):
  - ClassSession:  capacity and current enrollment of one class
  - Booking:       one member's relationship to one class, keyed by (class, user)
  - CreditAccount: consumable session credits of one member
  - CreditEntry:   append-only record of every balance change
  - Revision:      compare-and-swap token carried by every mutable record

INVARIANTS:
  1. ClassSession.Enrolled never exceeds Capacity
  2. Enrolled == number of active bookings of the class
  3. At most one booking exists per (class, user); writes are upserts
  4. CreditAccount.Balance never goes negative and always equals the sum of
     the account's CreditEntry deltas

SEE ALSO:
  - coordinator.go: Enroll / Cancel decisions
  - txn.go, retry.go: optimistic transactions
  - store.go: persistence contract
  - policy.go: cancellation refund policy
*/
package enrollment

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClassID string
type UserID string

// Revision is the compare-and-swap token of a stored record.
// Zero means the record does not exist yet. Every committed write bumps it.
type Revision int64

// =============================================================================
// CLASS SESSION
// =============================================================================

type ClassStatus string

const (
	ClassActive    ClassStatus = "active"
	ClassCancelled ClassStatus = "cancelled"
)

// ClassSession is the durable capacity record of one class.
// Enrolled is mutated only by the Coordinator.
type ClassSession struct {
	ID        ClassID
	Capacity  int
	Enrolled  int
	StartTime time.Time
	Status    ClassStatus
	Revision  Revision
}

// HasSeat reports whether another booking can become active.
func (c ClassSession) HasSeat() bool { return c.Enrolled < c.Capacity }

// SeatsLeft returns the number of free seats, never negative.
func (c ClassSession) SeatsLeft() int {
	if c.Enrolled >= c.Capacity {
		return 0
	}
	return c.Capacity - c.Enrolled
}

// =============================================================================
// BOOKING
// =============================================================================

type BookingStatus string

const (
	BookingActive     BookingStatus = "active"
	BookingWaitlisted BookingStatus = "waitlisted"
	BookingCancelled  BookingStatus = "cancelled"
)

// Booking is the ledger row for one (class, user) pair.
//
// WaitlistPosition is set only while Status is waitlisted. Positions are
// compared by value, not contiguity: cancelling a waitlisted booking leaves
// a gap and nothing is re-packed.
type Booking struct {
	ClassID          ClassID
	UserID           UserID
	Status           BookingStatus
	WaitlistPosition *int
	CreatedAt        time.Time
	CancelledAt      *time.Time
	Revision         Revision
}

// Live reports whether the booking still holds or waits for a seat.
func (b Booking) Live() bool {
	return b.Status == BookingActive || b.Status == BookingWaitlisted
}

// Position returns the waitlist position, or -1 when not waitlisted.
func (b Booking) Position() int {
	if b.WaitlistPosition == nil {
		return -1
	}
	return *b.WaitlistPosition
}

type bookingKey struct {
	ClassID ClassID
	UserID  UserID
}

func keyOf(b Booking) bookingKey { return bookingKey{ClassID: b.ClassID, UserID: b.UserID} }

// =============================================================================
// CREDITS
// =============================================================================

// CreditAccount holds the number of sessions a member can still book.
type CreditAccount struct {
	UserID   UserID
	Balance  int
	Revision Revision
}

type CreditEntryKind string

const (
	CreditGrant          CreditEntryKind = "grant"           // Admin top-up or opening balance
	CreditBookingDebit   CreditEntryKind = "booking_debit"   // Seat taken directly
	CreditPromotionDebit CreditEntryKind = "promotion_debit" // Seat taken from the waitlist
	CreditRefund         CreditEntryKind = "refund"          // Early cancellation
	CreditForfeit        CreditEntryKind = "forfeit"         // Late cancellation, zero delta
)

// CreditEntry is an append-only record of a balance change.
// Entries are never updated; the account balance is their running sum.
type CreditEntry struct {
	ID        string
	UserID    UserID
	ClassID   ClassID
	Delta     int
	Kind      CreditEntryKind
	Reason    string
	CreatedAt time.Time
}

// =============================================================================
// RESULTS
// =============================================================================

type Outcome string

const (
	OutcomeBooked     Outcome = "booked"
	OutcomeWaitlisted Outcome = "waitlisted"
	OutcomeCancelled  Outcome = "cancelled"
)

// EnrollResult is returned by Coordinator.Enroll.
type EnrollResult struct {
	Outcome Outcome
	Booking Booking
}

// CancelResult is returned by Coordinator.Cancel.
// PromotedUserID is empty when nobody was promoted.
type CancelResult struct {
	Outcome        Outcome
	Refunded       bool
	HoursBefore    float64
	PromotedUserID UserID
}

// Promoted reports whether the cancellation moved someone off the waitlist.
func (r CancelResult) Promoted() bool { return r.PromotedUserID != "" }
