/*
store.go - Persistence contract for classes, bookings and credits

PURPOSE:
  The Coordinator needs very little from storage: point reads by key, one
  ordered waitlist query, and an atomic conditional commit. Anything richer
  (projections, history) carries no transactional guarantee.

CONDITIONAL COMMIT:
  Every record carries a Revision. A write is accepted only if the stored
  revision still equals the revision the record was read with (0 = must not
  exist yet). Commit applies a whole WriteSet or nothing:

    read class@7, booking@0, credit@3
    commit {class@7, booking@0, credit@3}
      -> all match: write, revisions become 8, 1, 4
      -> any mismatch: ErrConcurrentModification, nothing written

  Credit entries are append-only and have no revision.

IMPLEMENTATIONS:
  - enrollment/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:     durable SQLite store

SEE ALSO:
  - txn.go:   builds WriteSets from reads and buffered writes
  - retry.go: retries on ErrConcurrentModification
*/
package enrollment

import "context"

// Reader is the point-read side used inside a transaction.
type Reader interface {
	// GetClass returns ErrNotFound when the class does not exist.
	GetClass(ctx context.Context, id ClassID) (ClassSession, error)

	// GetBooking returns ErrNotFound when no booking exists for the pair.
	GetBooking(ctx context.Context, classID ClassID, userID UserID) (Booking, error)

	// GetCredit returns ErrNotFound when the member has no account.
	GetCredit(ctx context.Context, userID UserID) (CreditAccount, error)

	// Waitlist returns the waitlisted bookings of a class ordered by
	// WaitlistPosition ascending.
	Waitlist(ctx context.Context, classID ClassID) ([]Booking, error)
}

// Store is the full persistence interface.
type Store interface {
	Reader

	// Commit applies all writes atomically, each conditional on its Revision.
	// Returns ErrConcurrentModification if any revision is stale.
	Commit(ctx context.Context, ws WriteSet) error

	// BookingsByUser returns a member's bookings, optionally filtered by
	// status, ordered by CreatedAt. Read-only projection.
	BookingsByUser(ctx context.Context, userID UserID, statuses ...BookingStatus) ([]Booking, error)

	// BookingsByClass returns every booking of a class ordered by CreatedAt.
	BookingsByClass(ctx context.Context, classID ClassID) ([]Booking, error)

	// CreditEntries returns a member's credit history ordered by CreatedAt.
	CreditEntries(ctx context.Context, userID UserID) ([]CreditEntry, error)
}

// WriteSet is the buffered output of one transaction attempt.
// Each record's Revision is the expected stored revision.
type WriteSet struct {
	Classes  []ClassSession
	Bookings []Booking
	Credits  []CreditAccount
	Entries  []CreditEntry
}

// IsEmpty reports whether there is nothing to commit.
func (ws WriteSet) IsEmpty() bool {
	return len(ws.Classes) == 0 && len(ws.Bookings) == 0 &&
		len(ws.Credits) == 0 && len(ws.Entries) == 0
}

// Admin is implemented by stores that support maintenance operations:
// enumeration for audits and wiping for demo scenarios.
type Admin interface {
	// ClassIDs returns every class ID in ascending order.
	ClassIDs(ctx context.Context) ([]ClassID, error)

	// AccountIDs returns every member with a credit account, ascending.
	AccountIDs(ctx context.Context) ([]UserID, error)

	// Reset deletes all data.
	Reset(ctx context.Context) error
}
