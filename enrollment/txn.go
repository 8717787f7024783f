package enrollment

import (
	"context"
	"sort"
)

// =============================================================================
// TXN - One optimistic transaction attempt
// =============================================================================

// Txn is a read-through view of the store with buffered writes.
//
// Reads are cached so a record is read at most once per attempt, and reads
// after a Put return the buffered value. Writes keep the Revision the record
// was read with; Store.Commit uses it as the expected revision.
//
// A Txn is not safe for concurrent use. RetryTransaction creates a fresh one
// for every attempt.
type Txn struct {
	r Reader

	classes  map[ClassID]ClassSession
	bookings map[bookingKey]Booking
	credits  map[UserID]CreditAccount

	dirtyClasses  []ClassID
	dirtyBookings []bookingKey
	dirtyCredits  []UserID
	written       map[any]bool
	entries       []CreditEntry
}

// NewTxn creates an empty transaction over r.
func NewTxn(r Reader) *Txn {
	return &Txn{
		r:        r,
		classes:  make(map[ClassID]ClassSession),
		bookings: make(map[bookingKey]Booking),
		credits:  make(map[UserID]CreditAccount),
		written:  make(map[any]bool),
	}
}

// Class reads a class. Returns ErrNotFound if it does not exist.
func (t *Txn) Class(ctx context.Context, id ClassID) (ClassSession, error) {
	if c, ok := t.classes[id]; ok {
		return c, nil
	}
	c, err := t.r.GetClass(ctx, id)
	if err != nil {
		return ClassSession{}, err
	}
	t.classes[id] = c
	return c, nil
}

// Booking reads the booking for a pair. Returns ErrNotFound if absent.
func (t *Txn) Booking(ctx context.Context, classID ClassID, userID UserID) (Booking, error) {
	k := bookingKey{ClassID: classID, UserID: userID}
	if b, ok := t.bookings[k]; ok {
		return b, nil
	}
	b, err := t.r.GetBooking(ctx, classID, userID)
	if err != nil {
		return Booking{}, err
	}
	t.bookings[k] = b
	return b, nil
}

// Credit reads a member's credit account. Returns ErrNotFound if absent.
func (t *Txn) Credit(ctx context.Context, userID UserID) (CreditAccount, error) {
	if a, ok := t.credits[userID]; ok {
		return a, nil
	}
	a, err := t.r.GetCredit(ctx, userID)
	if err != nil {
		return CreditAccount{}, err
	}
	t.credits[userID] = a
	return a, nil
}

// Waitlist returns the class waitlist in position order, reflecting any
// bookings already written in this transaction.
func (t *Txn) Waitlist(ctx context.Context, classID ClassID) ([]Booking, error) {
	stored, err := t.r.Waitlist(ctx, classID)
	if err != nil {
		return nil, err
	}

	seen := make(map[bookingKey]bool, len(stored))
	var out []Booking
	for _, b := range stored {
		k := keyOf(b)
		seen[k] = true
		if cached, ok := t.bookings[k]; ok {
			b = cached
		} else {
			t.bookings[k] = b
		}
		if b.Status == BookingWaitlisted {
			out = append(out, b)
		}
	}
	for _, k := range t.dirtyBookings {
		b := t.bookings[k]
		if k.ClassID == classID && !seen[k] && b.Status == BookingWaitlisted {
			out = append(out, b)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position() < out[j].Position()
	})
	return out, nil
}

// PutClass buffers a class write.
func (t *Txn) PutClass(c ClassSession) {
	if !t.written[c.ID] {
		t.written[c.ID] = true
		t.dirtyClasses = append(t.dirtyClasses, c.ID)
	}
	t.classes[c.ID] = c
}

// PutBooking buffers a booking upsert.
func (t *Txn) PutBooking(b Booking) {
	k := keyOf(b)
	if !t.written[k] {
		t.written[k] = true
		t.dirtyBookings = append(t.dirtyBookings, k)
	}
	t.bookings[k] = b
}

// PutCredit buffers a credit account write.
func (t *Txn) PutCredit(a CreditAccount) {
	if !t.written[a.UserID] {
		t.written[a.UserID] = true
		t.dirtyCredits = append(t.dirtyCredits, a.UserID)
	}
	t.credits[a.UserID] = a
}

// AppendEntry buffers a credit ledger entry.
func (t *Txn) AppendEntry(e CreditEntry) {
	t.entries = append(t.entries, e)
}

// WriteSet returns the buffered writes in the order they were first made.
func (t *Txn) WriteSet() WriteSet {
	var ws WriteSet
	for _, id := range t.dirtyClasses {
		ws.Classes = append(ws.Classes, t.classes[id])
	}
	for _, k := range t.dirtyBookings {
		ws.Bookings = append(ws.Bookings, t.bookings[k])
	}
	for _, id := range t.dirtyCredits {
		ws.Credits = append(ws.Credits, t.credits[id])
	}
	ws.Entries = append(ws.Entries, t.entries...)
	return ws
}
