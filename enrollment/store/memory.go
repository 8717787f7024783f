// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/class-booking/enrollment"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record in maps guarded by one RWMutex.
// Commit validates all revisions before applying anything.
type Memory struct {
	mu       sync.RWMutex
	classes  map[enrollment.ClassID]enrollment.ClassSession
	bookings map[key]enrollment.Booking
	credits  map[enrollment.UserID]enrollment.CreditAccount
	entries  []enrollment.CreditEntry

	// OnCommit, if set, runs before each commit is validated.
	// Tests use it to inject a competing writer.
	OnCommit func()
}

type key struct {
	ClassID enrollment.ClassID
	UserID  enrollment.UserID
}

var (
	_ enrollment.Store = (*Memory)(nil)
	_ enrollment.Admin = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		classes:  make(map[enrollment.ClassID]enrollment.ClassSession),
		bookings: make(map[key]enrollment.Booking),
		credits:  make(map[enrollment.UserID]enrollment.CreditAccount),
	}
}

func (m *Memory) GetClass(_ context.Context, id enrollment.ClassID) (enrollment.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.classes[id]
	if !ok {
		return enrollment.ClassSession{}, enrollment.ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetBooking(_ context.Context, classID enrollment.ClassID, userID enrollment.UserID) (enrollment.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[key{ClassID: classID, UserID: userID}]
	if !ok {
		return enrollment.Booking{}, enrollment.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (m *Memory) GetCredit(_ context.Context, userID enrollment.UserID) (enrollment.CreditAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.credits[userID]
	if !ok {
		return enrollment.CreditAccount{}, enrollment.ErrNotFound
	}
	return a, nil
}

func (m *Memory) Waitlist(_ context.Context, classID enrollment.ClassID) ([]enrollment.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []enrollment.Booking
	for k, b := range m.bookings {
		if k.ClassID == classID && b.Status == enrollment.BookingWaitlisted {
			result = append(result, cloneBooking(b))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Position() < result[j].Position()
	})
	return result, nil
}

// Commit checks every expected revision under the write lock, then applies
// the whole set. Nothing is written if any check fails.
func (m *Memory) Commit(_ context.Context, ws enrollment.WriteSet) error {
	if m.OnCommit != nil {
		m.OnCommit()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range ws.Classes {
		if m.classes[c.ID].Revision != c.Revision {
			return enrollment.ErrConcurrentModification
		}
	}
	for _, b := range ws.Bookings {
		if m.bookings[key{ClassID: b.ClassID, UserID: b.UserID}].Revision != b.Revision {
			return enrollment.ErrConcurrentModification
		}
	}
	for _, a := range ws.Credits {
		if m.credits[a.UserID].Revision != a.Revision {
			return enrollment.ErrConcurrentModification
		}
	}

	for _, c := range ws.Classes {
		c.Revision++
		m.classes[c.ID] = c
	}
	for _, b := range ws.Bookings {
		b.Revision++
		m.bookings[key{ClassID: b.ClassID, UserID: b.UserID}] = cloneBooking(b)
	}
	for _, a := range ws.Credits {
		a.Revision++
		m.credits[a.UserID] = a
	}
	m.entries = append(m.entries, ws.Entries...)
	return nil
}

func (m *Memory) BookingsByUser(_ context.Context, userID enrollment.UserID, statuses ...enrollment.BookingStatus) ([]enrollment.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []enrollment.Booking
	for k, b := range m.bookings {
		if k.UserID == userID && statusIn(b.Status, statuses) {
			result = append(result, cloneBooking(b))
		}
	}
	sortByCreated(result)
	return result, nil
}

func (m *Memory) BookingsByClass(_ context.Context, classID enrollment.ClassID) ([]enrollment.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []enrollment.Booking
	for k, b := range m.bookings {
		if k.ClassID == classID {
			result = append(result, cloneBooking(b))
		}
	}
	sortByCreated(result)
	return result, nil
}

func (m *Memory) CreditEntries(_ context.Context, userID enrollment.UserID) ([]enrollment.CreditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []enrollment.CreditEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

// =============================================================================
// ADMIN
// =============================================================================

func (m *Memory) ClassIDs(_ context.Context) ([]enrollment.ClassID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]enrollment.ClassID, 0, len(m.classes))
	for id := range m.classes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) AccountIDs(_ context.Context) ([]enrollment.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]enrollment.UserID, 0, len(m.credits))
	for id := range m.credits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.classes = make(map[enrollment.ClassID]enrollment.ClassSession)
	m.bookings = make(map[key]enrollment.Booking)
	m.credits = make(map[enrollment.UserID]enrollment.CreditAccount)
	m.entries = nil
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func statusIn(s enrollment.BookingStatus, statuses []enrollment.BookingStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func sortByCreated(bs []enrollment.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			if bs[i].ClassID == bs[j].ClassID {
				return bs[i].UserID < bs[j].UserID
			}
			return bs[i].ClassID < bs[j].ClassID
		}
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}

// cloneBooking copies pointer fields so callers cannot mutate stored state.
func cloneBooking(b enrollment.Booking) enrollment.Booking {
	if b.WaitlistPosition != nil {
		p := *b.WaitlistPosition
		b.WaitlistPosition = &p
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		b.CancelledAt = &t
	}
	return b
}
