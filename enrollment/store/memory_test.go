package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/class-booking/enrollment"
)

func TestMemory_CommitIsAllOrNothing(t *testing.T) {
	// GIVEN: A class at revision 1
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Commit(ctx, enrollment.WriteSet{
		Classes: []enrollment.ClassSession{{ID: "yoga", Capacity: 2, Status: enrollment.ClassActive}},
	}))

	// WHEN: A write set carries a valid new account and a stale class
	err := m.Commit(ctx, enrollment.WriteSet{
		Credits: []enrollment.CreditAccount{{UserID: "alice", Balance: 3}},
		Classes: []enrollment.ClassSession{{ID: "yoga", Capacity: 2, Enrolled: 1, Revision: 0}},
	})

	// THEN: Nothing is applied
	assert.ErrorIs(t, err, enrollment.ErrConcurrentModification)
	_, err = m.GetCredit(ctx, "alice")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
	class, err := m.GetClass(ctx, "yoga")
	require.NoError(t, err)
	assert.Equal(t, 0, class.Enrolled)
	assert.Equal(t, enrollment.Revision(1), class.Revision)
}

func TestMemory_ReturnedBookingsAreCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	pos := 0
	require.NoError(t, m.Commit(ctx, enrollment.WriteSet{Bookings: []enrollment.Booking{
		{ClassID: "yoga", UserID: "bob", Status: enrollment.BookingWaitlisted, WaitlistPosition: &pos},
	}}))
	pos = 7

	b, err := m.GetBooking(ctx, "yoga", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Position())

	*b.WaitlistPosition = 9
	again, err := m.GetBooking(ctx, "yoga", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Position())
}

func TestMemory_BookingsByUserFiltersStatus(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, m.Commit(ctx, enrollment.WriteSet{Bookings: []enrollment.Booking{
		{ClassID: "spin", UserID: "alice", Status: enrollment.BookingActive, CreatedAt: t0.Add(time.Hour)},
		{ClassID: "yoga", UserID: "alice", Status: enrollment.BookingActive, CreatedAt: t0},
		{ClassID: "box", UserID: "alice", Status: enrollment.BookingCancelled, CreatedAt: t0},
	}}))

	active, err := m.BookingsByUser(ctx, "alice", enrollment.BookingActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, enrollment.ClassID("yoga"), active[0].ClassID)
	assert.Equal(t, enrollment.ClassID("spin"), active[1].ClassID)

	all, err := m.BookingsByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
