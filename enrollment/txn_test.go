package enrollment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/class-booking/enrollment"
	"github.com/warp/class-booking/enrollment/store"
)

func TestTxn_ReadYourWrites(t *testing.T) {
	s := store.NewMemory()
	seedClass(t, s, "yoga", 3)
	ctx := context.Background()

	tx := enrollment.NewTxn(s)
	class, err := tx.Class(ctx, "yoga")
	require.NoError(t, err)
	class.Enrolled = 2
	tx.PutClass(class)

	again, err := tx.Class(ctx, "yoga")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Enrolled)

	// Nothing reaches the store before commit
	stored, err := s.GetClass(ctx, "yoga")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Enrolled)
}

func TestTxn_WriteSetKeepsReadRevision(t *testing.T) {
	s := store.NewMemory()
	seedClass(t, s, "yoga", 3)
	ctx := context.Background()

	tx := enrollment.NewTxn(s)
	class, err := tx.Class(ctx, "yoga")
	require.NoError(t, err)
	tx.PutClass(class)
	tx.PutClass(class)

	ws := tx.WriteSet()
	require.Len(t, ws.Classes, 1)
	assert.Equal(t, enrollment.Revision(1), ws.Classes[0].Revision)
	assert.False(t, ws.IsEmpty())
	assert.True(t, enrollment.NewTxn(s).WriteSet().IsEmpty())
}

func TestTxn_WaitlistOverlaysBufferedWrites(t *testing.T) {
	s := store.NewMemory()
	seedClass(t, s, "yoga", 1)
	ctx := context.Background()
	pos := func(n int) *int { return &n }

	require.NoError(t, s.Commit(ctx, enrollment.WriteSet{Bookings: []enrollment.Booking{
		{ClassID: "yoga", UserID: "bob", Status: enrollment.BookingWaitlisted, WaitlistPosition: pos(0)},
		{ClassID: "yoga", UserID: "carol", Status: enrollment.BookingWaitlisted, WaitlistPosition: pos(1)},
	}}))

	tx := enrollment.NewTxn(s)
	bob, err := tx.Booking(ctx, "yoga", "bob")
	require.NoError(t, err)
	bob.Status = enrollment.BookingActive
	bob.WaitlistPosition = nil
	tx.PutBooking(bob)
	tx.PutBooking(enrollment.Booking{ClassID: "yoga", UserID: "dave", Status: enrollment.BookingWaitlisted, WaitlistPosition: pos(2)})

	waitlist, err := tx.Waitlist(ctx, "yoga")
	require.NoError(t, err)
	require.Len(t, waitlist, 2)
	assert.Equal(t, enrollment.UserID("carol"), waitlist[0].UserID)
	assert.Equal(t, enrollment.UserID("dave"), waitlist[1].UserID)
}

func TestTxn_MissingRecords(t *testing.T) {
	tx := enrollment.NewTxn(store.NewMemory())
	ctx := context.Background()

	_, err := tx.Class(ctx, "nope")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
	_, err = tx.Booking(ctx, "nope", "nobody")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
	_, err = tx.Credit(ctx, "nobody")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}
