package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/class-booking/catalog"
	"github.com/warp/class-booking/credits"
	"github.com/warp/class-booking/enrollment"
	"github.com/warp/class-booking/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var start = time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

func TestCreateClass(t *testing.T) {
	cat := catalog.New(newTestStore(t))
	ctx := context.Background()

	class, err := cat.CreateClass(ctx, catalog.ClassSpec{ID: "yoga", Capacity: 12, StartTime: start})
	require.NoError(t, err)
	assert.Equal(t, enrollment.ClassID("yoga"), class.ID)
	assert.Equal(t, 12, class.SeatsLeft())
	assert.Equal(t, enrollment.ClassActive, class.Status)

	_, err = cat.CreateClass(ctx, catalog.ClassSpec{ID: "yoga", Capacity: 5, StartTime: start})
	assert.ErrorIs(t, err, catalog.ErrClassExists)
}

func TestCreateClass_GeneratesID(t *testing.T) {
	cat := catalog.New(newTestStore(t))

	class, err := cat.CreateClass(context.Background(), catalog.ClassSpec{Capacity: 1, StartTime: start})
	require.NoError(t, err)
	assert.NotEmpty(t, class.ID)
}

func TestCreateClass_Validation(t *testing.T) {
	cat := catalog.New(newTestStore(t))
	ctx := context.Background()

	_, err := cat.CreateClass(ctx, catalog.ClassSpec{ID: "zero", Capacity: 0, StartTime: start})
	assert.ErrorIs(t, err, enrollment.ErrInvalidClass)

	_, err = cat.CreateClass(ctx, catalog.ClassSpec{ID: "nostart", Capacity: 3})
	assert.ErrorIs(t, err, enrollment.ErrInvalidClass)
}

func TestCancelClass(t *testing.T) {
	store := newTestStore(t)
	cat := catalog.New(store)
	ctx := context.Background()
	_, err := cat.CreateClass(ctx, catalog.ClassSpec{ID: "yoga", Capacity: 2, StartTime: start})
	require.NoError(t, err)

	require.NoError(t, cat.CancelClass(ctx, "yoga"))
	require.NoError(t, cat.CancelClass(ctx, "yoga"), "second cancel is a no-op")

	class, err := cat.GetClass(ctx, "yoga")
	require.NoError(t, err)
	assert.Equal(t, enrollment.ClassCancelled, class.Status)

	assert.ErrorIs(t, cat.CancelClass(ctx, "nope"), enrollment.ErrClassNotFound)
	_, err = cat.GetClass(ctx, "nope")
	assert.ErrorIs(t, err, enrollment.ErrClassNotFound)
}

func TestRosterAndInvariant(t *testing.T) {
	// GIVEN: A 2-seat class with two members booked and one waitlisted
	store := newTestStore(t)
	cat := catalog.New(store)
	ledger := credits.NewLedger(store)
	coord := enrollment.NewCoordinator(store)
	ctx := context.Background()

	_, err := cat.CreateClass(ctx, catalog.ClassSpec{ID: "yoga", Capacity: 2, StartTime: start})
	require.NoError(t, err)
	for _, u := range []enrollment.UserID{"alice", "bob", "carol"} {
		_, err := ledger.OpenAccount(ctx, u, 3)
		require.NoError(t, err)
		_, err = coord.Enroll(ctx, u, "yoga")
		require.NoError(t, err)
	}

	// WHEN: Reading the roster
	roster, err := cat.Roster(ctx, "yoga")
	require.NoError(t, err)

	// THEN: Counter matches the active bookings
	assert.Len(t, roster.Active, 2)
	require.Len(t, roster.Waitlist, 1)
	assert.Equal(t, enrollment.UserID("carol"), roster.Waitlist[0].UserID)
	assert.NoError(t, cat.CheckInvariant(ctx, "yoga"))
}

func TestCheckInvariant_DetectsDrift(t *testing.T) {
	store := newTestStore(t)
	cat := catalog.New(store)
	ctx := context.Background()
	_, err := cat.CreateClass(ctx, catalog.ClassSpec{ID: "yoga", Capacity: 2, StartTime: start})
	require.NoError(t, err)

	// Bump the counter without a booking behind it
	class, err := store.GetClass(ctx, "yoga")
	require.NoError(t, err)
	class.Enrolled = 1
	require.NoError(t, store.Commit(ctx, enrollment.WriteSet{Classes: []enrollment.ClassSession{class}}))

	err = cat.CheckInvariant(ctx, "yoga")
	var invErr *catalog.InvariantError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, 1, invErr.Enrolled)
	assert.Equal(t, 0, invErr.Active)
}
