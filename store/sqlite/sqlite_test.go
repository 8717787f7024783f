package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/class-booking/enrollment"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *Store {
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var start = time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

func insertClass(t *testing.T, s *Store, id enrollment.ClassID, capacity int) {
	t.Helper()
	require.NoError(t, s.Commit(context.Background(), enrollment.WriteSet{
		Classes: []enrollment.ClassSession{{ID: id, Capacity: capacity, StartTime: start, Status: enrollment.ClassActive}},
	}))
}

func intp(n int) *int { return &n }

// =============================================================================
// SCHEMA
// =============================================================================

func TestMigrations_Idempotent(t *testing.T) {
	s := newTestStore(t)

	// Already at head: a second run is a no-op
	require.NoError(t, migrateUp(s.db))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM class_sessions").Scan(&n))
	assert.Equal(t, 0, n)
}

// =============================================================================
// CONDITIONAL COMMIT
// =============================================================================

func TestCommit_InsertThenUpdateBumpsRevision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertClass(t, s, "yoga", 3)

	class, err := s.GetClass(ctx, "yoga")
	require.NoError(t, err)
	assert.Equal(t, enrollment.Revision(1), class.Revision)
	assert.True(t, class.StartTime.Equal(start))

	class.Enrolled = 1
	require.NoError(t, s.Commit(ctx, enrollment.WriteSet{Classes: []enrollment.ClassSession{class}}))

	updated, err := s.GetClass(ctx, "yoga")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Enrolled)
	assert.Equal(t, enrollment.Revision(2), updated.Revision)
}

func TestCommit_StaleRevisionConflicts(t *testing.T) {
	// GIVEN: Two readers of the same class
	s := newTestStore(t)
	ctx := context.Background()
	insertClass(t, s, "yoga", 3)

	first, err := s.GetClass(ctx, "yoga")
	require.NoError(t, err)
	second := first

	// WHEN: Both write, the second with an account insert in the same set
	first.Enrolled = 1
	require.NoError(t, s.Commit(ctx, enrollment.WriteSet{Classes: []enrollment.ClassSession{first}}))

	second.Enrolled = 1
	err = s.Commit(ctx, enrollment.WriteSet{
		Credits: []enrollment.CreditAccount{{UserID: "alice", Balance: 1}},
		Classes: []enrollment.ClassSession{second},
	})

	// THEN: The second commit conflicts and writes nothing
	assert.ErrorIs(t, err, enrollment.ErrConcurrentModification)
	_, err = s.GetCredit(ctx, "alice")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}

func TestCommit_DuplicateInsertConflicts(t *testing.T) {
	s := newTestStore(t)
	insertClass(t, s, "yoga", 3)

	err := s.Commit(context.Background(), enrollment.WriteSet{
		Classes: []enrollment.ClassSession{{ID: "yoga", Capacity: 3, StartTime: start, Status: enrollment.ClassActive}},
	})
	assert.ErrorIs(t, err, enrollment.ErrConcurrentModification)
}

func TestCommit_DuplicateWaitlistPositionConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertClass(t, s, "yoga", 1)

	require.NoError(t, s.Commit(ctx, enrollment.WriteSet{Bookings: []enrollment.Booking{
		{ClassID: "yoga", UserID: "bob", Status: enrollment.BookingWaitlisted, WaitlistPosition: intp(0), CreatedAt: start},
	}}))
	err := s.Commit(ctx, enrollment.WriteSet{Bookings: []enrollment.Booking{
		{ClassID: "yoga", UserID: "carol", Status: enrollment.BookingWaitlisted, WaitlistPosition: intp(0), CreatedAt: start},
	}})
	assert.ErrorIs(t, err, enrollment.ErrConcurrentModification)
}

func TestCommit_CheckConstraintIsNotAConflict(t *testing.T) {
	s := newTestStore(t)
	err := s.Commit(context.Background(), enrollment.WriteSet{
		Credits: []enrollment.CreditAccount{{UserID: "alice", Balance: -1}},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, enrollment.ErrConcurrentModification))
}

// =============================================================================
// READS
// =============================================================================

func TestBooking_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertClass(t, s, "yoga", 1)

	cancelled := start.Add(-2 * time.Hour)
	require.NoError(t, s.Commit(ctx, enrollment.WriteSet{Bookings: []enrollment.Booking{
		{ClassID: "yoga", UserID: "alice", Status: enrollment.BookingCancelled, CreatedAt: start.Add(-48 * time.Hour), CancelledAt: &cancelled},
		{ClassID: "yoga", UserID: "bob", Status: enrollment.BookingWaitlisted, WaitlistPosition: intp(4), CreatedAt: start.Add(-24 * time.Hour)},
	}}))

	alice, err := s.GetBooking(ctx, "yoga", "alice")
	require.NoError(t, err)
	assert.Equal(t, enrollment.BookingCancelled, alice.Status)
	assert.Nil(t, alice.WaitlistPosition)
	require.NotNil(t, alice.CancelledAt)
	assert.True(t, alice.CancelledAt.Equal(cancelled))

	bob, err := s.GetBooking(ctx, "yoga", "bob")
	require.NoError(t, err)
	assert.Equal(t, 4, bob.Position())
	assert.Nil(t, bob.CancelledAt)

	_, err = s.GetBooking(ctx, "yoga", "carol")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}

func TestWaitlist_OrderedByPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertClass(t, s, "yoga", 1)

	require.NoError(t, s.Commit(ctx, enrollment.WriteSet{Bookings: []enrollment.Booking{
		{ClassID: "yoga", UserID: "zed", Status: enrollment.BookingWaitlisted, WaitlistPosition: intp(2), CreatedAt: start},
		{ClassID: "yoga", UserID: "amy", Status: enrollment.BookingWaitlisted, WaitlistPosition: intp(5), CreatedAt: start},
		{ClassID: "yoga", UserID: "max", Status: enrollment.BookingWaitlisted, WaitlistPosition: intp(0), CreatedAt: start},
		{ClassID: "yoga", UserID: "kim", Status: enrollment.BookingActive, CreatedAt: start},
	}}))

	waitlist, err := s.Waitlist(ctx, "yoga")
	require.NoError(t, err)
	var users []enrollment.UserID
	for _, b := range waitlist {
		users = append(users, b.UserID)
	}
	assert.Equal(t, []enrollment.UserID{"max", "zed", "amy"}, users)
}

func TestCreditEntries_OldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, enrollment.WriteSet{
		Credits: []enrollment.CreditAccount{{UserID: "alice", Balance: 4}},
		Entries: []enrollment.CreditEntry{
			{ID: "e2", UserID: "alice", Delta: -1, Kind: enrollment.CreditBookingDebit, ClassID: "yoga", CreatedAt: start.Add(time.Hour)},
			{ID: "e1", UserID: "alice", Delta: 5, Kind: enrollment.CreditGrant, Reason: "opening balance", CreatedAt: start},
		},
	}))

	entries, err := s.CreditEntries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, enrollment.ClassID(""), entries[0].ClassID)
	assert.Equal(t, "opening balance", entries[0].Reason)
	assert.Equal(t, enrollment.ClassID("yoga"), entries[1].ClassID)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertClass(t, s, "yoga", 1)

	require.NoError(t, s.Reset(ctx))
	_, err := s.GetClass(ctx, "yoga")
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}

// =============================================================================
// END TO END WITH THE COORDINATOR
// =============================================================================

func TestCoordinator_ConcurrentEnrollOnSQLite(t *testing.T) {
	// GIVEN: 3 seats, 12 members
	s := newTestStore(t)
	ctx := context.Background()
	insertClass(t, s, "yoga", 3)
	for i := 0; i < 12; i++ {
		require.NoError(t, s.Commit(ctx, enrollment.WriteSet{
			Credits: []enrollment.CreditAccount{{UserID: enrollment.UserID(fmt.Sprintf("m%02d", i)), Balance: 2}},
		}))
	}
	c := enrollment.NewCoordinator(s, enrollment.WithRetryPolicy(enrollment.RetryPolicy{
		MaxAttempts: 100,
		BaseDelay:   100 * time.Microsecond,
		MaxDelay:    2 * time.Millisecond,
	}))

	// WHEN: They all enroll at once
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(u enrollment.UserID) {
			defer wg.Done()
			_, err := c.Enroll(ctx, u, "yoga")
			if err != nil && !errors.Is(err, enrollment.ErrBusy) {
				t.Errorf("enroll %s: %v", u, err)
			}
		}(enrollment.UserID(fmt.Sprintf("m%02d", i)))
	}
	wg.Wait()

	// THEN: Counter and ledger agree and capacity holds
	class, err := s.GetClass(ctx, "yoga")
	require.NoError(t, err)
	assert.Equal(t, 3, class.Enrolled)

	bookings, err := s.BookingsByClass(ctx, "yoga")
	require.NoError(t, err)
	active := 0
	for _, b := range bookings {
		if b.Status == enrollment.BookingActive {
			active++
		}
	}
	assert.Equal(t, class.Enrolled, active)
}

func TestCoordinator_CancelAndPromoteOnSQLite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertClass(t, s, "yoga", 1)
	require.NoError(t, s.Commit(ctx, enrollment.WriteSet{Credits: []enrollment.CreditAccount{
		{UserID: "alice", Balance: 1},
		{UserID: "bob", Balance: 1},
	}}))
	c := enrollment.NewCoordinator(s)

	_, err := c.Enroll(ctx, "alice", "yoga")
	require.NoError(t, err)
	_, err = c.Enroll(ctx, "bob", "yoga")
	require.NoError(t, err)

	res, err := c.Cancel(ctx, "alice", "yoga", start.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Refunded)
	assert.Equal(t, enrollment.UserID("bob"), res.PromotedUserID)

	active, err := s.BookingsByUser(ctx, "bob", enrollment.BookingActive)
	require.NoError(t, err)
	require.Len(t, active, 1)

	waitlist, err := s.Waitlist(ctx, "yoga")
	require.NoError(t, err)
	assert.Empty(t, waitlist)
}
