/*
coordinator.go - Transactional core of the booking engine

PURPOSE:
  Serializes concurrent Enroll/Cancel attempts against one class, enforces
  capacity, manages the waitlist, and keeps bookings and credits consistent
  in the same atomic commit.

SERIALIZATION:
  Every successful attempt writes the class record, even when Enrolled does
  not change (a waitlist join, a waitlisted cancel). All mutations of a class
  therefore race on the class revision, and exactly one of two concurrent
  writers commits; the loser re-reads and decides again. This is what makes
  "last seat" races, waitlist position assignment and promotion safe.

ENROLL:
  class active?            no  -> ErrClassNotFound
  live booking for pair?   yes -> ErrAlreadyBooked
  credit account?          no  -> ErrUserNotFound
  seat free?               yes -> active, Enrolled+1, debit 1     => Booked
                           no  -> waitlisted at max(position)+1   => Waitlisted

CANCEL:
  live booking?            no  -> ErrNoBooking
  waitlisted               -> cancelled, nothing else changes
  active                   -> cancelled, Enrolled-1, refund if early,
                              then promote the lowest waitlist position
                              whose owner can pay (Enrolled+1, debit 1)

NOTIFICATIONS:
  Fired after commit only, outside the retry loop. Failures are logged.

SEE ALSO:
  - retry.go:  RetryTransaction
  - policy.go: refund decision
*/
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/warp/class-booking/enrollment"

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator is the only component allowed to change ClassSession.Enrolled.
type Coordinator struct {
	store    Store
	policy   CancellationPolicy
	retry    RetryPolicy
	notifier Notifier
	now      func() time.Time
	tracer   trace.Tracer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Coordinator) { c.retry = p }
}

func WithCancellationPolicy(p CancellationPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithClock sets the clock used for booking timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator creates a Coordinator over store.
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		policy:   DefaultCancellationPolicy(),
		retry:    DefaultRetryPolicy(),
		notifier: NopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// ENROLL
// =============================================================================

// Enroll books a seat for userID in classID, or joins the waitlist when the
// class is full.
func (c *Coordinator) Enroll(ctx context.Context, userID UserID, classID ClassID) (EnrollResult, error) {
	ctx, span := c.tracer.Start(ctx, "enrollment.Enroll", trace.WithAttributes(
		attribute.String("class.id", string(classID)),
		attribute.String("user.id", string(userID)),
	))
	defer span.End()

	var result EnrollResult
	err := RetryTransaction(ctx, c.store, c.retry, func(ctx context.Context, tx *Txn) error {
		r, err := c.enroll(ctx, tx, userID, classID)
		result = r
		return err
	})
	if err != nil {
		endSpan(span, err)
		return EnrollResult{}, err
	}
	span.SetAttributes(attribute.String("enrollment.outcome", string(result.Outcome)))

	if result.Outcome == OutcomeBooked {
		if err := c.notifier.NotifyBooked(context.WithoutCancel(ctx), userID, classID); err != nil {
			log.Printf("[Coordinator] booked notification failed for %s/%s: %v", classID, userID, err)
		}
	}
	return result, nil
}

func (c *Coordinator) enroll(ctx context.Context, tx *Txn, userID UserID, classID ClassID) (EnrollResult, error) {
	class, err := tx.Class(ctx, classID)
	if errors.Is(err, ErrNotFound) {
		return EnrollResult{}, ErrClassNotFound
	}
	if err != nil {
		return EnrollResult{}, fmt.Errorf("read class %s: %w", classID, err)
	}
	if class.Status != ClassActive {
		return EnrollResult{}, ErrClassNotFound
	}

	booking, err := tx.Booking(ctx, classID, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		booking = Booking{ClassID: classID, UserID: userID}
	case err != nil:
		return EnrollResult{}, fmt.Errorf("read booking %s/%s: %w", classID, userID, err)
	case booking.Live():
		return EnrollResult{}, ErrAlreadyBooked
	}

	account, err := tx.Credit(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return EnrollResult{}, ErrUserNotFound
	}
	if err != nil {
		return EnrollResult{}, fmt.Errorf("read credit %s: %w", userID, err)
	}

	now := c.now()
	booking.CreatedAt = now
	booking.CancelledAt = nil

	var outcome Outcome
	if class.HasSeat() {
		if account.Balance < 1 {
			return EnrollResult{}, &InsufficientCreditError{UserID: userID, Balance: account.Balance, Required: 1}
		}
		booking.Status = BookingActive
		booking.WaitlistPosition = nil
		class.Enrolled++
		account.Balance--
		tx.PutCredit(account)
		tx.AppendEntry(NewCreditEntry(userID, classID, -1, CreditBookingDebit, "class booked", now))
		outcome = OutcomeBooked
	} else {
		waitlist, err := tx.Waitlist(ctx, classID)
		if err != nil {
			return EnrollResult{}, fmt.Errorf("read waitlist %s: %w", classID, err)
		}
		pos := nextPosition(waitlist)
		booking.Status = BookingWaitlisted
		booking.WaitlistPosition = &pos
		outcome = OutcomeWaitlisted
	}

	tx.PutBooking(booking)
	tx.PutClass(class)
	return EnrollResult{Outcome: outcome, Booking: booking}, nil
}

// nextPosition is max existing position + 1, starting at 0.
func nextPosition(waitlist []Booking) int {
	next := 0
	for _, b := range waitlist {
		if p := b.Position(); p >= next {
			next = p + 1
		}
	}
	return next
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel cancels userID's live booking in classID as of now.
func (c *Coordinator) Cancel(ctx context.Context, userID UserID, classID ClassID, now time.Time) (CancelResult, error) {
	ctx, span := c.tracer.Start(ctx, "enrollment.Cancel", trace.WithAttributes(
		attribute.String("class.id", string(classID)),
		attribute.String("user.id", string(userID)),
	))
	defer span.End()

	var result CancelResult
	err := RetryTransaction(ctx, c.store, c.retry, func(ctx context.Context, tx *Txn) error {
		r, err := c.cancel(ctx, tx, userID, classID, now)
		result = r
		return err
	})
	if err != nil {
		endSpan(span, err)
		return CancelResult{}, err
	}
	span.SetAttributes(
		attribute.Bool("enrollment.refunded", result.Refunded),
		attribute.String("enrollment.promoted_user", string(result.PromotedUserID)),
	)

	if result.Promoted() {
		if err := c.notifier.NotifyPromotion(context.WithoutCancel(ctx), result.PromotedUserID, classID); err != nil {
			log.Printf("[Coordinator] promotion notification failed for %s/%s: %v", classID, result.PromotedUserID, err)
		}
	}
	return result, nil
}

func (c *Coordinator) cancel(ctx context.Context, tx *Txn, userID UserID, classID ClassID, now time.Time) (CancelResult, error) {
	booking, err := tx.Booking(ctx, classID, userID)
	if errors.Is(err, ErrNotFound) {
		return CancelResult{}, ErrNoBooking
	}
	if err != nil {
		return CancelResult{}, fmt.Errorf("read booking %s/%s: %w", classID, userID, err)
	}
	if !booking.Live() {
		return CancelResult{}, ErrNoBooking
	}

	class, err := tx.Class(ctx, classID)
	if errors.Is(err, ErrNotFound) {
		return CancelResult{}, ErrClassNotFound
	}
	if err != nil {
		return CancelResult{}, fmt.Errorf("read class %s: %w", classID, err)
	}

	wasActive := booking.Status == BookingActive
	cancelledAt := now
	booking.Status = BookingCancelled
	booking.WaitlistPosition = nil
	booking.CancelledAt = &cancelledAt
	tx.PutBooking(booking)

	result := CancelResult{Outcome: OutcomeCancelled}
	if !wasActive {
		tx.PutClass(class)
		return result, nil
	}

	decision := c.policy.Evaluate(class.StartTime, now)
	result.HoursBefore = decision.Hours()
	if class.Enrolled > 0 {
		class.Enrolled--
	}

	if decision.Refund {
		account, err := tx.Credit(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			return CancelResult{}, ErrUserNotFound
		}
		if err != nil {
			return CancelResult{}, fmt.Errorf("read credit %s: %w", userID, err)
		}
		account.Balance++
		tx.PutCredit(account)
		tx.AppendEntry(NewCreditEntry(userID, classID, 1, CreditRefund, "early cancellation", now))
		result.Refunded = true
	} else {
		tx.AppendEntry(NewCreditEntry(userID, classID, 0, CreditForfeit, "late cancellation", now))
	}

	if class.Status == ClassActive && class.HasSeat() {
		promoted, err := c.promote(ctx, tx, &class, now)
		if err != nil {
			return CancelResult{}, err
		}
		result.PromotedUserID = promoted
	}

	tx.PutClass(class)
	return result, nil
}

// promote moves the lowest-position waitlisted member who can pay into the
// freed seat. Members without credit are skipped and stay waitlisted.
func (c *Coordinator) promote(ctx context.Context, tx *Txn, class *ClassSession, now time.Time) (UserID, error) {
	waitlist, err := tx.Waitlist(ctx, class.ID)
	if err != nil {
		return "", fmt.Errorf("read waitlist %s: %w", class.ID, err)
	}

	for _, candidate := range waitlist {
		account, err := tx.Credit(ctx, candidate.UserID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read credit %s: %w", candidate.UserID, err)
		}
		if account.Balance < 1 {
			continue
		}

		candidate.Status = BookingActive
		candidate.WaitlistPosition = nil
		tx.PutBooking(candidate)

		account.Balance--
		tx.PutCredit(account)
		tx.AppendEntry(NewCreditEntry(candidate.UserID, class.ID, -1, CreditPromotionDebit, "promoted from waitlist", now))

		class.Enrolled++
		return candidate.UserID, nil
	}
	return "", nil
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// ActiveBookings returns the member's active bookings. No transactional
// guarantee: the result may already be stale when returned.
func (c *Coordinator) ActiveBookings(ctx context.Context, userID UserID) ([]Booking, error) {
	return c.store.BookingsByUser(ctx, userID, BookingActive)
}

// =============================================================================
// HELPERS
// =============================================================================

// NewCreditEntry builds a ledger entry with a fresh ID.
func NewCreditEntry(userID UserID, classID ClassID, delta int, kind CreditEntryKind, reason string, at time.Time) CreditEntry {
	return CreditEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		ClassID:   classID,
		Delta:     delta,
		Kind:      kind,
		Reason:    reason,
		CreatedAt: at,
	}
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	if IsDomainError(err) {
		span.SetAttributes(attribute.String("enrollment.rejected", err.Error()))
		return
	}
	span.SetStatus(codes.Error, err.Error())
}
