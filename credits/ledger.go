/*
ledger.go - Member credit accounts

PURPOSE:
  Opens accounts and tops them up. Booking debits and cancellation refunds
  are written by the enrollment.Coordinator in the same commit as the
  booking; this package covers everything else that moves a balance.

INVARIANT:
  Balance == sum of the account's entry deltas.

  Every write appends a CreditEntry in the same commit as the balance
  change, so the history always explains the balance. Reconcile checks it.

EXAMPLE:
  ledger := credits.NewLedger(store)
  ledger.OpenAccount(ctx, "user-1", 10)          // balance 10, one grant entry
  ledger.Grant(ctx, "user-1", 5, "monthly pack") // balance 15

SEE ALSO:
  - enrollment/coordinator.go: debit / refund / forfeit entries
*/
package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/class-booking/enrollment"
)

var (
	// ErrAccountExists is returned when opening an account twice.
	ErrAccountExists = errors.New("credit account already exists")

	// ErrInvalidAmount is returned for non-positive grants or negative openings.
	ErrInvalidAmount = errors.New("invalid credit amount")
)

// ReconcileError reports a balance that its history does not explain.
type ReconcileError struct {
	UserID  enrollment.UserID
	Balance int
	Sum     int
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("credit account %s: balance %d but entries sum to %d", e.UserID, e.Balance, e.Sum)
}

// Ledger manages credit accounts through the same optimistic transactions
// the Coordinator uses, so grants never lose a concurrent debit.
type Ledger struct {
	store enrollment.Store
	retry enrollment.RetryPolicy
	now   func() time.Time
}

func NewLedger(store enrollment.Store) *Ledger {
	return &Ledger{
		store: store,
		retry: enrollment.DefaultRetryPolicy(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// OpenAccount creates an account with an opening balance.
func (l *Ledger) OpenAccount(ctx context.Context, userID enrollment.UserID, initial int) (enrollment.CreditAccount, error) {
	if initial < 0 {
		return enrollment.CreditAccount{}, fmt.Errorf("%w: opening balance %d", ErrInvalidAmount, initial)
	}

	var account enrollment.CreditAccount
	err := enrollment.RetryTransaction(ctx, l.store, l.retry, func(ctx context.Context, tx *enrollment.Txn) error {
		_, err := tx.Credit(ctx, userID)
		if err == nil {
			return ErrAccountExists
		}
		if !errors.Is(err, enrollment.ErrNotFound) {
			return err
		}
		account = enrollment.CreditAccount{UserID: userID, Balance: initial}
		tx.PutCredit(account)
		tx.AppendEntry(enrollment.NewCreditEntry(userID, "", initial, enrollment.CreditGrant, "opening balance", l.now()))
		return nil
	})
	if err != nil {
		return enrollment.CreditAccount{}, err
	}
	return l.store.GetCredit(ctx, userID)
}

// Grant adds amount credits to an existing account.
func (l *Ledger) Grant(ctx context.Context, userID enrollment.UserID, amount int, reason string) (enrollment.CreditAccount, error) {
	if amount <= 0 {
		return enrollment.CreditAccount{}, fmt.Errorf("%w: grant %d", ErrInvalidAmount, amount)
	}
	if reason == "" {
		reason = "grant"
	}

	err := enrollment.RetryTransaction(ctx, l.store, l.retry, func(ctx context.Context, tx *enrollment.Txn) error {
		account, err := tx.Credit(ctx, userID)
		if errors.Is(err, enrollment.ErrNotFound) {
			return enrollment.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		account.Balance += amount
		tx.PutCredit(account)
		tx.AppendEntry(enrollment.NewCreditEntry(userID, "", amount, enrollment.CreditGrant, reason, l.now()))
		return nil
	})
	if err != nil {
		return enrollment.CreditAccount{}, err
	}
	return l.store.GetCredit(ctx, userID)
}

// Balance returns the current balance or enrollment.ErrUserNotFound.
func (l *Ledger) Balance(ctx context.Context, userID enrollment.UserID) (int, error) {
	account, err := l.store.GetCredit(ctx, userID)
	if errors.Is(err, enrollment.ErrNotFound) {
		return 0, enrollment.ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// History returns the account's entries, oldest first.
func (l *Ledger) History(ctx context.Context, userID enrollment.UserID) ([]enrollment.CreditEntry, error) {
	if _, err := l.Balance(ctx, userID); err != nil {
		return nil, err
	}
	return l.store.CreditEntries(ctx, userID)
}

// Reconcile verifies that the balance equals the sum of the history.
func (l *Ledger) Reconcile(ctx context.Context, userID enrollment.UserID) error {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}
	entries, err := l.store.CreditEntries(ctx, userID)
	if err != nil {
		return err
	}
	sum := 0
	for _, e := range entries {
		sum += e.Delta
	}
	if sum != balance {
		return &ReconcileError{UserID: userID, Balance: balance, Sum: sum}
	}
	return nil
}
