/*
retry.go - Compare-and-swap retry loop

PURPOSE:
  Turns the store's single-shot conditional Commit into a transaction that
  survives contention: read fresh, decide, commit; on a conflicting commit
  by another writer, start over with new reads.

FLOW PER ATTEMPT:
  1. txn := NewTxn(store)
  2. fn(ctx, txn)        - reads and buffered writes; domain errors stop here
  3. store.Commit(...)   - ErrConcurrentModification means "someone won the race"
  4. back off (jittered, exponential, capped) and go to 1

  After MaxAttempts conflicting commits the caller gets *BusyError.
  fn must be free of side effects outside the Txn: it may run several times.
*/
package enrollment

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy allows 5 attempts with a few milliseconds of backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
	}
}

// delay returns the backoff before attempt n+1 (n starts at 1).
// Full jitter: uniform in [0, min(MaxDelay, BaseDelay*2^(n-1))].
func (p RetryPolicy) delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << (n - 1)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// RetryTransaction runs fn inside an optimistic transaction against store,
// retrying on commit conflicts up to policy.MaxAttempts times.
//
// Errors returned by fn are returned unchanged without retrying.
// An attempt with no buffered writes commits nothing and succeeds.
func RetryTransaction(ctx context.Context, store Store, policy RetryPolicy, fn func(ctx context.Context, tx *Txn) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := NewTxn(store)
		if err := fn(ctx, tx); err != nil {
			return err
		}

		ws := tx.WriteSet()
		if ws.IsEmpty() {
			return nil
		}

		err := store.Commit(ctx, ws)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		last = err

		if n == attempts {
			break
		}
		if d := policy.delay(n); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return &BusyError{Attempts: attempts, Last: last}
}
