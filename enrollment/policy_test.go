package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateCancellation_Boundary(t *testing.T) {
	start := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		cancelAt  time.Time
		refund    bool
		hoursWant float64
	}{
		{"exactly one hour before", start.Add(-60 * time.Minute), true, 1},
		{"59 minutes before", start.Add(-59 * time.Minute), false, 59.0 / 60.0},
		{"two days before", start.Add(-48 * time.Hour), true, 48},
		{"at start", start, false, 0},
		{"after start", start.Add(30 * time.Minute), false, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := EvaluateCancellation(start, tt.cancelAt)
			assert.Equal(t, tt.refund, d.Refund)
			assert.InDelta(t, tt.hoursWant, d.Hours(), 1e-9)
		})
	}
}

func TestEvaluateCancellation_OneNanosecondShort(t *testing.T) {
	// GIVEN: A cancellation 1ns inside the notice window
	start := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	cancelAt := start.Add(-time.Hour + time.Nanosecond)

	// WHEN/THEN: Decimal arithmetic does not round it up to one hour
	assert.False(t, EvaluateCancellation(start, cancelAt).Refund)
}

func TestCancellationPolicy_CustomNotice(t *testing.T) {
	start := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	p := CancellationPolicy{MinNotice: 24 * time.Hour}

	assert.False(t, p.Evaluate(start, start.Add(-23*time.Hour)).Refund)
	assert.True(t, p.Evaluate(start, start.Add(-24*time.Hour)).Refund)
}

func TestRetryPolicy_DelayBounded(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	for n := 1; n <= 10; n++ {
		d := p.delay(n)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 4*time.Millisecond)
	}
	assert.Zero(t, RetryPolicy{}.delay(3))
}

func TestNextPosition(t *testing.T) {
	pos := func(n int) *int { return &n }

	assert.Equal(t, 0, nextPosition(nil))
	assert.Equal(t, 3, nextPosition([]Booking{
		{WaitlistPosition: pos(0)},
		{WaitlistPosition: pos(2)},
	}))
}
