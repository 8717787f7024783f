package enrollment

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CANCELLATION POLICY - Early cancellations are refunded, late ones forfeit
// =============================================================================

// DefaultMinNotice is how long before class start a cancellation still
// earns its credit back.
const DefaultMinNotice = time.Hour

var hourNanos = decimal.NewFromInt(int64(time.Hour))

// CancellationPolicy decides whether cancelling an active booking refunds
// the credit. It is a pure function of its inputs.
type CancellationPolicy struct {
	MinNotice time.Duration
}

// DefaultCancellationPolicy refunds cancellations made at least one hour
// before the class starts.
func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{MinNotice: DefaultMinNotice}
}

// CancellationDecision is the policy outcome.
// HoursBefore is negative when cancelling after the class started.
type CancellationDecision struct {
	Refund      bool
	HoursBefore decimal.Decimal
}

// Hours returns HoursBefore as a float for display and transport.
func (d CancellationDecision) Hours() float64 {
	return d.HoursBefore.InexactFloat64()
}

// Evaluate computes hoursBefore = (start - cancelAt) / 1h and refunds
// iff hoursBefore >= MinNotice in hours. The comparison is done in decimal
// so that exactly 60 minutes is exactly 1.
func (p CancellationPolicy) Evaluate(classStart, cancelAt time.Time) CancellationDecision {
	hours := decimal.NewFromInt(int64(classStart.Sub(cancelAt))).Div(hourNanos)
	threshold := decimal.NewFromInt(int64(p.MinNotice)).Div(hourNanos)
	return CancellationDecision{
		Refund:      hours.GreaterThanOrEqual(threshold),
		HoursBefore: hours,
	}
}

// EvaluateCancellation applies the default one-hour policy.
func EvaluateCancellation(classStart, cancelAt time.Time) CancellationDecision {
	return DefaultCancellationPolicy().Evaluate(classStart, cancelAt)
}
