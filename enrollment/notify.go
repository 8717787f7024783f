package enrollment

import "context"

// Notifier is told about bookings after they are durably committed.
//
// Calls are best effort: the Coordinator logs returned errors and never
// undoes a committed booking because a notification failed.
type Notifier interface {
	// NotifyPromotion is called when a waitlisted member got a seat.
	NotifyPromotion(ctx context.Context, userID UserID, classID ClassID) error

	// NotifyBooked is called when an Enroll call produced an active booking.
	NotifyBooked(ctx context.Context, userID UserID, classID ClassID) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) NotifyPromotion(context.Context, UserID, ClassID) error { return nil }
func (NopNotifier) NotifyBooked(context.Context, UserID, ClassID) error    { return nil }
