/*
Package notify delivers booking events to the outside world.

PURPOSE:
  Adapters for enrollment.Notifier. The engine calls them after a commit;
  delivery to members (push, email) is done by whoever consumes the events.

ADAPTERS:
  LogNotifier:   writes events to the standard logger (dev default)
  AMQPNotifier:  publishes JSON to a RabbitMQ topic exchange
  RedisNotifier: publishes JSON to a Redis pub/sub channel
  Async:         wraps any Notifier with a bounded queue and a worker so
                 callers never wait on the broker

ROUTING KEYS:
  booking.confirmed  - Enroll produced an active booking
  booking.promoted   - a waitlisted member got a freed seat
*/
package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/warp/class-booking/enrollment"
)

const (
	RKBookingConfirmed = "booking.confirmed"
	RKBookingPromoted  = "booking.promoted"
)

// Event is the JSON payload published for every notification.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ClassID    string    `json:"class_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newEvent(kind string, userID enrollment.UserID, classID enrollment.ClassID) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       kind,
		UserID:     string(userID),
		ClassID:    string(classID),
		OccurredAt: time.Now().UTC(),
	}
}
