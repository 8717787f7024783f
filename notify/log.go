package notify

import (
	"context"
	"log"

	"github.com/warp/class-booking/enrollment"
)

// LogNotifier writes events to the standard logger.
type LogNotifier struct{}

func NewLog() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) NotifyPromotion(_ context.Context, userID enrollment.UserID, classID enrollment.ClassID) error {
	log.Printf("[Notify] %s :: user %s promoted into class %s", RKBookingPromoted, userID, classID)
	return nil
}

func (LogNotifier) NotifyBooked(_ context.Context, userID enrollment.UserID, classID enrollment.ClassID) error {
	log.Printf("[Notify] %s :: user %s booked class %s", RKBookingConfirmed, userID, classID)
	return nil
}
