/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  enrollment model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Operation results

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/class-booking/catalog"
	"github.com/warp/class-booking/enrollment"
)

// =============================================================================
// CLASSES
// =============================================================================

type CreateClassRequest struct {
	ID        string `json:"id,omitempty"`
	Capacity  int    `json:"capacity"`
	StartTime string `json:"start_time"` // RFC3339
}

type ClassDTO struct {
	ID        string `json:"id"`
	Capacity  int    `json:"capacity"`
	Enrolled  int    `json:"enrolled"`
	SeatsLeft int    `json:"seats_left"`
	StartTime string `json:"start_time"`
	Status    string `json:"status"`
}

type RosterDTO struct {
	Class    ClassDTO     `json:"class"`
	Active   []BookingDTO `json:"active"`
	Waitlist []BookingDTO `json:"waitlist"`
}

// =============================================================================
// BOOKINGS
// =============================================================================

type EnrollRequest struct {
	UserID string `json:"user_id"`
}

type BookingDTO struct {
	ClassID          string  `json:"class_id"`
	UserID           string  `json:"user_id"`
	Status           string  `json:"status"`
	WaitlistPosition *int    `json:"waitlist_position,omitempty"`
	CreatedAt        string  `json:"created_at"`
	CancelledAt      *string `json:"cancelled_at,omitempty"`
}

type EnrollResponse struct {
	Outcome string     `json:"outcome"`
	Booking BookingDTO `json:"booking"`
}

type CancelResponse struct {
	Outcome        string  `json:"outcome"`
	Refunded       bool    `json:"refunded"`
	HoursBefore    float64 `json:"hours_before"`
	PromotedUserID string  `json:"promoted_user_id,omitempty"`
}

// =============================================================================
// CREDITS
// =============================================================================

type OpenAccountRequest struct {
	UserID  string `json:"user_id"`
	Credits int    `json:"credits"`
}

type GrantCreditsRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type CreditAccountDTO struct {
	UserID  string `json:"user_id"`
	Balance int    `json:"balance"`
}

type CreditEntryDTO struct {
	ID        string `json:"id"`
	ClassID   string `json:"class_id,omitempty"`
	Delta     int    `json:"delta"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

type CreditHistoryDTO struct {
	UserID  string           `json:"user_id"`
	Balance int              `json:"balance"`
	Entries []CreditEntryDTO `json:"entries"`
}

// =============================================================================
// ADMIN
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toClassDTO(c enrollment.ClassSession) ClassDTO {
	return ClassDTO{
		ID:        string(c.ID),
		Capacity:  c.Capacity,
		Enrolled:  c.Enrolled,
		SeatsLeft: c.SeatsLeft(),
		StartTime: c.StartTime.Format(time.RFC3339),
		Status:    string(c.Status),
	}
}

func toBookingDTO(b enrollment.Booking) BookingDTO {
	dto := BookingDTO{
		ClassID:          string(b.ClassID),
		UserID:           string(b.UserID),
		Status:           string(b.Status),
		WaitlistPosition: b.WaitlistPosition,
		CreatedAt:        b.CreatedAt.Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		s := b.CancelledAt.Format(time.RFC3339)
		dto.CancelledAt = &s
	}
	return dto
}

func toBookingDTOs(bs []enrollment.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bs))
	for i, b := range bs {
		dtos[i] = toBookingDTO(b)
	}
	return dtos
}

func toRosterDTO(r catalog.Roster) RosterDTO {
	return RosterDTO{
		Class:    toClassDTO(r.Class),
		Active:   toBookingDTOs(r.Active),
		Waitlist: toBookingDTOs(r.Waitlist),
	}
}

func toCreditEntryDTO(e enrollment.CreditEntry) CreditEntryDTO {
	return CreditEntryDTO{
		ID:        e.ID,
		ClassID:   string(e.ClassID),
		Delta:     e.Delta,
		Kind:      string(e.Kind),
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}
