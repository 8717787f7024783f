/*
handlers.go - HTTP API handlers for the class booking engine

PURPOSE:
  Exposes the enrollment engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the Coordinator, Catalog and credit
  Ledger.

ENDPOINTS:
  Classes:
    POST   /api/classes                          Create class
    GET    /api/classes/{id}                     Get class
    DELETE /api/classes/{id}                     Cancel class
    GET    /api/classes/{id}/roster              Active members + waitlist

  Enrollment:
    POST   /api/classes/{id}/enrollments         Enroll {user_id}
    DELETE /api/classes/{id}/enrollments/{userID} Cancel booking

  Members:
    POST   /api/users                            Open credit account
    GET    /api/users/{id}/bookings              Active bookings
    GET    /api/users/{id}/credits               Balance + history
    POST   /api/users/{id}/credits               Grant credits

  Admin (only with an admin store):
    GET    /api/admin/audit                      Last consistency report
    POST   /api/admin/audit                      Run the audit now
    GET    /api/scenarios                        Demo scenarios

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Class, member or booking not found
  - 409: Already booked, insufficient credit, duplicate
  - 503: Busy (contention); Retry-After header set, safe to retry
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The user ID is taken from the request; auth is an
  external collaborator in front of this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/class-booking/catalog"
	"github.com/warp/class-booking/credits"
	"github.com/warp/class-booking/enrollment"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Coordinator *enrollment.Coordinator
	Catalog     *catalog.Catalog
	Credits     *credits.Ledger

	// Admin enables the scenario and audit routes when set.
	Admin enrollment.Admin
	Audit *AuditScheduler

	// Now is the clock used as the cancellation time.
	Now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(coordinator *enrollment.Coordinator, cat *catalog.Catalog, ledger *credits.Ledger) *Handler {
	return &Handler{
		Coordinator: coordinator,
		Catalog:     cat,
		Credits:     ledger,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// CLASS HANDLERS
// =============================================================================

// CreateClass creates a class session.
// POST /api/classes
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_time format (use RFC3339)", err)
		return
	}

	class, err := h.Catalog.CreateClass(r.Context(), catalog.ClassSpec{
		ID:        enrollment.ClassID(req.ID),
		Capacity:  req.Capacity,
		StartTime: start,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toClassDTO(class))
}

// GetClass returns a class session.
// GET /api/classes/{id}
func (h *Handler) GetClass(w http.ResponseWriter, r *http.Request) {
	class, err := h.Catalog.GetClass(r.Context(), classIDParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClassDTO(class))
}

// CancelClass marks a class cancelled.
// DELETE /api/classes/{id}
func (h *Handler) CancelClass(w http.ResponseWriter, r *http.Request) {
	id := classIDParam(r)
	if err := h.Catalog.CancelClass(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	class, err := h.Catalog.GetClass(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClassDTO(class))
}

// GetRoster returns active members and the waitlist.
// GET /api/classes/{id}/roster
func (h *Handler) GetRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := h.Catalog.Roster(r.Context(), classIDParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRosterDTO(roster))
}

// =============================================================================
// ENROLLMENT HANDLERS
// =============================================================================

// Enroll books a seat or joins the waitlist.
// POST /api/classes/{id}/enrollments
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	result, err := h.Coordinator.Enroll(r.Context(), enrollment.UserID(req.UserID), classIDParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == enrollment.OutcomeWaitlisted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, EnrollResponse{
		Outcome: string(result.Outcome),
		Booking: toBookingDTO(result.Booking),
	})
}

// CancelEnrollment cancels a member's booking as of now.
// DELETE /api/classes/{id}/enrollments/{userID}
func (h *Handler) CancelEnrollment(w http.ResponseWriter, r *http.Request) {
	userID := enrollment.UserID(chi.URLParam(r, "userID"))

	result, err := h.Coordinator.Cancel(r.Context(), userID, classIDParam(r), h.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CancelResponse{
		Outcome:        string(result.Outcome),
		Refunded:       result.Refunded,
		HoursBefore:    result.HoursBefore,
		PromotedUserID: string(result.PromotedUserID),
	})
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// OpenAccount opens a member credit account.
// POST /api/users
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	account, err := h.Credits.OpenAccount(r.Context(), enrollment.UserID(req.UserID), req.Credits)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreditAccountDTO{UserID: string(account.UserID), Balance: account.Balance})
}

// GetBookings returns the member's active bookings.
// GET /api/users/{id}/bookings
func (h *Handler) GetBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Coordinator.ActiveBookings(r.Context(), userIDParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bookings", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

// GetCredits returns balance and history.
// GET /api/users/{id}/credits
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	userID := userIDParam(r)

	balance, err := h.Credits.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := h.Credits.History(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := CreditHistoryDTO{UserID: string(userID), Balance: balance, Entries: make([]CreditEntryDTO, len(entries))}
	for i, e := range entries {
		dto.Entries[i] = toCreditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dto)
}

// GrantCredits tops up a member account.
// POST /api/users/{id}/credits
func (h *Handler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	var req GrantCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := h.Credits.Grant(r.Context(), userIDParam(r), req.Amount, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditAccountDTO{UserID: string(account.UserID), Balance: account.Balance})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetAudit returns the last audit report, running one if none exists.
// GET /api/admin/audit
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	report, ok := h.Audit.Last()
	if !ok {
		report = h.Audit.RunNow(r.Context())
	}
	writeAudit(w, report)
}

// RunAudit runs the consistency audit synchronously.
// POST /api/admin/audit
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	writeAudit(w, h.Audit.RunNow(r.Context()))
}

func writeAudit(w http.ResponseWriter, report AuditReport) {
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// =============================================================================
// HELPERS
// =============================================================================

func classIDParam(r *http.Request) enrollment.ClassID {
	return enrollment.ClassID(chi.URLParam(r, "id"))
}

func userIDParam(r *http.Request) enrollment.UserID {
	return enrollment.UserID(chi.URLParam(r, "id"))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to status codes and stable codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, enrollment.ErrClassNotFound):
		status, code = http.StatusNotFound, "class_not_found"
	case errors.Is(err, enrollment.ErrUserNotFound):
		status, code = http.StatusNotFound, "user_not_found"
	case errors.Is(err, enrollment.ErrNoBooking):
		status, code = http.StatusNotFound, "no_booking"
	case errors.Is(err, enrollment.ErrAlreadyBooked):
		status, code = http.StatusConflict, "already_booked"
	case errors.Is(err, enrollment.ErrInsufficientCredit):
		status, code = http.StatusConflict, "insufficient_credit"
	case errors.Is(err, catalog.ErrClassExists):
		status, code = http.StatusConflict, "class_exists"
	case errors.Is(err, credits.ErrAccountExists):
		status, code = http.StatusConflict, "account_exists"
	case errors.Is(err, enrollment.ErrInvalidClass), errors.Is(err, credits.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, enrollment.ErrBusy):
		w.Header().Set("Retry-After", "1")
		status, code = http.StatusServiceUnavailable, "busy"
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}
