/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external contract, allowing field
  renaming and API evolution without touching the engine.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-scheduler/engine"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitBookingRequest asks for a single leave day.
type SubmitBookingRequest struct {
	Date      string `json:"date"`      // YYYY-MM-DD
	LeaveType string `json:"leaveType"` // PLD or SDV
}

// SubmitAdvanceRequest queues a request for an advance-window date.
type SubmitAdvanceRequest struct {
	Date      string `json:"date"`
	LeaveType string `json:"leaveType"`
}

// AllotmentRequest sets a capacity cap for a date or a year.
type AllotmentRequest struct {
	MaxAllotment int `json:"maxAllotment"`
}

// PaidInLieuRequest records a day paid out instead of taken.
type PaidInLieuRequest struct {
	Date      string `json:"date"`
	LeaveType string `json:"leaveType"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// BookingDTO represents a booking in API responses.
type BookingDTO struct {
	ID               string  `json:"id"`
	MemberID         string  `json:"memberId"`
	CalendarID       string  `json:"calendarId"`
	Date             string  `json:"date"`
	LeaveType        string  `json:"leaveType"`
	Status           string  `json:"status"`
	WaitlistPosition *int    `json:"waitlistPosition,omitempty"`
	PaidInLieu       bool    `json:"paidInLieu,omitempty"`
	RequestedAt      string  `json:"requestedAt"`
	RespondedAt      *string `json:"respondedAt,omitempty"`
}

// AdvanceRequestDTO represents a queued advance request.
type AdvanceRequestDTO struct {
	ID          string `json:"id"`
	MemberID    string `json:"memberId"`
	CalendarID  string `json:"calendarId"`
	Date        string `json:"date"`
	LeaveType   string `json:"leaveType"`
	Processed   bool   `json:"processed"`
	RequestedAt string `json:"requestedAt"`
}

// SubmitOutcomeDTO is the response to a booking submission. Exactly one of
// Booking and AdvanceRequest is set: dates inside the normal window produce
// a booking, advance-window dates are routed to the advance queue.
type SubmitOutcomeDTO struct {
	Kind           string             `json:"kind"` // "booking" or "advance_request"
	Booking        *BookingDTO        `json:"booking,omitempty"`
	AdvanceRequest *AdvanceRequestDTO `json:"advanceRequest,omitempty"`
}

// DayAvailabilityDTO is one calendar day's classification.
type DayAvailabilityDTO struct {
	Date         string `json:"date"`
	Availability string `json:"availability"`
	Selectable   bool   `json:"selectable"`
}

// BalanceDTO is a member's entitlement position for one leave type and year.
type BalanceDTO struct {
	MemberID  string `json:"memberId"`
	LeaveType string `json:"leaveType"`
	Year      int    `json:"year"`
	Total     string `json:"total"`
	Used      string `json:"used"`
	Available string `json:"available"`
}

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID           string            `json:"id"`
	CalendarID   string            `json:"calendarId"`
	Name         string            `json:"name"`
	Entitlements map[string]string `json:"entitlements"`
	Rollover     string            `json:"rollover"`
}

// CancellationDTO is the authoritative state after a cancellation step.
type CancellationDTO struct {
	Booking      BookingDTO `json:"booking"`
	Availability string     `json:"availability"`
}

// ErrorResponse is the shape of every error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toBookingDTO(b *engine.Booking) BookingDTO {
	dto := BookingDTO{
		ID:               string(b.ID),
		MemberID:         string(b.MemberID),
		CalendarID:       string(b.CalendarID),
		Date:             b.Date.String(),
		LeaveType:        string(b.LeaveType),
		Status:           string(b.Status),
		WaitlistPosition: b.WaitlistPosition,
		PaidInLieu:       b.PaidInLieu,
		RequestedAt:      b.RequestedAt.Format(time.RFC3339),
	}
	if b.RespondedAt != nil {
		s := b.RespondedAt.Format(time.RFC3339)
		dto.RespondedAt = &s
	}
	return dto
}

func toBookingDTOs(bookings []*engine.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		dtos[i] = toBookingDTO(b)
	}
	return dtos
}

func toAdvanceRequestDTO(ar *engine.AdvanceRequest) AdvanceRequestDTO {
	return AdvanceRequestDTO{
		ID:          string(ar.ID),
		MemberID:    string(ar.MemberID),
		CalendarID:  string(ar.CalendarID),
		Date:        ar.Date.String(),
		LeaveType:   string(ar.LeaveType),
		Processed:   ar.Processed,
		RequestedAt: ar.RequestedAt.Format(time.RFC3339),
	}
}

func toBalanceDTO(b engine.Balance) BalanceDTO {
	return BalanceDTO{
		MemberID:  string(b.MemberID),
		LeaveType: string(b.LeaveType),
		Year:      b.Year,
		Total:     b.Total.String(),
		Used:      b.Used.String(),
		Available: b.Available.String(),
	}
}

func toMemberDTO(m *engine.Member) MemberDTO {
	ents := make(map[string]string, len(m.Entitlements))
	for lt, amount := range m.Entitlements {
		ents[string(lt)] = amount.String()
	}
	return MemberDTO{
		ID:           string(m.ID),
		CalendarID:   string(m.CalendarID),
		Name:         m.Name,
		Entitlements: ents,
		Rollover:     m.Rollover.String(),
	}
}
