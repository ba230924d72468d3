/*
Package engine implements the leave-day allotment and waitlist scheduler.

PURPOSE:
  Members of an organization request single-day leave (PLD or SDV) against a
  shared per-day capacity pool. For any date the engine decides whether a
  request is allowed, whether it is immediately active or waitlisted, how
  cancellations free capacity, and which dates belong to the six-month
  advance-request queue.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType: the two single-day leave categories, PLD and SDV
  - Status: the booking state machine with its central transition table
  - Booking: a single-day leave request against a calendar's capacity pool
  - AdvanceRequest: a queued request for the date six months out
  - Allotment: per-date or per-year capacity record
  - Member: read-only view of a member's identity and entitlements

DESIGN PRINCIPLES:
  1. One transition table: status changes are validated centrally, never
     re-derived at call sites.
  2. Typed identifiers: member, calendar, and booking IDs cannot be mixed.
  3. The engine never mutates Member; entitlement totals are owned by an
     external system and only read here.

SEE ALSO:
  - window.go: date-window eligibility
  - booking.go: creation and status transitions
  - store.go: persistence interfaces
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type CalendarID string
type BookingID string
type AdvanceRequestID string

// =============================================================================
// LEAVE TYPE - The two single-day leave categories
// =============================================================================

type LeaveType string

const (
	LeavePLD LeaveType = "PLD"
	LeaveSDV LeaveType = "SDV"
)

// Valid reports whether lt is a known leave type.
func (lt LeaveType) Valid() bool {
	return lt == LeavePLD || lt == LeaveSDV
}

// =============================================================================
// BOOKING STATUS - Closed state machine with a central transition table
// =============================================================================

type Status string

const (
	StatusPending             Status = "pending"
	StatusApproved            Status = "approved"
	StatusDenied              Status = "denied"
	StatusWaitlisted          Status = "waitlisted"
	StatusCancellationPending Status = "cancellation_pending"
	StatusCancelled           Status = "cancelled"
)

// transitions is the only definition of legal status changes.
//
//	pending              -> approved | denied | cancelled
//	waitlisted           -> approved | cancelled
//	approved             -> cancellation_pending
//	cancellation_pending -> cancelled | approved (cancellation denied)
//	denied, cancelled    -> (terminal)
var transitions = map[Status][]Status{
	StatusPending:             {StatusApproved, StatusDenied, StatusCancelled},
	StatusWaitlisted:          {StatusApproved, StatusCancelled},
	StatusApproved:            {StatusCancellationPending},
	StatusCancellationPending: {StatusCancelled, StatusApproved},
	StatusDenied:              {},
	StatusCancelled:           {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Consuming reports whether a booking in this status holds a seat of the
// member's entitlement. Waitlisted bookings consume entitlement (the day is
// spoken for) even though they do not consume date capacity.
func (s Status) Consuming() bool {
	switch s {
	case StatusPending, StatusApproved, StatusWaitlisted, StatusCancellationPending:
		return true
	}
	return false
}

// =============================================================================
// BOOKING - A single-day leave request
// =============================================================================

type Booking struct {
	ID         BookingID
	MemberID   MemberID
	CalendarID CalendarID
	Date       Day
	LeaveType  LeaveType
	Status     Status

	// WaitlistPosition is set only for bookings created as waitlisted.
	// Positions are strictly increasing per (calendar, date) and are never
	// renumbered or reused; treat them as original queue order, not a dense
	// rank.
	WaitlistPosition *int

	// PaidInLieu marks a day paid out instead of taken. Such bookings do not
	// consume entitlement and do not participate in the one-booking-per-day
	// invariant.
	PaidInLieu bool

	RequestedAt time.Time
	RespondedAt *time.Time
}

// ConsumesEntitlement reports whether this booking counts against the
// member's yearly balance.
func (b *Booking) ConsumesEntitlement() bool {
	return b.Status.Consuming() && !b.PaidInLieu
}

// =============================================================================
// ADVANCE REQUEST - Queued request for the date six months out
// =============================================================================

// AdvanceRequest is a request for the single date exactly six calendar
// months from its submission day. It sits in a queue disjoint from the
// booking pool until an external seniority-ordered process converts or
// discards it, flipping Processed. Unprocessed requests count against
// entitlement.
type AdvanceRequest struct {
	ID          AdvanceRequestID
	MemberID    MemberID
	CalendarID  CalendarID
	Date        Day
	LeaveType   LeaveType
	Processed   bool
	RequestedAt time.Time
}

// =============================================================================
// ALLOTMENT - Per-date or per-year capacity record
// =============================================================================

// Allotment caps concurrent bookings for a calendar. Exactly one of Date and
// Year is set: a year record is the default for every date in that year, a
// date record overrides the default for one date. A date with neither record
// has zero capacity and is unbookable.
type Allotment struct {
	ID           string
	CalendarID   CalendarID
	Date         *Day
	Year         *int
	MaxAllotment int
}

// =============================================================================
// MEMBER - Read-only view; owned by an external system
// =============================================================================

// Member carries the fields the scheduler reads. Entitlement totals are
// computed yearly by the owning system (e.g. from tenure); the scheduler
// never writes them.
type Member struct {
	ID         MemberID
	CalendarID CalendarID
	Name       string

	// Entitlements maps leave type to the yearly total in days.
	Entitlements map[LeaveType]decimal.Decimal

	// Rollover is unused balance carried in from the prior year. It extends
	// the PLD entitlement only.
	Rollover decimal.Decimal
}

// Entitlement returns the member's total for a leave type, including any
// rolled-over balance.
func (m *Member) Entitlement(lt LeaveType) decimal.Decimal {
	total := m.Entitlements[lt]
	if lt == LeavePLD {
		total = total.Add(m.Rollover)
	}
	return total
}
