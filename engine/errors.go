/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All engine errors in one place. Every rejection carries enough structured
  detail (date, leave type, reason) for a presentation layer to explain why
  a date is not bookable; no operation fails with a bare boolean.

ERROR CATEGORIES:
  1. Window errors      - date outside the bookable window
  2. Validation errors  - entitlement, uniqueness, capacity
  3. State errors       - illegal status transitions, missing records
  4. Concurrency errors - the atomic insert lost a race

USAGE:
  Callers dispatch with errors.Is against the sentinels:

    if errors.Is(err, engine.ErrDuplicateBooking) { ... }

  and unwrap the structured types when they need the detail:

    var ie *engine.IneligibleDateError
    if errors.As(err, &ie) { ... ie.Reason ... }

SEE ALSO:
  - booking.go, advance.go: producers of these errors
  - api/handlers.go: maps them to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrIneligibleDate is returned when a date is inside the blackout
	// window or beyond the advance window.
	ErrIneligibleDate = errors.New("date outside bookable window")

	// ErrAdvanceWindow is returned by Submit when the date belongs to the
	// advance-request queue; callers should route to the reconciler.
	ErrAdvanceWindow = errors.New("date is advance-window only")

	// ErrInsufficientEntitlement is returned when the member has no
	// remaining balance for the leave type.
	ErrInsufficientEntitlement = errors.New("insufficient entitlement")

	// ErrDuplicateBooking is returned when the member already holds a
	// consuming booking for the date.
	ErrDuplicateBooking = errors.New("duplicate booking for date")

	// ErrDuplicateAdvanceRequest is returned when an unprocessed advance
	// request already exists for (member, date, leave type).
	ErrDuplicateAdvanceRequest = errors.New("duplicate advance request")

	// ErrZeroCapacity is returned when no allotment record gives the date
	// any capacity. Absence of a record is always zero, never a default.
	ErrZeroCapacity = errors.New("zero capacity for date")

	// ErrNotFound is returned when a booking, advance request, member, or
	// allotment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for a status change outside the
	// transition table, including cancelling an already-cancelled booking.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConcurrentCapacityConflict is returned when the atomic insert lost
	// a race and the date filled between evaluation and commit. The booking
	// engine retries once, falling back to the waitlist; it is surfaced only
	// if the retry also fails.
	ErrConcurrentCapacityConflict = errors.New("concurrent capacity conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the rejection detail
// =============================================================================

// IneligibleDateError reports a date outside the bookable window.
type IneligibleDateError struct {
	Date      Day
	LeaveType LeaveType
	Reason    WindowReason
}

func (e *IneligibleDateError) Error() string {
	return fmt.Sprintf("date %s not bookable: %s", e.Date, e.Reason)
}

func (e *IneligibleDateError) Unwrap() error { return ErrIneligibleDate }

// AdvanceWindowError reports a Submit against an advance-only date.
type AdvanceWindowError struct {
	Date      Day
	LeaveType LeaveType
}

func (e *AdvanceWindowError) Error() string {
	return fmt.Sprintf("date %s is advance-window only; submit an advance request", e.Date)
}

func (e *AdvanceWindowError) Unwrap() error { return ErrAdvanceWindow }

// InsufficientEntitlementError reports an exhausted balance.
type InsufficientEntitlementError struct {
	MemberID  MemberID
	LeaveType LeaveType
	Year      int
	Available decimal.Decimal
}

func (e *InsufficientEntitlementError) Error() string {
	return fmt.Sprintf("member %s has no %s balance for %d (available: %s)",
		e.MemberID, e.LeaveType, e.Year, e.Available)
}

func (e *InsufficientEntitlementError) Unwrap() error { return ErrInsufficientEntitlement }

// DuplicateBookingError reports a violation of the one-consuming-booking-
// per-day invariant.
type DuplicateBookingError struct {
	MemberID   MemberID
	Date       Day
	ExistingID BookingID
}

func (e *DuplicateBookingError) Error() string {
	return fmt.Sprintf("member %s already holds booking %s for %s",
		e.MemberID, e.ExistingID, e.Date)
}

func (e *DuplicateBookingError) Unwrap() error { return ErrDuplicateBooking }

// ZeroCapacityError reports a date with no allotment.
type ZeroCapacityError struct {
	CalendarID CalendarID
	Date       Day
}

func (e *ZeroCapacityError) Error() string {
	return fmt.Sprintf("calendar %s has no capacity on %s", e.CalendarID, e.Date)
}

func (e *ZeroCapacityError) Unwrap() error { return ErrZeroCapacity }

// InvalidTransitionError reports an illegal status change.
type InvalidTransitionError struct {
	BookingID BookingID
	From      Status
	To        Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("booking %s: cannot transition %s -> %s", e.BookingID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentCapacityConflict)
}

// IsClientError returns true if the error is due to invalid client input
// rather than an engine or storage fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIneligibleDate) ||
		errors.Is(err, ErrAdvanceWindow) ||
		errors.Is(err, ErrInsufficientEntitlement) ||
		errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrDuplicateAdvanceRequest) ||
		errors.Is(err, ErrZeroCapacity) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
