/*
store.go - Persistence interfaces for bookings, advance requests, allotments

PURPOSE:
  Defines the boundary between the scheduling logic and the database. The
  engine never issues SQL; implementations provide these queries and, most
  importantly, an atomic unit the capacity decision runs inside.

WHY WithTx MATTERS:
  Two concurrent Submit calls that both observe activeCount < cap would both
  insert as pending and overfill the date. The capacity read and the insert
  must happen inside ONE serializable transaction. The engine expresses its
  whole decision as a function passed to WithTx so any implementation with a
  serializable check-and-insert primitive can host it.

IMPLEMENTATIONS:
  - engine/store/memory.go: in-memory with snapshot rollback (tests/dev)
  - store/sqlite/sqlite.go: SQLite with BEGIN IMMEDIATE write transactions

SEE ALSO:
  - booking.go: runs its decision inside WithTx
  - allotment.go: precedence rule over the two allotment record kinds
*/
package engine

import "context"

// Store is the full persistence surface the engine reads and writes.
// All methods are safe to call inside the function passed to TxStore.WithTx;
// the view handed to that function sees uncommitted writes.
type Store interface {
	// --- Bookings ---

	// InsertBooking persists a new booking. Returns DuplicateBookingError if
	// a consuming booking for (member, date) already exists at commit time;
	// this backs the engine's uniqueness check against races.
	InsertBooking(ctx context.Context, b *Booking) error

	// GetBooking returns ErrNotFound if the booking does not exist.
	GetBooking(ctx context.Context, id BookingID) (*Booking, error)

	// UpdateBooking rewrites a booking's mutable fields (status, responded).
	UpdateBooking(ctx context.Context, b *Booking) error

	// BookingsForDate returns all bookings for (calendar, date), waitlisted
	// ones in position order.
	BookingsForDate(ctx context.Context, cal CalendarID, date Day) ([]*Booking, error)

	// BookingsForMember returns the member's bookings with dates in
	// [from, to], any status.
	BookingsForMember(ctx context.Context, member MemberID, from, to Day) ([]*Booking, error)

	// ConsumingBookingForDate returns the member's consuming booking for the
	// date, or nil when none exists.
	ConsumingBookingForDate(ctx context.Context, member MemberID, date Day) (*Booking, error)

	// MaxWaitlistPosition returns the highest waitlist position ever
	// assigned for (calendar, date), over bookings of ANY status, or 0 when
	// none was assigned. Positions must never be reused.
	MaxWaitlistPosition(ctx context.Context, cal CalendarID, date Day) (int, error)

	// --- Advance requests ---

	InsertAdvanceRequest(ctx context.Context, ar *AdvanceRequest) error
	GetAdvanceRequest(ctx context.Context, id AdvanceRequestID) (*AdvanceRequest, error)

	// DeleteAdvanceRequest removes a request outright (owner withdrawal).
	DeleteAdvanceRequest(ctx context.Context, id AdvanceRequestID) error

	// MarkAdvanceProcessed flips Processed to true.
	MarkAdvanceProcessed(ctx context.Context, id AdvanceRequestID) error

	// UnprocessedAdvanceRequest returns the member's unprocessed request for
	// (date, leave type), or nil when none exists.
	UnprocessedAdvanceRequest(ctx context.Context, member MemberID, date Day, lt LeaveType) (*AdvanceRequest, error)

	// AdvanceRequestsForMember returns the member's requests with dates in
	// [from, to], processed or not.
	AdvanceRequestsForMember(ctx context.Context, member MemberID, from, to Day) ([]*AdvanceRequest, error)

	// UnprocessedAdvanceRequestsThrough returns every unprocessed request
	// with date on or before the given day, oldest submission first.
	UnprocessedAdvanceRequestsThrough(ctx context.Context, date Day) ([]*AdvanceRequest, error)

	// --- Allotments ---

	// UpsertDateAllotment creates or replaces the date-scoped override.
	UpsertDateAllotment(ctx context.Context, cal CalendarID, date Day, max int) error

	// RemoveDateAllotment deletes the override; the date reverts to the year
	// default, or to zero if none exists. ErrNotFound when absent.
	RemoveDateAllotment(ctx context.Context, cal CalendarID, date Day) error

	// UpsertYearAllotment creates or replaces the year-scoped default.
	UpsertYearAllotment(ctx context.Context, cal CalendarID, year, max int) error

	// DateAllotment and YearAllotment return nil (no error) when absent.
	DateAllotment(ctx context.Context, cal CalendarID, date Day) (*Allotment, error)
	YearAllotment(ctx context.Context, cal CalendarID, year int) (*Allotment, error)

	// --- Members (read-only) ---

	// GetMember returns ErrNotFound if the member does not exist.
	GetMember(ctx context.Context, id MemberID) (*Member, error)
}

// TxStore wraps Store with transaction support. The function receives a view
// whose reads observe its own writes; if it returns an error everything rolls
// back. Implementations must serialize capacity-sensitive writes so that two
// concurrent transactions cannot both pass the same capacity check.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
