/*
booking.go - Booking engine

PURPOSE:
  Validates and creates leave bookings, and applies the administrative
  status transitions (approve, deny) through the central transition table.

SUBMIT FLOW:
  1. Window check (one today snapshot for the whole call). Advance-window
     dates are rejected here; they belong to the advance reconciler.
  2. Inside ONE storage transaction:
     - entitlement balance must be positive
     - no existing consuming booking for (member, date)
     - capacity must be nonzero
     - saturated (active pending+approved >= cap) -> waitlisted with the
       next position; otherwise -> pending
  3. If the insert lost a capacity race (ErrConcurrentCapacityConflict),
     retry ONCE treating the date as full, i.e. join the waitlist instead
     of surfacing the race.

  The initial status is decided at creation time and never re-decided: a
  booking created as waitlisted stays waitlisted until the administrative
  collaborator approves it, even if capacity frees up in the meantime.

SIDE EFFECTS:
  None beyond the created record. Notification dispatch belongs to the
  caller, after the transaction commits.

SEE ALSO:
  - cancel.go: cancellation paths and promotion semantics
  - advance.go: intake for advance-window dates
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Engine creates bookings and drives their status machine.
type Engine struct {
	Store      TxStore
	Ledger     *CapacityLedger
	Accountant *Accountant
	Classifier *Classifier

	// Now is the clock; overridable in tests. Each logical operation reads
	// it exactly once.
	Now func() time.Time
}

func NewEngine(store TxStore) *Engine {
	return &Engine{
		Store:      store,
		Ledger:     NewCapacityLedger(store),
		Accountant: NewAccountant(store),
		Classifier: NewClassifier(store),
		Now:        time.Now,
	}
}

// Submit validates a leave request and creates it as pending or waitlisted.
func (e *Engine) Submit(ctx context.Context, memberID MemberID, date Day, lt LeaveType) (*Booking, error) {
	if !lt.Valid() {
		return nil, fmt.Errorf("unknown leave type %q", lt)
	}

	now := e.Now()
	today := DayOf(now)

	w := EvaluateWindow(today, date)
	if !w.Eligible {
		return nil, &IneligibleDateError{Date: date, LeaveType: lt, Reason: w.Reason}
	}
	if w.Advance {
		return nil, &AdvanceWindowError{Date: date, LeaveType: lt}
	}

	member, err := e.Store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	var booking *Booking
	err = e.Store.WithTx(ctx, func(s Store) error {
		booking, err = e.submitTx(ctx, s, member, date, lt, now, false)
		return err
	})
	if errors.Is(err, ErrConcurrentCapacityConflict) {
		// Lost the capacity race: the date is now full. Join the waitlist
		// rather than failing the member.
		err = e.Store.WithTx(ctx, func(s Store) error {
			booking, err = e.submitTx(ctx, s, member, date, lt, now, true)
			return err
		})
	}
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// submitTx is the capacity-sensitive part of Submit. It runs inside one
// atomic storage transaction: the reads and the insert either commit
// together or not at all.
func (e *Engine) submitTx(ctx context.Context, s Store, member *Member, date Day, lt LeaveType, now time.Time, forceWaitlist bool) (*Booking, error) {
	acct := &Accountant{Store: s}
	balance, err := acct.Balance(ctx, member, date.Year(), lt)
	if err != nil {
		return nil, err
	}
	if !balance.Available.IsPositive() {
		return nil, &InsufficientEntitlementError{
			MemberID:  member.ID,
			LeaveType: lt,
			Year:      date.Year(),
			Available: balance.Available,
		}
	}

	existing, err := s.ConsumingBookingForDate(ctx, member.ID, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &DuplicateBookingError{MemberID: member.ID, Date: date, ExistingID: existing.ID}
	}

	ledger := &CapacityLedger{Store: s}
	cap, err := ledger.MaxAllotment(ctx, member.CalendarID, date)
	if err != nil {
		return nil, err
	}
	if cap == 0 {
		return nil, &ZeroCapacityError{CalendarID: member.CalendarID, Date: date}
	}

	bookings, err := s.BookingsForDate(ctx, member.CalendarID, date)
	if err != nil {
		return nil, err
	}
	// Saturation counts seats actually held: approved, pending, and
	// cancellation_pending (the seat stays held until the cancellation is
	// confirmed). Waitlisted bookings never consumed capacity.
	active := countByStatus(bookings, StatusApproved, StatusPending, StatusCancellationPending)

	b := &Booking{
		ID:          BookingID(uuid.NewString()),
		MemberID:    member.ID,
		CalendarID:  member.CalendarID,
		Date:        date,
		LeaveType:   lt,
		Status:      StatusPending,
		RequestedAt: now,
	}

	if forceWaitlist || active >= cap {
		maxPos, err := s.MaxWaitlistPosition(ctx, member.CalendarID, date)
		if err != nil {
			return nil, err
		}
		pos := maxPos + 1
		b.Status = StatusWaitlisted
		b.WaitlistPosition = &pos
	}

	if err := s.InsertBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Approve transitions pending -> approved, or waitlisted -> approved when
// the administrative collaborator promotes a waitlisted booking into freed
// capacity.
func (e *Engine) Approve(ctx context.Context, id BookingID) (*Booking, error) {
	return e.transition(ctx, id, StatusApproved)
}

// Deny transitions pending -> denied.
func (e *Engine) Deny(ctx context.Context, id BookingID) (*Booking, error) {
	return e.transition(ctx, id, StatusDenied)
}

// GrantPaidInLieu records a day paid out instead of taken. Paid-in-lieu
// bookings skip the window, capacity, and uniqueness checks: they consume
// neither date capacity nor entitlement and exist for payroll traceability.
func (e *Engine) GrantPaidInLieu(ctx context.Context, memberID MemberID, date Day, lt LeaveType) (*Booking, error) {
	if !lt.Valid() {
		return nil, fmt.Errorf("unknown leave type %q", lt)
	}

	now := e.Now()
	member, err := e.Store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	b := &Booking{
		ID:          BookingID(uuid.NewString()),
		MemberID:    member.ID,
		CalendarID:  member.CalendarID,
		Date:        date,
		LeaveType:   lt,
		Status:      StatusApproved,
		PaidInLieu:  true,
		RequestedAt: now,
		RespondedAt: &now,
	}
	if err := e.Store.InsertBooking(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// transition applies one status change, validated against the transition
// table, inside a storage transaction.
func (e *Engine) transition(ctx context.Context, id BookingID, to Status) (*Booking, error) {
	now := e.Now()
	var booking *Booking
	err := e.Store.WithTx(ctx, func(s Store) error {
		b, err := s.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(b.Status, to) {
			return &InvalidTransitionError{BookingID: id, From: b.Status, To: to}
		}
		b.Status = to
		b.RespondedAt = &now
		if err := s.UpdateBooking(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}
