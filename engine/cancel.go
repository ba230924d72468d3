/*
cancel.go - Cancellation and promotion semantics

PURPOSE:
  Transitions a booking out of the active set based on what it currently is:

    waitlisted -> cancelled             (never held a seat; no side effect)
    pending    -> cancelled             (seat freed immediately)
    approved   -> cancellation_pending  (a human must confirm before the
                                         seat is actually freed)

  Confirming a pending cancellation frees the seat; denying it reverts the
  booking to approved.

PROMOTION:
  This engine does NOT auto-promote the next waitlisted booking when a seat
  frees. Availability is recomputed on demand: every cancellation returns
  the date's recomputed classification so callers (and whoever consumes the
  change events) can re-fetch the date and surface the next waitlisted
  booking for administrative approval. One stale-read window is traded for
  not maintaining a live promotion side effect.

  Remaining waitlisted bookings keep their original positions; they are
  never renumbered, so position is original queue order, not a dense rank.

SEE ALSO:
  - booking.go: the transition table and Approve (used for promotion)
  - availability.go: the recomputed classification
*/
package engine

import (
	"context"
)

// CancellationResult is the authoritative state after a cancellation step:
// the updated booking plus the recomputed availability of the affected date.
type CancellationResult struct {
	Booking      *Booking
	Availability Availability
}

// Cancel moves a booking toward cancelled along the path its current status
// dictates. Cancelling a terminal booking returns InvalidTransitionError.
func (e *Engine) Cancel(ctx context.Context, id BookingID) (*CancellationResult, error) {
	now := e.Now()
	today := DayOf(now)

	var result *CancellationResult
	err := e.Store.WithTx(ctx, func(s Store) error {
		b, err := s.GetBooking(ctx, id)
		if err != nil {
			return err
		}

		var to Status
		switch b.Status {
		case StatusWaitlisted, StatusPending:
			to = StatusCancelled
		case StatusApproved:
			to = StatusCancellationPending
		default:
			return &InvalidTransitionError{BookingID: id, From: b.Status, To: StatusCancelled}
		}

		b.Status = to
		b.RespondedAt = &now
		if err := s.UpdateBooking(ctx, b); err != nil {
			return err
		}

		avail, err := (&Classifier{Ledger: &CapacityLedger{Store: s}, Store: s}).
			Classify(ctx, b.CalendarID, b.Date, today)
		if err != nil {
			return err
		}
		result = &CancellationResult{Booking: b, Availability: avail}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConfirmCancellation completes cancellation_pending -> cancelled, actually
// freeing the seat.
func (e *Engine) ConfirmCancellation(ctx context.Context, id BookingID) (*CancellationResult, error) {
	return e.resolveCancellation(ctx, id, StatusCancelled)
}

// RevertCancellation denies the cancellation, returning the booking to
// approved. The seat was never freed.
func (e *Engine) RevertCancellation(ctx context.Context, id BookingID) (*CancellationResult, error) {
	return e.resolveCancellation(ctx, id, StatusApproved)
}

func (e *Engine) resolveCancellation(ctx context.Context, id BookingID, to Status) (*CancellationResult, error) {
	now := e.Now()
	today := DayOf(now)

	var result *CancellationResult
	err := e.Store.WithTx(ctx, func(s Store) error {
		b, err := s.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusCancellationPending || !CanTransition(b.Status, to) {
			return &InvalidTransitionError{BookingID: id, From: b.Status, To: to}
		}
		b.Status = to
		b.RespondedAt = &now
		if err := s.UpdateBooking(ctx, b); err != nil {
			return err
		}

		avail, err := (&Classifier{Ledger: &CapacityLedger{Store: s}, Store: s}).
			Classify(ctx, b.CalendarID, b.Date, today)
		if err != nil {
			return err
		}
		result = &CancellationResult{Booking: b, Availability: avail}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Waitlist returns the date's waitlisted bookings in original queue order.
func (e *Engine) Waitlist(ctx context.Context, cal CalendarID, date Day) ([]*Booking, error) {
	bookings, err := e.Store.BookingsForDate(ctx, cal, date)
	if err != nil {
		return nil, err
	}
	var waitlisted []*Booking
	for _, b := range bookings {
		if b.Status == StatusWaitlisted {
			waitlisted = append(waitlisted, b)
		}
	}
	return waitlisted, nil
}
