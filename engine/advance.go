/*
advance.go - Advance-request reconciler

PURPOSE:
  Manages the queue of requests for the single date exactly six calendar
  months out. These records are disjoint from the booking pool: they hold
  entitlement while unprocessed, but never consume date capacity. An
  external seniority-ordered process later converts each request into a
  booking or discards it, flipping Processed.

INTAKE RULES:
  1. The date must classify as advance-eligible (window.go owns the
     month-end edge case; intake just requires Advance == true).
  2. The member must have positive remaining entitlement; an unprocessed
     request counts as used from the moment it is accepted.
  3. At most one unprocessed request per (member, date, leave type).

SEE ALSO:
  - window.go: which dates are advance-eligible
  - api/sweeper.go: surfaces due requests to the external process
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reconciler is the intake and bookkeeping side of the advance-request
// queue. Conversion by seniority is the external process's job.
type Reconciler struct {
	Store TxStore
	Now   func() time.Time
}

func NewReconciler(store TxStore) *Reconciler {
	return &Reconciler{Store: store, Now: time.Now}
}

// SubmitAdvance queues a request for an advance-eligible date.
func (r *Reconciler) SubmitAdvance(ctx context.Context, memberID MemberID, date Day, lt LeaveType) (*AdvanceRequest, error) {
	if !lt.Valid() {
		return nil, fmt.Errorf("unknown leave type %q", lt)
	}

	now := r.Now()
	today := DayOf(now)

	w := EvaluateWindow(today, date)
	if !w.Eligible {
		return nil, &IneligibleDateError{Date: date, LeaveType: lt, Reason: w.Reason}
	}
	if !w.Advance {
		return nil, &IneligibleDateError{Date: date, LeaveType: lt, Reason: ReasonTooSoon}
	}

	member, err := r.Store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	var request *AdvanceRequest
	err = r.Store.WithTx(ctx, func(s Store) error {
		balance, err := (&Accountant{Store: s}).Balance(ctx, member, date.Year(), lt)
		if err != nil {
			return err
		}
		if !balance.Available.IsPositive() {
			return &InsufficientEntitlementError{
				MemberID:  member.ID,
				LeaveType: lt,
				Year:      date.Year(),
				Available: balance.Available,
			}
		}

		existing, err := s.UnprocessedAdvanceRequest(ctx, member.ID, date, lt)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("member %s already queued %s for %s: %w",
				member.ID, lt, date, ErrDuplicateAdvanceRequest)
		}

		request = &AdvanceRequest{
			ID:          AdvanceRequestID(uuid.NewString()),
			MemberID:    member.ID,
			CalendarID:  member.CalendarID,
			Date:        date,
			LeaveType:   lt,
			Processed:   false,
			RequestedAt: now,
		}
		return s.InsertAdvanceRequest(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// HasAdvanceRequest reports whether the member holds an unprocessed request
// for the date, for either leave type. Callers use it to merge the advance
// queue into the same visual stream as ordinary bookings without
// double-counting entitlement.
func (r *Reconciler) HasAdvanceRequest(ctx context.Context, memberID MemberID, date Day) (bool, error) {
	for _, lt := range []LeaveType{LeavePLD, LeaveSDV} {
		ar, err := r.Store.UnprocessedAdvanceRequest(ctx, memberID, date, lt)
		if err != nil {
			return false, err
		}
		if ar != nil {
			return true, nil
		}
	}
	return false, nil
}

// Withdraw deletes an unprocessed request, releasing its entitlement hold.
// Only the owner may withdraw, and only before processing.
func (r *Reconciler) Withdraw(ctx context.Context, id AdvanceRequestID, memberID MemberID) error {
	return r.Store.WithTx(ctx, func(s Store) error {
		ar, err := s.GetAdvanceRequest(ctx, id)
		if err != nil {
			return err
		}
		if ar.MemberID != memberID {
			return fmt.Errorf("advance request %s: %w", id, ErrNotFound)
		}
		if ar.Processed {
			return fmt.Errorf("advance request %s already processed: %w", id, ErrInvalidTransition)
		}
		return s.DeleteAdvanceRequest(ctx, id)
	})
}

// MarkProcessed flips Processed after the external seniority process has
// converted or discarded the request.
func (r *Reconciler) MarkProcessed(ctx context.Context, id AdvanceRequestID) error {
	return r.Store.WithTx(ctx, func(s Store) error {
		ar, err := s.GetAdvanceRequest(ctx, id)
		if err != nil {
			return err
		}
		if ar.Processed {
			return fmt.Errorf("advance request %s already processed: %w", id, ErrInvalidTransition)
		}
		return s.MarkAdvanceProcessed(ctx, id)
	})
}

// Due returns unprocessed requests whose date has left the advance window
// and entered the normal booking window, oldest submission first. These are
// ready for the external seniority process.
func (r *Reconciler) Due(ctx context.Context, today Day) ([]*AdvanceRequest, error) {
	candidates, err := r.Store.UnprocessedAdvanceRequestsThrough(ctx, AdvanceDate(today))
	if err != nil {
		return nil, err
	}
	var due []*AdvanceRequest
	for _, ar := range candidates {
		w := EvaluateWindow(today, ar.Date)
		if !w.Advance {
			due = append(due, ar)
		}
	}
	return due, nil
}

// ListForMember returns the member's advance requests with dates in a year.
func (r *Reconciler) ListForMember(ctx context.Context, memberID MemberID, year int) ([]*AdvanceRequest, error) {
	return r.Store.AdvanceRequestsForMember(ctx, memberID, StartOfYear(year), EndOfYear(year))
}
