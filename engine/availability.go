/*
availability.go - Date availability classification

PURPOSE:
  Combines the date-window evaluation, the capacity ledger, and the current
  active bookings for a date into one of four classes a calendar UI can
  render directly: unavailable, available, limited, full.

RULES:
  - outside the bookable window           -> unavailable
  - advance-window date                   -> available (advance requests are
    queued, not capacity-consumed, so capacity display does not apply)
  - capacity zero                         -> unavailable
  - active >= cap                         -> full
  - active >= 70% of cap                  -> limited
  - otherwise                             -> available

  "Active" counts seats actually held: approved, pending, and
  cancellation_pending (still held until the cancellation is confirmed).
  Waitlisted bookings never held a seat, so they do not keep a date full:
  once a seat holder's cancellation completes, the next evaluation re-admits
  the freed capacity and the queue can be served.

SELECTABILITY:
  Full dates stay selectable so members can join the waitlist; only
  unavailable dates are not.
*/
package engine

import (
	"context"
	"fmt"
)

// Availability is the classification of one date on one calendar.
type Availability string

const (
	Unavailable Availability = "unavailable"
	Available   Availability = "available"
	Limited     Availability = "limited"
	Full        Availability = "full"
)

// LimitedThreshold is the active/capacity ratio at which a date shows as
// limited.
const LimitedThreshold = 0.7

// Classifier produces availability classes for calendar dates.
type Classifier struct {
	Ledger *CapacityLedger
	Store  Store
}

func NewClassifier(store Store) *Classifier {
	return &Classifier{Ledger: NewCapacityLedger(store), Store: store}
}

// Classify returns the availability of (calendar, date) as seen from today.
// The same today snapshot must be used for every date in one evaluation.
func (c *Classifier) Classify(ctx context.Context, cal CalendarID, date, today Day) (Availability, error) {
	w := EvaluateWindow(today, date)
	if !w.Eligible {
		return Unavailable, nil
	}
	if w.Advance {
		return Available, nil
	}

	cap, err := c.Ledger.MaxAllotment(ctx, cal, date)
	if err != nil {
		return Unavailable, err
	}
	if cap == 0 {
		return Unavailable, nil
	}

	bookings, err := c.Store.BookingsForDate(ctx, cal, date)
	if err != nil {
		return Unavailable, fmt.Errorf("load bookings: %w", err)
	}
	active := countByStatus(bookings, StatusApproved, StatusPending, StatusCancellationPending)

	switch {
	case active >= cap:
		return Full, nil
	case float64(active) >= LimitedThreshold*float64(cap):
		return Limited, nil
	default:
		return Available, nil
	}
}

// IsSelectable reports whether the date can be picked at all. Full dates are
// selectable (waitlist join); unavailable dates are not.
func (c *Classifier) IsSelectable(ctx context.Context, cal CalendarID, date, today Day) (bool, error) {
	avail, err := c.Classify(ctx, cal, date, today)
	if err != nil {
		return false, err
	}
	return avail != Unavailable, nil
}

// countByStatus counts bookings whose status is one of the given set.
func countByStatus(bookings []*Booking, statuses ...Status) int {
	n := 0
	for _, b := range bookings {
		for _, s := range statuses {
			if b.Status == s {
				n++
				break
			}
		}
	}
	return n
}
