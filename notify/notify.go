/*
Package notify publishes domain events for downstream consumers.

PURPOSE:
  The scheduling engine records decisions; everything that reacts to them
  (member notifications, the seniority process that drains the advance
  queue, reporting) lives outside this service and subscribes to events.
  Publishing is fire-and-forget from the API's point of view: a broker
  outage must never fail a booking.

EVENT KINDS:
  booking.submitted          a booking entered pending or waitlisted
  booking.approved           admin approved a booking
  booking.denied             admin denied a booking
  booking.cancel_requested   approved booking moved to cancellation_pending
  booking.cancelled          booking reached cancelled
  advance.queued             an advance request was accepted
  advance.withdrawn          an advance request was withdrawn
  advance.due                an advance request's date entered the booking
                             window and awaits the seniority process

SEE ALSO:
  - notify/amqp.go: RabbitMQ implementation
  - api/sweeper.go: emits advance.due
*/
package notify

import (
	"context"
	"time"

	"github.com/warp/leave-scheduler/engine"
)

type Kind string

const (
	BookingSubmitted       Kind = "booking.submitted"
	BookingApproved        Kind = "booking.approved"
	BookingDenied          Kind = "booking.denied"
	BookingCancelRequested Kind = "booking.cancel_requested"
	BookingCancelled       Kind = "booking.cancelled"
	AdvanceQueued          Kind = "advance.queued"
	AdvanceWithdrawn       Kind = "advance.withdrawn"
	AdvanceDue             Kind = "advance.due"
)

// Event is the wire shape for every kind. Fields that do not apply to a
// kind are left at their zero value.
type Event struct {
	Kind       Kind                    `json:"kind"`
	OccurredAt time.Time               `json:"occurredAt"`
	MemberID   engine.MemberID         `json:"memberId"`
	CalendarID engine.CalendarID       `json:"calendarId"`
	Date       engine.Day              `json:"date"`
	LeaveType  engine.LeaveType        `json:"leaveType"`
	BookingID  engine.BookingID        `json:"bookingId,omitempty"`
	AdvanceID  engine.AdvanceRequestID `json:"advanceRequestId,omitempty"`
	Status     engine.Status           `json:"status,omitempty"`
	Position   *int                    `json:"waitlistPosition,omitempty"`
}

// Publisher delivers events to whoever listens. Implementations must not
// block the request path beyond the context deadline.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// FromBooking builds the standard event for a booking state change.
func FromBooking(kind Kind, b *engine.Booking, at time.Time) Event {
	return Event{
		Kind:       kind,
		OccurredAt: at,
		MemberID:   b.MemberID,
		CalendarID: b.CalendarID,
		Date:       b.Date,
		LeaveType:  b.LeaveType,
		BookingID:  b.ID,
		Status:     b.Status,
		Position:   b.WaitlistPosition,
	}
}

// FromAdvance builds the standard event for an advance-request change.
func FromAdvance(kind Kind, ar *engine.AdvanceRequest, at time.Time) Event {
	return Event{
		Kind:       kind,
		OccurredAt: at,
		MemberID:   ar.MemberID,
		CalendarID: ar.CalendarID,
		Date:       ar.Date,
		LeaveType:  ar.LeaveType,
		AdvanceID:  ar.ID,
	}
}

// Nop drops every event. Used when no broker URL is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, ev Event) error { return nil }
func (Nop) Close() error                                { return nil }

var _ Publisher = Nop{}
