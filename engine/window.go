/*
window.go - Date-window eligibility rules

PURPOSE:
  Decides, for a candidate date, whether a leave request is allowed at all
  and whether it belongs to the normal booking window or the advance-request
  queue. This is a pure function of (today, candidate): no I/O, no clock
  reads, fully deterministic.

THE THREE BOUNDARIES:
  blackout   today + 2 days (exclusive lower bound; shorter notice is never
             bookable)
  advance    today + 6 calendar months, same day-of-month, clamped to the
             last day of the target month
  too far    anything past the advance date that is not advance-eligible

MONTH-END EXTENSION:
  When today is the last day of its month and the target month is LONGER
  than the origin month, the trailing days of the target month have no
  origin date that maps onto them (Apr 30 + 6 months is Oct 30; nothing
  ever maps to Oct 31). Those trailing days are treated as advance-eligible
  from the month-end origin day, otherwise they would never be bookable.
  This is the one irregular rule in the engine; see the tests for the
  boundary cases.

SEE ALSO:
  - availability.go: consumes Window to classify a date
  - advance.go: requires Window.Advance for intake
*/
package engine

// BlackoutDays is the exclusive lower bound on notice: a request must be
// for at least today+2.
const BlackoutDays = 2

// AdvanceMonths is how far out the advance-request date sits.
const AdvanceMonths = 6

// WindowReason explains why a date fell outside the bookable window.
type WindowReason string

const (
	ReasonTooSoon WindowReason = "too_soon"
	ReasonTooFar  WindowReason = "too_far"
)

// Window is the eligibility classification of a candidate date.
type Window struct {
	// Eligible is true when the date may be requested at all.
	Eligible bool

	// Advance is true when the date belongs to the advance-request queue
	// rather than the normal booking pool.
	Advance bool

	// Reason is set only when Eligible is false.
	Reason WindowReason
}

// AdvanceDate returns the single date exactly six calendar months from
// today, clamped to the end of the target month.
func AdvanceDate(today Day) Day {
	return today.AddMonthsClamped(AdvanceMonths)
}

// EvaluateWindow classifies candidate relative to today.
//
// Rules, in order:
//  1. candidate before today+2 days: blocked, too soon.
//  2. candidate is the advance date, or today is a month-end and candidate
//     falls in the advance date's month on or after its day-of-month:
//     advance-eligible.
//  3. candidate after the advance date and not advance-eligible: blocked,
//     too far.
//  4. otherwise: normal-window eligible.
func EvaluateWindow(today, candidate Day) Window {
	blackout := today.AddDays(BlackoutDays)
	if candidate.Before(blackout) {
		return Window{Reason: ReasonTooSoon}
	}

	advance := AdvanceDate(today)
	isAdvance := candidate.Equal(advance)
	if !isAdvance && today.IsMonthEnd() &&
		candidate.SameMonth(advance) &&
		candidate.DayOfMonth() >= advance.DayOfMonth() {
		// Trailing days of a longer target month, reachable only from the
		// month-end origin.
		isAdvance = true
	}

	if candidate.After(advance) && !isAdvance {
		return Window{Reason: ReasonTooFar}
	}

	return Window{Eligible: true, Advance: isAdvance}
}
