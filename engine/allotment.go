/*
allotment.go - Capacity ledger

PURPOSE:
  Maps (calendar, date) to the maximum number of concurrent bookings. Two
  record kinds feed the lookup: a year-scoped default covering every date in
  that year, and a date-scoped override for a single date.

PRECEDENCE:
  date override > year default > 0. Absence of any record means zero: the
  date is unbookable. No lookup ever silently defaults to a nonzero value.

SEE ALSO:
  - availability.go: combines capacity with active bookings
  - booking.go: reads capacity inside the submit transaction
*/
package engine

import (
	"context"
	"fmt"
)

// CapacityLedger answers capacity questions and maintains the two allotment
// record kinds.
type CapacityLedger struct {
	Store Store
}

func NewCapacityLedger(store Store) *CapacityLedger {
	return &CapacityLedger{Store: store}
}

// MaxAllotment returns the capacity for (calendar, date): the date override
// if present, else the year default, else 0.
func (cl *CapacityLedger) MaxAllotment(ctx context.Context, cal CalendarID, date Day) (int, error) {
	override, err := cl.Store.DateAllotment(ctx, cal, date)
	if err != nil {
		return 0, fmt.Errorf("date allotment lookup: %w", err)
	}
	if override != nil {
		return override.MaxAllotment, nil
	}

	yearly, err := cl.Store.YearAllotment(ctx, cal, date.Year())
	if err != nil {
		return 0, fmt.Errorf("year allotment lookup: %w", err)
	}
	if yearly != nil {
		return yearly.MaxAllotment, nil
	}

	return 0, nil
}

// ApplyOverride sets the date-scoped capacity for a single date.
func (cl *CapacityLedger) ApplyOverride(ctx context.Context, cal CalendarID, date Day, max int) error {
	if max < 0 {
		return fmt.Errorf("allotment must be >= 0, got %d", max)
	}
	return cl.Store.UpsertDateAllotment(ctx, cal, date, max)
}

// RemoveOverride deletes the date-scoped record; the date reverts to the
// year default if one exists, else to zero.
func (cl *CapacityLedger) RemoveOverride(ctx context.Context, cal CalendarID, date Day) error {
	return cl.Store.RemoveDateAllotment(ctx, cal, date)
}

// SetYearDefault sets the default capacity for every date in the year.
func (cl *CapacityLedger) SetYearDefault(ctx context.Context, cal CalendarID, year, max int) error {
	if max < 0 {
		return fmt.Errorf("allotment must be >= 0, got %d", max)
	}
	if year < 1 {
		return fmt.Errorf("invalid year %d", year)
	}
	return cl.Store.UpsertYearAllotment(ctx, cal, year, max)
}
