/*
entitlement.go - Per-member balance accounting

PURPOSE:
  Computes a member's total/used/available balance per leave type per year.
  The total comes from the externally-owned Member record; usage is derived
  by replaying the member's bookings and advance requests, never cached.

WHAT COUNTS AS USED:
  - bookings with status pending, approved, waitlisted, or
    cancellation_pending, unless paid in lieu
  - unprocessed advance requests (the queued day is spoken for until the
    seniority process converts or discards it)

  Denied and cancelled bookings release their day; processed advance
  requests are counted through whatever booking they became.

SEE ALSO:
  - booking.go, advance.go: gate on Available before accepting a request
*/
package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Balance is a member's entitlement position for one leave type and year.
type Balance struct {
	MemberID  MemberID
	LeaveType LeaveType
	Year      int

	Total     decimal.Decimal
	Used      decimal.Decimal
	Available decimal.Decimal
}

// Accountant derives balances from booking and advance-request records.
type Accountant struct {
	Store Store
}

func NewAccountant(store Store) *Accountant {
	return &Accountant{Store: store}
}

// Balance computes the member's position for a leave type and year. Callers
// must re-derive after any state-changing call rather than cache the result.
func (a *Accountant) Balance(ctx context.Context, member *Member, year int, lt LeaveType) (Balance, error) {
	from, to := StartOfYear(year), EndOfYear(year)

	bookings, err := a.Store.BookingsForMember(ctx, member.ID, from, to)
	if err != nil {
		return Balance{}, fmt.Errorf("load bookings: %w", err)
	}

	used := decimal.Zero
	one := decimal.NewFromInt(1)
	for _, b := range bookings {
		if b.LeaveType == lt && b.ConsumesEntitlement() {
			used = used.Add(one)
		}
	}

	advances, err := a.Store.AdvanceRequestsForMember(ctx, member.ID, from, to)
	if err != nil {
		return Balance{}, fmt.Errorf("load advance requests: %w", err)
	}
	for _, ar := range advances {
		if ar.LeaveType == lt && !ar.Processed {
			used = used.Add(one)
		}
	}

	total := member.Entitlement(lt)
	return Balance{
		MemberID:  member.ID,
		LeaveType: lt,
		Year:      year,
		Total:     total,
		Used:      used,
		Available: total.Sub(used),
	}, nil
}
