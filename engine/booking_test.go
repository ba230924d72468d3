package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-scheduler/engine"
	"github.com/warp/leave-scheduler/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testCalendar = engine.CalendarID("cal-east")

// fixedToday is the clock every engine test runs against.
var fixedToday = engine.NewDay(2026, time.June, 1)

// bookable is a date comfortably inside the normal window.
var bookable = engine.NewDay(2026, time.June, 15)

func fixedNow() time.Time {
	return time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, capacity int) (*engine.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()

	require.NoError(t, mem.UpsertYearAllotment(context.Background(), testCalendar, 2026, capacity))

	eng := engine.NewEngine(mem)
	eng.Now = fixedNow
	return eng, mem
}

func addMember(mem *store.Memory, id string, pld, sdv float64) engine.MemberID {
	mem.AddMember(&engine.Member{
		ID:         engine.MemberID(id),
		CalendarID: testCalendar,
		Name:       id,
		Entitlements: map[engine.LeaveType]decimal.Decimal{
			engine.LeavePLD: decimal.NewFromFloat(pld),
			engine.LeaveSDV: decimal.NewFromFloat(sdv),
		},
	})
	return engine.MemberID(id)
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmit_CreatesPendingInsideCapacity(t *testing.T) {
	eng, mem := newFixture(t, 2)
	member := addMember(mem, "alice", 5, 2)
	ctx := context.Background()

	b, err := eng.Submit(ctx, member, bookable, engine.LeavePLD)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusPending, b.Status)
	assert.Nil(t, b.WaitlistPosition)
	assert.Equal(t, testCalendar, b.CalendarID)
	assert.Equal(t, fixedNow(), b.RequestedAt)
}

func TestSubmit_WaitlistsWhenFull(t *testing.T) {
	// GIVEN: capacity 2, two members already hold the date
	// WHEN: a third member submits
	// THEN: the booking is waitlisted at position 1

	eng, mem := newFixture(t, 2)
	ctx := context.Background()

	a := addMember(mem, "alice", 5, 2)
	b := addMember(mem, "bob", 5, 2)
	c := addMember(mem, "carol", 5, 2)

	_, err := eng.Submit(ctx, a, bookable, engine.LeavePLD)
	require.NoError(t, err)
	_, err = eng.Submit(ctx, b, bookable, engine.LeavePLD)
	require.NoError(t, err)

	third, err := eng.Submit(ctx, c, bookable, engine.LeavePLD)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusWaitlisted, third.Status)
	require.NotNil(t, third.WaitlistPosition)
	assert.Equal(t, 1, *third.WaitlistPosition)
}

func TestSubmit_WaitlistPositionsStrictlyIncrease(t *testing.T) {
	eng, mem := newFixture(t, 1)
	ctx := context.Background()

	first := addMember(mem, "holder", 5, 2)
	_, err := eng.Submit(ctx, first, bookable, engine.LeavePLD)
	require.NoError(t, err)

	for i, name := range []string{"w1", "w2", "w3"} {
		m := addMember(mem, name, 5, 2)
		b, err := eng.Submit(ctx, m, bookable, engine.LeavePLD)
		require.NoError(t, err)
		require.Equal(t, engine.StatusWaitlisted, b.Status)
		require.NotNil(t, b.WaitlistPosition)
		assert.Equal(t, i+1, *b.WaitlistPosition)
	}
}

func TestSubmit_RejectsBlackoutDate(t *testing.T) {
	eng, mem := newFixture(t, 2)
	member := addMember(mem, "alice", 5, 2)

	_, err := eng.Submit(context.Background(), member, fixedToday.AddDays(1), engine.LeavePLD)

	require.Error(t, err)
	var ie *engine.IneligibleDateError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, engine.ReasonTooSoon, ie.Reason)
	assert.ErrorIs(t, err, engine.ErrIneligibleDate)
}

func TestSubmit_RoutesAdvanceDateToQueue(t *testing.T) {
	// Submit against the six-month date must not create a booking; the
	// caller is told to use the advance queue instead.
	eng, mem := newFixture(t, 2)
	member := addMember(mem, "alice", 5, 2)

	advance := engine.AdvanceDate(fixedToday)
	_, err := eng.Submit(context.Background(), member, advance, engine.LeavePLD)

	require.ErrorIs(t, err, engine.ErrAdvanceWindow)
}

func TestSubmit_RejectsExhaustedEntitlement(t *testing.T) {
	eng, mem := newFixture(t, 10)
	member := addMember(mem, "alice", 1, 0)
	ctx := context.Background()

	_, err := eng.Submit(ctx, member, bookable, engine.LeavePLD)
	require.NoError(t, err)

	_, err = eng.Submit(ctx, member, bookable.AddDays(1), engine.LeavePLD)
	require.ErrorIs(t, err, engine.ErrInsufficientEntitlement)

	var ie *engine.InsufficientEntitlementError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.Available.IsZero(), "available should be zero, got %s", ie.Available)
}

func TestSubmit_RejectsDuplicateDay(t *testing.T) {
	eng, mem := newFixture(t, 10)
	member := addMember(mem, "alice", 5, 2)
	ctx := context.Background()

	first, err := eng.Submit(ctx, member, bookable, engine.LeavePLD)
	require.NoError(t, err)

	// Same day again, even with the other leave type.
	_, err = eng.Submit(ctx, member, bookable, engine.LeaveSDV)
	require.ErrorIs(t, err, engine.ErrDuplicateBooking)

	var de *engine.DuplicateBookingError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, first.ID, de.ExistingID)
}

func TestSubmit_RejectsZeroCapacityDate(t *testing.T) {
	// No allotment record at all: absence means zero, never a default.
	mem := store.NewMemory()
	member := addMember(mem, "alice", 5, 2)
	eng := engine.NewEngine(mem)
	eng.Now = fixedNow

	_, err := eng.Submit(context.Background(), member, bookable, engine.LeavePLD)
	require.ErrorIs(t, err, engine.ErrZeroCapacity)

	var ze *engine.ZeroCapacityError
	require.ErrorAs(t, err, &ze)
	assert.Equal(t, testCalendar, ze.CalendarID)
}

func TestSubmit_WaitlistedDoesNotConsumeCapacity(t *testing.T) {
	// A full date stays at the same saturation no matter how many members
	// join the waitlist.
	eng, mem := newFixture(t, 1)
	ctx := context.Background()

	holder := addMember(mem, "holder", 5, 2)
	_, err := eng.Submit(ctx, holder, bookable, engine.LeavePLD)
	require.NoError(t, err)

	for _, name := range []string{"w1", "w2"} {
		m := addMember(mem, name, 5, 2)
		b, err := eng.Submit(ctx, m, bookable, engine.LeavePLD)
		require.NoError(t, err)
		assert.Equal(t, engine.StatusWaitlisted, b.Status)
	}
}

// =============================================================================
// CONCURRENCY FALLBACK TESTS
// =============================================================================

// conflictOnce wraps the memory store and fails the first WithTx with a
// capacity conflict, simulating a lost insert race.
type conflictOnce struct {
	*store.Memory
	fired bool
}

func (c *conflictOnce) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	if !c.fired {
		c.fired = true
		return engine.ErrConcurrentCapacityConflict
	}
	return c.Memory.WithTx(ctx, fn)
}

func TestSubmit_RetriesConflictAsWaitlistJoin(t *testing.T) {
	// GIVEN: the first transaction loses the capacity race
	// WHEN: Submit retries
	// THEN: the booking lands on the waitlist instead of failing

	mem := store.NewMemory()
	require.NoError(t, mem.UpsertYearAllotment(context.Background(), testCalendar, 2026, 5))
	member := addMember(mem, "alice", 5, 2)

	eng := engine.NewEngine(&conflictOnce{Memory: mem})
	eng.Now = fixedNow

	b, err := eng.Submit(context.Background(), member, bookable, engine.LeavePLD)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusWaitlisted, b.Status)
	require.NotNil(t, b.WaitlistPosition)
	assert.Equal(t, 1, *b.WaitlistPosition)
}

// =============================================================================
// APPROVAL TESTS
// =============================================================================

func TestApprove_PendingBooking(t *testing.T) {
	eng, mem := newFixture(t, 2)
	member := addMember(mem, "alice", 5, 2)
	ctx := context.Background()

	b, err := eng.Submit(ctx, member, bookable, engine.LeavePLD)
	require.NoError(t, err)

	approved, err := eng.Approve(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, approved.Status)
	require.NotNil(t, approved.RespondedAt)
}

func TestApprove_PromotesWaitlistedBooking(t *testing.T) {
	// Promotion is a manual decision; the engine only validates the
	// waitlisted -> approved edge.
	eng, mem := newFixture(t, 1)
	ctx := context.Background()

	holder := addMember(mem, "holder", 5, 2)
	_, err := eng.Submit(ctx, holder, bookable, engine.LeavePLD)
	require.NoError(t, err)

	waiter := addMember(mem, "waiter", 5, 2)
	wb, err := eng.Submit(ctx, waiter, bookable, engine.LeavePLD)
	require.NoError(t, err)
	require.Equal(t, engine.StatusWaitlisted, wb.Status)

	promoted, err := eng.Approve(ctx, wb.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, promoted.Status)
	// The original queue position is preserved on the record.
	require.NotNil(t, promoted.WaitlistPosition)
	assert.Equal(t, 1, *promoted.WaitlistPosition)
}

func TestDeny_OnlyFromPending(t *testing.T) {
	eng, mem := newFixture(t, 1)
	ctx := context.Background()

	holder := addMember(mem, "holder", 5, 2)
	_, err := eng.Submit(ctx, holder, bookable, engine.LeavePLD)
	require.NoError(t, err)

	waiter := addMember(mem, "waiter", 5, 2)
	wb, err := eng.Submit(ctx, waiter, bookable, engine.LeavePLD)
	require.NoError(t, err)

	// waitlisted -> denied is not an edge in the machine.
	_, err = eng.Deny(ctx, wb.ID)
	require.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestTransition_UnknownBooking(t *testing.T) {
	eng, _ := newFixture(t, 1)
	_, err := eng.Approve(context.Background(), engine.BookingID("nope"))
	require.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// PAID-IN-LIEU TESTS
// =============================================================================

func TestGrantPaidInLieu_SkipsInvariants(t *testing.T) {
	// Paid-in-lieu days bypass window, capacity, and uniqueness checks and
	// never touch the balance.
	eng, mem := newFixture(t, 1)
	member := addMember(mem, "alice", 5, 2)
	ctx := context.Background()

	// Regular booking on the date first.
	_, err := eng.Submit(ctx, member, bookable, engine.LeavePLD)
	require.NoError(t, err)

	// Payout on the same date, inside the blackout even.
	pil, err := eng.GrantPaidInLieu(ctx, member, bookable, engine.LeavePLD)
	require.NoError(t, err)

	assert.True(t, pil.PaidInLieu)
	assert.Equal(t, engine.StatusApproved, pil.Status)
	assert.False(t, pil.ConsumesEntitlement())

	m, err := mem.GetMember(ctx, member)
	require.NoError(t, err)
	balance, err := eng.Accountant.Balance(ctx, m, 2026, engine.LeavePLD)
	require.NoError(t, err)
	assert.Equal(t, "1", balance.Used.String(), "only the regular booking consumes")
}
