package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-scheduler/engine"
	"github.com/warp/leave-scheduler/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const cal = engine.CalendarID("cal-east")

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedMember(t *testing.T, store *sqlite.Store, id string) engine.MemberID {
	t.Helper()
	err := store.UpsertMember(context.Background(), &engine.Member{
		ID:         engine.MemberID(id),
		CalendarID: cal,
		Name:       id,
		Entitlements: map[engine.LeaveType]decimal.Decimal{
			engine.LeavePLD: decimal.NewFromInt(5),
			engine.LeaveSDV: decimal.NewFromInt(2),
		},
		Rollover: decimal.NewFromFloat(0.5),
	})
	require.NoError(t, err)
	return engine.MemberID(id)
}

func booking(id, member string, date engine.Day, status engine.Status) *engine.Booking {
	return &engine.Booking{
		ID:          engine.BookingID(id),
		MemberID:    engine.MemberID(member),
		CalendarID:  cal,
		Date:        date,
		LeaveType:   engine.LeavePLD,
		Status:      status,
		RequestedAt: time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
}

var day = engine.NewDay(2026, time.June, 15)

// =============================================================================
// BOOKING PERSISTENCE TESTS
// =============================================================================

func TestBooking_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	pos := 3
	responded := time.Date(2026, time.June, 2, 10, 0, 0, 0, time.UTC)
	in := booking("b-1", "alice", day, engine.StatusWaitlisted)
	in.WaitlistPosition = &pos
	in.RespondedAt = &responded

	require.NoError(t, store.InsertBooking(ctx, in))

	out, err := store.GetBooking(ctx, "b-1")
	require.NoError(t, err)

	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.MemberID, out.MemberID)
	assert.True(t, in.Date.Equal(out.Date))
	assert.Equal(t, engine.StatusWaitlisted, out.Status)
	require.NotNil(t, out.WaitlistPosition)
	assert.Equal(t, 3, *out.WaitlistPosition)
	require.NotNil(t, out.RespondedAt)
	assert.True(t, responded.Equal(*out.RespondedAt))
	assert.True(t, in.RequestedAt.Equal(out.RequestedAt))
}

func TestBooking_GetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetBooking(context.Background(), "missing")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestBooking_ConsumingUniquenessEnforcedBySchema(t *testing.T) {
	// The partial unique index is the last line of defense against two
	// transactions inserting for the same (member, date).
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	require.NoError(t, store.InsertBooking(ctx, booking("b-1", "alice", day, engine.StatusPending)))

	err := store.InsertBooking(ctx, booking("b-2", "alice", day, engine.StatusApproved))
	require.ErrorIs(t, err, engine.ErrDuplicateBooking)

	var de *engine.DuplicateBookingError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, engine.MemberID("alice"), de.MemberID)
}

func TestBooking_CancelledDoesNotBlockRebooking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	first := booking("b-1", "alice", day, engine.StatusPending)
	require.NoError(t, store.InsertBooking(ctx, first))

	first.Status = engine.StatusCancelled
	require.NoError(t, store.UpdateBooking(ctx, first))

	// Same member, same date: allowed now that the first is terminal.
	require.NoError(t, store.InsertBooking(ctx, booking("b-2", "alice", day, engine.StatusPending)))
}

func TestBooking_PaidInLieuOutsideUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	require.NoError(t, store.InsertBooking(ctx, booking("b-1", "alice", day, engine.StatusApproved)))

	pil := booking("b-2", "alice", day, engine.StatusApproved)
	pil.PaidInLieu = true
	require.NoError(t, store.InsertBooking(ctx, pil))
}

func TestConsumingBookingForDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	got, err := store.ConsumingBookingForDate(ctx, "alice", day)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.InsertBooking(ctx, booking("b-1", "alice", day, engine.StatusPending)))

	got, err = store.ConsumingBookingForDate(ctx, "alice", day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.BookingID("b-1"), got.ID)
}

func TestMaxWaitlistPosition_SpansAllStatuses(t *testing.T) {
	// Positions from cancelled bookings still count: they are never reused.
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")
	seedMember(t, store, "bob")

	max, err := store.MaxWaitlistPosition(ctx, cal, day)
	require.NoError(t, err)
	assert.Equal(t, 0, max)

	p2 := 2
	b := booking("b-1", "alice", day, engine.StatusCancelled)
	b.WaitlistPosition = &p2
	require.NoError(t, store.InsertBooking(ctx, b))

	p1 := 1
	b2 := booking("b-2", "bob", day, engine.StatusWaitlisted)
	b2.WaitlistPosition = &p1
	require.NoError(t, store.InsertBooking(ctx, b2))

	max, err = store.MaxWaitlistPosition(ctx, cal, day)
	require.NoError(t, err)
	assert.Equal(t, 2, max)
}

func TestBookingsForDate_WaitlistOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"w-3", "w-1", "w-2"} {
		seedMember(t, store, id)
		pos := []int{3, 1, 2}[i]
		b := booking("b-"+id, id, day, engine.StatusWaitlisted)
		b.WaitlistPosition = &pos
		require.NoError(t, store.InsertBooking(ctx, b))
	}

	list, err := store.BookingsForDate(ctx, cal, day)
	require.NoError(t, err)
	require.Len(t, list, 3)

	var positions []int
	for _, b := range list {
		require.NotNil(t, b.WaitlistPosition)
		positions = append(positions, *b.WaitlistPosition)
	}
	assert.Equal(t, []int{1, 2, 3}, positions)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s engine.Store) error {
		if err := s.InsertBooking(ctx, booking("b-1", "alice", day, engine.StatusPending)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetBooking(ctx, "b-1")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestWithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	err := store.WithTx(ctx, func(s engine.Store) error {
		if err := s.InsertBooking(ctx, booking("b-1", "alice", day, engine.StatusPending)); err != nil {
			return err
		}
		got, err := s.GetBooking(ctx, "b-1")
		if err != nil {
			return err
		}
		assert.Equal(t, engine.StatusPending, got.Status)
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// ADVANCE REQUEST TESTS
// =============================================================================

func TestAdvanceRequest_RoundTripAndUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	advDay := engine.NewDay(2026, time.December, 1)
	ar := &engine.AdvanceRequest{
		ID:          "ar-1",
		MemberID:    "alice",
		CalendarID:  cal,
		Date:        advDay,
		LeaveType:   engine.LeavePLD,
		RequestedAt: time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.InsertAdvanceRequest(ctx, ar))

	// Second unprocessed request for the same (member, date, type).
	dup := *ar
	dup.ID = "ar-2"
	err := store.InsertAdvanceRequest(ctx, &dup)
	require.ErrorIs(t, err, engine.ErrDuplicateAdvanceRequest)

	got, err := store.UnprocessedAdvanceRequest(ctx, "alice", advDay, engine.LeavePLD)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.AdvanceRequestID("ar-1"), got.ID)

	// Processing frees the slot for a new unprocessed request.
	require.NoError(t, store.MarkAdvanceProcessed(ctx, "ar-1"))
	require.NoError(t, store.InsertAdvanceRequest(ctx, &dup))
}

func TestAdvanceRequest_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	ar := &engine.AdvanceRequest{
		ID:          "ar-1",
		MemberID:    "alice",
		CalendarID:  cal,
		Date:        engine.NewDay(2026, time.December, 1),
		LeaveType:   engine.LeavePLD,
		RequestedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertAdvanceRequest(ctx, ar))
	require.NoError(t, store.DeleteAdvanceRequest(ctx, "ar-1"))

	_, err := store.GetAdvanceRequest(ctx, "ar-1")
	require.ErrorIs(t, err, engine.ErrNotFound)

	require.ErrorIs(t, store.DeleteAdvanceRequest(ctx, "ar-1"), engine.ErrNotFound)
}

func TestUnprocessedAdvanceRequestsThrough_OrderAndCutoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")
	seedMember(t, store, "bob")

	base := time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	insert := func(id, member string, date engine.Day, at time.Time) {
		require.NoError(t, store.InsertAdvanceRequest(ctx, &engine.AdvanceRequest{
			ID:          engine.AdvanceRequestID(id),
			MemberID:    engine.MemberID(member),
			CalendarID:  cal,
			Date:        date,
			LeaveType:   engine.LeavePLD,
			RequestedAt: at,
		}))
	}

	insert("ar-late", "alice", engine.NewDay(2026, time.December, 1), base.Add(time.Hour))
	insert("ar-early", "bob", engine.NewDay(2026, time.December, 1), base)
	insert("ar-far", "alice", engine.NewDay(2027, time.February, 1), base)

	due, err := store.UnprocessedAdvanceRequestsThrough(ctx, engine.NewDay(2026, time.December, 31))
	require.NoError(t, err)
	require.Len(t, due, 2)
	// Oldest submission first.
	assert.Equal(t, engine.AdvanceRequestID("ar-early"), due[0].ID)
	assert.Equal(t, engine.AdvanceRequestID("ar-late"), due[1].ID)
}

// =============================================================================
// ALLOTMENT TESTS
// =============================================================================

func TestAllotments_UpsertLookupRemove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.DateAllotment(ctx, cal, day)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.UpsertDateAllotment(ctx, cal, day, 2))
	require.NoError(t, store.UpsertDateAllotment(ctx, cal, day, 5)) // replace

	got, err = store.DateAllotment(ctx, cal, day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.MaxAllotment)

	require.NoError(t, store.UpsertYearAllotment(ctx, cal, 2026, 3))
	yearly, err := store.YearAllotment(ctx, cal, 2026)
	require.NoError(t, err)
	require.NotNil(t, yearly)
	assert.Equal(t, 3, yearly.MaxAllotment)

	require.NoError(t, store.RemoveDateAllotment(ctx, cal, day))
	got, err = store.DateAllotment(ctx, cal, day)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.ErrorIs(t, store.RemoveDateAllotment(ctx, cal, day), engine.ErrNotFound)
}

// =============================================================================
// MEMBER TESTS
// =============================================================================

func TestMember_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedMember(t, store, "alice")

	m, err := store.GetMember(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, cal, m.CalendarID)
	assert.Equal(t, "5", m.Entitlements[engine.LeavePLD].String())
	assert.Equal(t, "0.5", m.Rollover.String())
	assert.Equal(t, "5.5", m.Entitlement(engine.LeavePLD).String())
	assert.Equal(t, "2", m.Entitlement(engine.LeaveSDV).String())

	_, err = store.GetMember(ctx, "nobody")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// ENGINE-OVER-SQLITE SMOKE TEST
// =============================================================================

func TestEngine_EndToEndOverSQLite(t *testing.T) {
	// The full submit/waitlist/cancel cycle against the real schema.
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertYearAllotment(ctx, cal, 2026, 1))
	alice := seedMember(t, store, "alice")
	bob := seedMember(t, store, "bob")

	eng := engine.NewEngine(store)
	eng.Now = func() time.Time {
		return time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)
	}

	first, err := eng.Submit(ctx, alice, day, engine.LeavePLD)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, first.Status)

	second, err := eng.Submit(ctx, bob, day, engine.LeavePLD)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusWaitlisted, second.Status)
	require.NotNil(t, second.WaitlistPosition)
	assert.Equal(t, 1, *second.WaitlistPosition)

	_, err = eng.Approve(ctx, first.ID)
	require.NoError(t, err)

	result, err := eng.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancellationPending, result.Booking.Status)

	confirmed, err := eng.ConfirmCancellation(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, confirmed.Booking.Status)

	// The waitlisted booking is untouched.
	after, err := store.GetBooking(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusWaitlisted, after.Status)
}
