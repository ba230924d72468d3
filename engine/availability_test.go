package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-scheduler/engine"
)

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestClassify_WindowEdges(t *testing.T) {
	eng, _ := newFixture(t, 10)
	ctx := context.Background()

	// Blackout date.
	avail, err := eng.Classifier.Classify(ctx, testCalendar, fixedToday.AddDays(1), fixedToday)
	require.NoError(t, err)
	assert.Equal(t, engine.Unavailable, avail)

	// Advance date is always available regardless of capacity records.
	avail, err = eng.Classifier.Classify(ctx, testCalendar, engine.AdvanceDate(fixedToday), fixedToday)
	require.NoError(t, err)
	assert.Equal(t, engine.Available, avail)

	// Past the advance date.
	avail, err = eng.Classifier.Classify(ctx, testCalendar, engine.AdvanceDate(fixedToday).AddDays(1), fixedToday)
	require.NoError(t, err)
	assert.Equal(t, engine.Unavailable, avail)
}

func TestClassify_ZeroCapacityUnavailable(t *testing.T) {
	// Capacity zero even though the date sits inside the normal window.
	eng, mem := newFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, mem.UpsertDateAllotment(ctx, testCalendar, bookable, 0))

	avail, err := eng.Classifier.Classify(ctx, testCalendar, bookable, fixedToday)
	require.NoError(t, err)
	assert.Equal(t, engine.Unavailable, avail)

	selectable, err := eng.Classifier.IsSelectable(ctx, testCalendar, bookable, fixedToday)
	require.NoError(t, err)
	assert.False(t, selectable)
}

func TestClassify_Thresholds(t *testing.T) {
	// GIVEN: capacity 10
	// THEN: limited at 7 active (0.7 * cap), full at 10

	eng, mem := newFixture(t, 10)
	ctx := context.Background()

	classify := func() engine.Availability {
		avail, err := eng.Classifier.Classify(ctx, testCalendar, bookable, fixedToday)
		require.NoError(t, err)
		return avail
	}

	assert.Equal(t, engine.Available, classify())

	// 6 active: still available.
	for i := 0; i < 6; i++ {
		m := addMember(mem, string(rune('a'+i)), 5, 2)
		_, err := eng.Submit(ctx, m, bookable, engine.LeavePLD)
		require.NoError(t, err)
	}
	assert.Equal(t, engine.Available, classify())

	// 7th active crosses the limited threshold.
	m7 := addMember(mem, "m7", 5, 2)
	_, err := eng.Submit(ctx, m7, bookable, engine.LeavePLD)
	require.NoError(t, err)
	assert.Equal(t, engine.Limited, classify())

	// Fill to capacity.
	for i := 8; i <= 10; i++ {
		m := addMember(mem, string(rune('a'+i)), 5, 2)
		_, err := eng.Submit(ctx, m, bookable, engine.LeavePLD)
		require.NoError(t, err)
	}
	assert.Equal(t, engine.Full, classify())

	// Full is still selectable: joining the waitlist is allowed.
	selectable, err := eng.Classifier.IsSelectable(ctx, testCalendar, bookable, fixedToday)
	require.NoError(t, err)
	assert.True(t, selectable)
}

func TestClassify_WaitlistedNeverHoldSeats(t *testing.T) {
	// Waitlisted bookings are not part of the active count: once the seat
	// holder cancels, the freed capacity shows again even though the queue
	// is non-empty.
	eng, mem := newFixture(t, 1)
	ctx := context.Background()

	holder := addMember(mem, "holder", 5, 2)
	hb, err := eng.Submit(ctx, holder, bookable, engine.LeavePLD)
	require.NoError(t, err)

	waiter := addMember(mem, "waiter", 5, 2)
	_, err = eng.Submit(ctx, waiter, bookable, engine.LeavePLD)
	require.NoError(t, err)

	avail, err := eng.Classifier.Classify(ctx, testCalendar, bookable, fixedToday)
	require.NoError(t, err)
	assert.Equal(t, engine.Full, avail)

	_, err = eng.Cancel(ctx, hb.ID)
	require.NoError(t, err)

	avail, err = eng.Classifier.Classify(ctx, testCalendar, bookable, fixedToday)
	require.NoError(t, err)
	assert.Equal(t, engine.Available, avail)
}

func TestClassify_CancelReleasesSeatDespiteQueue(t *testing.T) {
	// GIVEN: capacity 2 with two pending holders and one waitlisted member
	// WHEN: one pending holder cancels
	// THEN: active drops to 1 < cap and the date moves from full to available

	eng, mem := newFixture(t, 2)
	ctx := context.Background()

	first := addMember(mem, "first", 5, 2)
	fb, err := eng.Submit(ctx, first, bookable, engine.LeavePLD)
	require.NoError(t, err)
	require.Equal(t, engine.StatusPending, fb.Status)

	second := addMember(mem, "second", 5, 2)
	sb, err := eng.Submit(ctx, second, bookable, engine.LeavePLD)
	require.NoError(t, err)
	require.Equal(t, engine.StatusPending, sb.Status)

	waiter := addMember(mem, "waiter", 5, 2)
	wb, err := eng.Submit(ctx, waiter, bookable, engine.LeavePLD)
	require.NoError(t, err)
	require.Equal(t, engine.StatusWaitlisted, wb.Status)

	res, err := eng.Cancel(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.Available, res.Availability)

	// The queue itself is untouched.
	got, err := mem.GetBooking(ctx, wb.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusWaitlisted, got.Status)
}
