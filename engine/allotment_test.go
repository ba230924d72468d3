package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-scheduler/engine"
	"github.com/warp/leave-scheduler/engine/store"
)

// =============================================================================
// CAPACITY PRECEDENCE TESTS
// =============================================================================

func TestMaxAllotment_Precedence(t *testing.T) {
	// date override > year default > zero

	mem := store.NewMemory()
	ledger := engine.NewCapacityLedger(mem)
	ctx := context.Background()
	date := bookable

	// No records at all.
	max, err := ledger.MaxAllotment(ctx, testCalendar, date)
	require.NoError(t, err)
	assert.Equal(t, 0, max)

	// Year default applies to every date in the year.
	require.NoError(t, ledger.SetYearDefault(ctx, testCalendar, 2026, 4))
	max, err = ledger.MaxAllotment(ctx, testCalendar, date)
	require.NoError(t, err)
	assert.Equal(t, 4, max)

	// Date override wins over the year default.
	require.NoError(t, ledger.ApplyOverride(ctx, testCalendar, date, 1))
	max, err = ledger.MaxAllotment(ctx, testCalendar, date)
	require.NoError(t, err)
	assert.Equal(t, 1, max)

	// An override of zero closes the date despite the year default.
	require.NoError(t, ledger.ApplyOverride(ctx, testCalendar, date, 0))
	max, err = ledger.MaxAllotment(ctx, testCalendar, date)
	require.NoError(t, err)
	assert.Equal(t, 0, max)

	// Removing the override reverts to the year default.
	require.NoError(t, ledger.RemoveOverride(ctx, testCalendar, date))
	max, err = ledger.MaxAllotment(ctx, testCalendar, date)
	require.NoError(t, err)
	assert.Equal(t, 4, max)

	// Other dates are untouched throughout.
	max, err = ledger.MaxAllotment(ctx, testCalendar, date.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, 4, max)
}

func TestMaxAllotment_YearBoundary(t *testing.T) {
	mem := store.NewMemory()
	ledger := engine.NewCapacityLedger(mem)
	ctx := context.Background()

	require.NoError(t, ledger.SetYearDefault(ctx, testCalendar, 2026, 3))

	max, err := ledger.MaxAllotment(ctx, testCalendar, engine.EndOfYear(2026))
	require.NoError(t, err)
	assert.Equal(t, 3, max)

	// Jan 1 of the next year has no default.
	max, err = ledger.MaxAllotment(ctx, testCalendar, engine.StartOfYear(2027))
	require.NoError(t, err)
	assert.Equal(t, 0, max)
}

func TestApplyOverride_RejectsNegative(t *testing.T) {
	mem := store.NewMemory()
	ledger := engine.NewCapacityLedger(mem)
	ctx := context.Background()

	require.Error(t, ledger.ApplyOverride(ctx, testCalendar, bookable, -1))
	require.Error(t, ledger.SetYearDefault(ctx, testCalendar, 2026, -2))
}

func TestRemoveOverride_MissingIsNotFound(t *testing.T) {
	mem := store.NewMemory()
	ledger := engine.NewCapacityLedger(mem)

	err := ledger.RemoveOverride(context.Background(), testCalendar, bookable)
	require.ErrorIs(t, err, engine.ErrNotFound)
}
