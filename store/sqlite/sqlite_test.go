package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/calendar"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func january(t *testing.T) payroll.RunKey {
	r, err := calendar.ParseRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	return payroll.RunKey{TenantID: "clinic-1", LocationScope: payroll.GlobalScope, Period: r}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testItem(run *payroll.Run, staffID string) payroll.Item {
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	return payroll.Item{
		ID:               "item-" + staffID,
		RunID:            run.ID,
		TenantID:         run.TenantID,
		Person:           payroll.PersonRef{Kind: payroll.KindStaff, ID: staffID},
		PersonName:       "Staff " + staffID,
		PayMethod:        payroll.PayDaily,
		BaseRate:         dec("500"),
		WorkedUnits:      dec("2"),
		PaidLeaveUnits:   dec("1"),
		UnpaidLeaveUnits: decimal.Zero,
		AbsentUnits:      decimal.Zero,
		PeriodUnits:      30,
		PayableBase:      dec("1500"),
		Allowances:       []payroll.Allowance{{Label: "Travel", Amount: dec("200")}},
		AllowancesAmount: dec("200"),
		GrossPay:         dec("1700"),
		Breakdown:        map[string]decimal.Decimal{"Annual": dec("1")},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// =============================================================================
// RUN TESTS
// =============================================================================

func TestGetOrCreateRun_SameKeyReturnsSameRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := january(t)

	first, err := store.GetOrCreateRun(ctx, key, 30)
	require.NoError(t, err)
	assert.Equal(t, payroll.RunDraft, first.Status)
	assert.Equal(t, 30, first.MonthUnits)

	second, err := store.GetOrCreateRun(ctx, key, 26)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 30, second.MonthUnits, "existing run keeps its month units")
}

func TestGetOrCreateRun_ConcurrentCallsCreateOneRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := january(t)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := store.GetOrCreateRun(ctx, key, 30)
			if assert.NoError(t, err) {
				ids[i] = run.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	runs, err := store.ListRuns(ctx, key.TenantID, "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestGetOrCreateRun_ScopesAreDistinct(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := january(t)

	global, err := store.GetOrCreateRun(ctx, key, 30)
	require.NoError(t, err)

	key.LocationScope = "loc-a"
	located, err := store.GetOrCreateRun(ctx, key, 30)
	require.NoError(t, err)
	assert.NotEqual(t, global.ID, located.ID)
}

func TestGetRun_OtherTenantNotVisible(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run, err := store.GetOrCreateRun(ctx, january(t), 30)
	require.NoError(t, err)

	got, err := store.GetRun(ctx, "clinic-2", run.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateRun_UnknownRun(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateRun(context.Background(), payroll.Run{ID: "missing", TenantID: "clinic-1"})
	assert.ErrorIs(t, err, payroll.ErrRunNotFound)
}

// =============================================================================
// ITEM TESTS
// =============================================================================

func TestUpsertItems_RoundTripAndKeyedByPerson(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run, err := store.GetOrCreateRun(ctx, january(t), 30)
	require.NoError(t, err)

	item := testItem(run, "st-1")
	require.NoError(t, store.UpsertItems(ctx, []payroll.Item{item}))

	// Same person, new row ID: the stored ID is kept and values are refreshed.
	refreshed := item
	refreshed.ID = "another-id"
	refreshed.WorkedUnits = dec("3")
	refreshed.PayableBase = dec("2000")
	refreshed.GrossPay = dec("2200")
	require.NoError(t, store.UpsertItems(ctx, []payroll.Item{refreshed}))

	items, err := store.ListItems(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	got := items[0]
	assert.Equal(t, "item-st-1", got.ID)
	assert.Equal(t, payroll.PersonRef{Kind: payroll.KindStaff, ID: "st-1"}, got.Person)
	assert.True(t, dec("3").Equal(got.WorkedUnits))
	assert.True(t, dec("2000").Equal(got.PayableBase))
	assert.True(t, dec("2200").Equal(got.GrossPay))
	require.Len(t, got.Allowances, 1)
	assert.Equal(t, "Travel", got.Allowances[0].Label)
	assert.True(t, dec("200").Equal(got.Allowances[0].Amount))
	assert.True(t, dec("1").Equal(got.Breakdown["Annual"]))
}

func TestUpsertItems_FailureWritesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run, err := store.GetOrCreateRun(ctx, january(t), 30)
	require.NoError(t, err)

	good := testItem(run, "st-1")
	bad := testItem(run, "st-2")
	bad.Person.Kind = "contractor"

	err = store.UpsertItems(ctx, []payroll.Item{good, bad})
	require.Error(t, err)

	items, err := store.ListItems(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, items, "batch must be all-or-nothing")
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(repo payroll.Repository) error {
		if _, err := repo.GetOrCreateRun(ctx, january(t), 30); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	runs, err := store.ListRuns(ctx, "clinic-1", "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestUpdateItem_OnlyOperatorFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run, err := store.GetOrCreateRun(ctx, january(t), 30)
	require.NoError(t, err)
	item := testItem(run, "st-1")
	require.NoError(t, store.UpsertItems(ctx, []payroll.Item{item}))

	paidAt := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	item.Allowances = nil
	item.AllowancesAmount = decimal.Zero
	item.GrossPay = dec("1500")
	item.IsPaid = true
	item.PaidAt = &paidAt
	item.PaidBy = "owner"
	item.WorkedUnits = dec("99") // ignored by UpdateItem
	require.NoError(t, store.UpdateItem(ctx, item))

	got, err := store.GetItem(ctx, "clinic-1", item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Allowances)
	assert.True(t, dec("1500").Equal(got.GrossPay))
	assert.True(t, got.IsPaid)
	require.NotNil(t, got.PaidAt)
	assert.True(t, paidAt.Equal(*got.PaidAt))
	assert.Equal(t, "owner", got.PaidBy)
	assert.True(t, dec("2").Equal(got.WorkedUnits))
}

// =============================================================================
// SOURCE TESTS
// =============================================================================

func TestSource_TenantAndRangeScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rate := dec("9000")

	require.NoError(t, store.SaveStaff(ctx, payroll.Staff{ID: "st-1", TenantID: "clinic-1", Name: "Ana", PayMethod: payroll.PayFixed, PayRate: &rate, Active: true}))
	require.NoError(t, store.SaveStaff(ctx, payroll.Staff{ID: "st-2", TenantID: "clinic-1", Name: "Ben", PayMethod: payroll.PayDaily, Active: false}))
	require.NoError(t, store.SaveStaff(ctx, payroll.Staff{ID: "st-3", TenantID: "clinic-2", Name: "Cy", PayMethod: payroll.PayDaily, Active: true}))

	staff, err := store.ListActiveStaff(ctx, "clinic-1")
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.Equal(t, "st-1", staff[0].ID)
	require.NotNil(t, staff[0].PayRate)
	assert.True(t, rate.Equal(*staff[0].PayRate))

	ref := payroll.PersonRef{Kind: payroll.KindStaff, ID: "st-1"}
	for _, d := range []string{"2023-12-31", "2024-01-01", "2024-01-31", "2024-02-01"} {
		require.NoError(t, store.SaveAttendance(ctx, payroll.Attendance{
			ID: "att-" + d, TenantID: "clinic-1", Person: ref, Date: calendar.MustParseDate(d),
			TotalHours: 8, Status: "present", LocationID: "loc-a",
		}))
	}

	r := january(t).Period
	att, err := store.ListAttendance(ctx, "clinic-1", r)
	require.NoError(t, err)
	assert.Len(t, att, 2)

	leaveRange, _ := calendar.ParseRange("2023-12-30", "2024-01-02")
	require.NoError(t, store.SaveLeaveRequest(ctx, payroll.LeaveRequest{ID: "lv-1", TenantID: "clinic-1", StaffID: "st-1", Period: leaveRange, LeaveType: "Annual", Status: payroll.LeaveApproved}))
	require.NoError(t, store.SaveLeaveRequest(ctx, payroll.LeaveRequest{ID: "lv-2", TenantID: "clinic-1", StaffID: "st-1", Period: leaveRange, LeaveType: "Annual", Status: payroll.LeavePending}))

	leave, err := store.ListApprovedLeave(ctx, "clinic-1", r)
	require.NoError(t, err)
	require.Len(t, leave, 1)
	assert.Equal(t, "lv-1", leave[0].ID)
}

func TestSaveAttendance_OnePerPersonAndDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ref := payroll.PersonRef{Kind: payroll.KindLocum, ID: "lc-1"}
	day := calendar.MustParseDate("2024-01-02")

	require.NoError(t, store.SaveAttendance(ctx, payroll.Attendance{ID: "a-1", TenantID: "clinic-1", Person: ref, Date: day, LocumStatus: "present"}))
	require.NoError(t, store.SaveAttendance(ctx, payroll.Attendance{ID: "a-2", TenantID: "clinic-1", Person: ref, Date: day, LocumStatus: "no_show"}))

	att, err := store.ListAttendance(ctx, "clinic-1", calendar.Range{Start: day, End: day})
	require.NoError(t, err)
	require.Len(t, att, 1)
	assert.Equal(t, "no_show", att[0].LocumStatus)
	assert.Equal(t, ref, att[0].Person)
}
