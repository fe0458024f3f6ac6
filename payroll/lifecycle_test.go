package payroll_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
)

func TestFinalize_FreezesRunAgainstSync(t *testing.T) {
	f := newFixture(t)
	f.staff("w", payroll.PayDaily, "500", "loc-a")
	f.attend(payroll.KindStaff, "w", "2024-01-01", "present", "loc-a")

	before := f.sync("", "2024-01-01", "2024-01-31")

	run, err := f.svc.Finalize(f.ctx, tenant, before.Run.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, payroll.RunFinalized, run.Status)
	assert.Equal(t, "owner-1", run.FinalizedBy)
	require.NotNil(t, run.FinalizedAt)
	assert.True(t, fixedNow.Equal(*run.FinalizedAt))

	// New attendance and a new hire after finalize change nothing.
	f.attend(payroll.KindStaff, "w", "2024-01-02", "present", "loc-a")
	f.staff("new", payroll.PayFixed, "9000", "loc-a")

	after := f.sync("", "2024-01-01", "2024-01-31")
	assert.Equal(t, payroll.RunFinalized, after.Run.Status)
	require.Len(t, after.Items, len(before.Items))
	it := itemFor(t, after, payroll.KindStaff, "w")
	assert.True(t, d("1").Equal(it.WorkedUnits))
	assert.True(t, d("500").Equal(it.GrossPay))
}

func TestFinalize_IsOneWay(t *testing.T) {
	f := newFixture(t)
	res := f.sync("", "2024-01-01", "2024-01-31")

	_, err := f.svc.Finalize(f.ctx, tenant, res.Run.ID, "owner-1")
	require.NoError(t, err)

	_, err = f.svc.Finalize(f.ctx, tenant, res.Run.ID, "owner-2")
	assert.ErrorIs(t, err, payroll.ErrRunFinalized)
	assert.True(t, payroll.IsConflict(err))

	months := 26
	_, err = f.svc.PatchRun(f.ctx, tenant, res.Run.ID, payroll.RunPatch{MonthUnits: &months})
	assert.ErrorIs(t, err, payroll.ErrRunFinalized)
}

func TestFinalize_UnknownRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Finalize(f.ctx, tenant, "missing", "owner-1")
	assert.ErrorIs(t, err, payroll.ErrRunNotFound)
	assert.True(t, payroll.IsNotFound(err))
}

func TestFinalize_OtherTenantCannotSeeRun(t *testing.T) {
	f := newFixture(t)
	res := f.sync("", "2024-01-01", "2024-01-31")
	_, err := f.svc.Finalize(f.ctx, "clinic-2", res.Run.ID, "owner-1")
	assert.ErrorIs(t, err, payroll.ErrRunNotFound)
}

func TestPatchItem_AllowancesKeepComputedFields(t *testing.T) {
	f := newFixture(t)
	f.staff("p", payroll.PayProrated, "9000", "loc-a")
	f.attend(payroll.KindStaff, "p", "2024-01-01", "present", "loc-a")
	it := itemFor(t, f.sync("", "2024-01-01", "2024-01-31"), payroll.KindStaff, "p")

	allowances := []payroll.Allowance{
		{Label: " Travel ", Amount: d("120")},
		{Label: "Meal", Amount: d("30")},
	}
	patched, err := f.svc.PatchItem(f.ctx, tenant, it.ID, "owner-1", payroll.ItemPatch{Allowances: &allowances})
	require.NoError(t, err)

	assert.Equal(t, "Travel", patched.Allowances[0].Label)
	assert.True(t, d("150").Equal(patched.AllowancesAmount))
	assert.True(t, d("450").Equal(patched.GrossPay))
	assert.True(t, it.WorkedUnits.Equal(patched.WorkedUnits))
	assert.True(t, it.PayableBase.Equal(patched.PayableBase))
	assert.False(t, patched.IsPaid)
}

func TestPatchItem_MarkPaidAndUnpaid(t *testing.T) {
	f := newFixture(t)
	f.staff("w", payroll.PayDaily, "500", "loc-a")
	f.attend(payroll.KindStaff, "w", "2024-01-01", "present", "loc-a")
	it := itemFor(t, f.sync("", "2024-01-01", "2024-01-31"), payroll.KindStaff, "w")

	paid, by := true, "Front Desk"
	got, err := f.svc.PatchItem(f.ctx, tenant, it.ID, "owner-1", payroll.ItemPatch{IsPaid: &paid, PaidBy: &by})
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	assert.Equal(t, "Front Desk", got.PaidBy)
	require.NotNil(t, got.PaidAt)
	assert.True(t, d("500").Equal(got.GrossPay), "gross untouched without allowances")

	unpaid := false
	got, err = f.svc.PatchItem(f.ctx, tenant, it.ID, "owner-1", payroll.ItemPatch{IsPaid: &unpaid})
	require.NoError(t, err)
	assert.False(t, got.IsPaid)
	assert.Nil(t, got.PaidAt)
	assert.Empty(t, got.PaidBy)
}

func TestPatchItem_Validation(t *testing.T) {
	f := newFixture(t)
	f.staff("w", payroll.PayDaily, "500", "loc-a")
	f.attend(payroll.KindStaff, "w", "2024-01-01", "present", "loc-a")
	it := itemFor(t, f.sync("", "2024-01-01", "2024-01-31"), payroll.KindStaff, "w")

	bad := []payroll.Allowance{{Label: "  ", Amount: d("10")}}
	_, err := f.svc.PatchItem(f.ctx, tenant, it.ID, "owner-1", payroll.ItemPatch{Allowances: &bad})
	var verr *payroll.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "allowances[0].label", verr.Field)
	assert.True(t, payroll.IsClientError(err))

	_, err = f.svc.PatchItem(f.ctx, tenant, "missing", "owner-1", payroll.ItemPatch{})
	assert.ErrorIs(t, err, payroll.ErrItemNotFound)
}

func TestPatchItem_FinalizedRunRejected(t *testing.T) {
	f := newFixture(t)
	f.staff("w", payroll.PayDaily, "500", "loc-a")
	f.attend(payroll.KindStaff, "w", "2024-01-01", "present", "loc-a")
	res := f.sync("", "2024-01-01", "2024-01-31")
	it := itemFor(t, res, payroll.KindStaff, "w")

	_, err := f.svc.Finalize(f.ctx, tenant, res.Run.ID, "owner-1")
	require.NoError(t, err)

	paid := true
	_, err = f.svc.PatchItem(f.ctx, tenant, it.ID, "owner-1", payroll.ItemPatch{IsPaid: &paid})
	assert.ErrorIs(t, err, payroll.ErrRunFinalized)
}

func TestPatchRun_MonthUnitsApplyOnNextSync(t *testing.T) {
	f := newFixture(t)
	f.staff("p", payroll.PayProrated, "2600", "loc-a")
	f.attend(payroll.KindStaff, "p", "2024-01-01", "present", "loc-a")
	res := f.sync("", "2024-01-01", "2024-01-31")
	assert.True(t, d("87").Equal(itemFor(t, res, payroll.KindStaff, "p").GrossPay)) // 2600/30 = 86.67

	months, name := 26, " Priya "
	run, err := f.svc.PatchRun(f.ctx, tenant, res.Run.ID, payroll.RunPatch{MonthUnits: &months, MarkedByName: &name})
	require.NoError(t, err)
	assert.Equal(t, 26, run.MonthUnits)
	assert.Equal(t, "Priya", run.MarkedByName)

	it := itemFor(t, f.sync("", "2024-01-01", "2024-01-31"), payroll.KindStaff, "p")
	assert.Equal(t, 26, it.PeriodUnits)
	assert.True(t, d("100").Equal(it.GrossPay))
}

func TestPatchRun_RejectsNonPositiveMonthUnits(t *testing.T) {
	f := newFixture(t)
	res := f.sync("", "2024-01-01", "2024-01-31")
	zero := 0
	_, err := f.svc.PatchRun(f.ctx, tenant, res.Run.ID, payroll.RunPatch{MonthUnits: &zero})
	assert.ErrorIs(t, err, payroll.ErrValidation)
}

func TestListRuns(t *testing.T) {
	f := newFixture(t)
	f.sync("", "2024-01-01", "2024-01-31")
	feb := f.sync("", "2024-02-01", "2024-02-29")
	_, err := f.svc.Finalize(f.ctx, tenant, feb.Run.ID, "owner-1")
	require.NoError(t, err)

	all, err := f.svc.ListRuns(f.ctx, tenant, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, feb.Run.ID, all[0].ID, "newest period first")

	drafts, err := f.svc.ListRuns(f.ctx, tenant, payroll.RunDraft)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	_, err = f.svc.ListRuns(f.ctx, tenant, "archived")
	assert.ErrorIs(t, err, payroll.ErrValidation)
}
