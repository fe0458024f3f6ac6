package payroll_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/payroll-engine/payroll"
)

var staffA = payroll.Candidate{
	Person:         payroll.PersonRef{Kind: payroll.KindStaff, ID: "st-1"},
	HomeLocationID: "loc-a",
}

func attendanceAtB() payroll.AttendanceMap {
	return payroll.AttendanceMap{
		"2024-01-01": present("loc-b"),
		"2024-01-02": present("loc-b"),
	}
}

func TestSelectScope_SalariedGlobalIncludesEveryone(t *testing.T) {
	for _, m := range []payroll.PayMethod{payroll.PayFixed, payroll.PayProrated} {
		s := payroll.SelectScope(staffA, m, "", attendanceAtB(), false)
		assert.True(t, s.Include, m)
		assert.Len(t, s.Attendance, 2)
	}
}

func TestSelectScope_SalariedLocatedRunUsesHomeLocation(t *testing.T) {
	// Home A, worked at B, run scoped to A: included with B attendance intact.
	s := payroll.SelectScope(staffA, payroll.PayProrated, "loc-a", attendanceAtB(), false)
	assert.True(t, s.Include)
	assert.Len(t, s.Attendance, 2)

	s = payroll.SelectScope(staffA, payroll.PayProrated, "loc-b", attendanceAtB(), false)
	assert.False(t, s.Include, "run at B excludes staff homed at A")
}

func TestSelectScope_DailyFiltersToLocation(t *testing.T) {
	s := payroll.SelectScope(staffA, payroll.PayDaily, "loc-a", attendanceAtB(), false)
	assert.False(t, s.Include, "no attendance at A")
	assert.Empty(t, s.Attendance)

	s = payroll.SelectScope(staffA, payroll.PayDaily, "loc-b", attendanceAtB(), false)
	assert.True(t, s.Include)
	assert.Len(t, s.Attendance, 2)
}

func TestSelectScope_DailyKeepsExistingItem(t *testing.T) {
	s := payroll.SelectScope(staffA, payroll.PayDaily, "loc-a", attendanceAtB(), true)
	assert.True(t, s.Include)
	assert.Empty(t, s.Attendance, "amount is still location-filtered")
}

func TestSelectScope_DailyGlobalUnfiltered(t *testing.T) {
	att := attendanceAtB()
	att["2024-01-03"] = present("loc-a")
	s := payroll.SelectScope(staffA, payroll.PayDaily, "", att, false)
	assert.True(t, s.Include)
	assert.Len(t, s.Attendance, 3)
}

func TestSelectScope_LocumAlwaysDaily(t *testing.T) {
	locum := payroll.Candidate{Person: payroll.PersonRef{Kind: payroll.KindLocum, ID: "lc-1"}}
	s := payroll.SelectScope(locum, payroll.PayFixed, "loc-a", attendanceAtB(), false)
	assert.False(t, s.Include)
}
