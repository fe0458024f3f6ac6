package payroll

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/calendar"
)

// =============================================================================
// UNIT CALCULATOR - attendance + leave facts -> unit buckets
// =============================================================================

var (
	unitZero = decimal.Zero
	unitHalf = decimal.NewFromFloat(0.5)
	unitFull = decimal.NewFromInt(1)
)

// Attendance statuses understood by AttendanceUnits.
const (
	StatusPresent     = "present"
	StatusPresentFull = "present_full"
	StatusPresentHalf = "present_half"
	StatusHalfDay     = "half_day"
	StatusAbsent      = "absent"
	StatusNoShow      = "no_show"
)

// DayAttendance is the Unit Calculator's view of one attendance record.
type DayAttendance struct {
	Units      decimal.Decimal // 0, 0.5 or 1.0
	Status     string
	LocationID string
}

// DayLeave is the Unit Calculator's view of one day of approved leave.
type DayLeave struct {
	Units     decimal.Decimal // 0.5 or 1.0
	IsPaid    bool
	LeaveType string
}

// AttendanceMap is keyed by ISO date.
type AttendanceMap map[string]DayAttendance

// LeaveMap is keyed by ISO date.
type LeaveMap map[string]DayLeave

// Units is the result of ComputeUnits.
type Units struct {
	Worked      decimal.Decimal
	PaidLeave   decimal.Decimal
	UnpaidLeave decimal.Decimal
	Absent      decimal.Decimal
	Breakdown   map[string]decimal.Decimal
}

// ComputeUnits walks every day of r once and buckets it.
//
// Per day: paid leave, else unpaid leave, else attendance units, else an
// explicit absent record. A half-day leave also credits the worked part of
// the day, capped at 1.0 in total. Days with no record count nowhere.
func ComputeUnits(attendance AttendanceMap, leave LeaveMap, r calendar.Range) Units {
	u := Units{
		Worked:      decimal.Zero,
		PaidLeave:   decimal.Zero,
		UnpaidLeave: decimal.Zero,
		Absent:      decimal.Zero,
		Breakdown:   make(map[string]decimal.Decimal),
	}

	first, last := r.Start.String(), r.End.String()
	for _, key := range recordedDays(attendance, leave) {
		if key < first || key > last {
			continue
		}
		att, hasAtt := attendance[key]
		lv, hasLeave := leave[key]

		switch {
		case hasLeave:
			if lv.IsPaid {
				u.PaidLeave = u.PaidLeave.Add(lv.Units)
			} else {
				u.UnpaidLeave = u.UnpaidLeave.Add(lv.Units)
			}
			u.Breakdown[lv.LeaveType] = u.Breakdown[lv.LeaveType].Add(lv.Units)

			if lv.Units.LessThan(unitFull) && hasAtt && att.Units.IsPositive() {
				u.Worked = u.Worked.Add(decimal.Min(att.Units, unitFull.Sub(lv.Units)))
			}

		case hasAtt && att.Units.IsPositive():
			u.Worked = u.Worked.Add(att.Units)

		case hasAtt && att.Status == StatusAbsent:
			u.Absent = u.Absent.Add(unitFull)
		}
	}

	return u
}

// AttendanceUnits converts a stored record's status and hours into a unit
// value and a normalized status.
//
// Known statuses map directly; anything else derives from hours against
// fullDayHours. no_show is reported as absent.
func AttendanceUnits(status string, hours, fullDayHours float64) (decimal.Decimal, string) {
	s := strings.ToLower(strings.TrimSpace(status))
	switch s {
	case StatusPresent, StatusPresentFull:
		return unitFull, s
	case StatusPresentHalf, StatusHalfDay:
		return unitHalf, s
	case StatusAbsent, StatusNoShow:
		return unitZero, StatusAbsent
	}

	switch {
	case fullDayHours > 0 && hours >= fullDayHours:
		return unitFull, s
	case hours > 0:
		return unitHalf, s
	default:
		return unitZero, s
	}
}

// LeaveUnits is 0.5 for half-day requests, else 1.0.
func LeaveUnits(halfDay bool) decimal.Decimal {
	if halfDay {
		return unitHalf
	}
	return unitFull
}

// recordedDays lists the dates present in either map. ISO keys compare in
// calendar order.
func recordedDays(attendance AttendanceMap, leave LeaveMap) []string {
	days := make([]string, 0, len(attendance)+len(leave))
	for k := range attendance {
		days = append(days, k)
	}
	for k := range leave {
		if _, dup := attendance[k]; !dup {
			days = append(days, k)
		}
	}
	return days
}
