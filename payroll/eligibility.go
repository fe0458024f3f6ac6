package payroll

// =============================================================================
// ELIGIBILITY FILTER - who belongs in a run, and which attendance counts
// =============================================================================

// Candidate is the subject under consideration for a run.
type Candidate struct {
	Person         PersonRef
	HomeLocationID string // staff only
}

// Scope is the outcome of SelectScope.
type Scope struct {
	Include    bool
	Attendance AttendanceMap
}

// SelectScope decides inclusion and the attendance subset to credit.
//
// Salaried (fixed, prorated): a global run includes everyone; a located run
// includes only staff homed at the target. Attendance is never filtered, so
// salary is credited for every location worked.
//
// Daily (and all locums): attendance is filtered to the target location.
// The person is included if anything remains, or if they already have an
// item in the run.
func SelectScope(c Candidate, method PayMethod, targetLocation string, attendance AttendanceMap, hasItem bool) Scope {
	if c.Person.Kind == KindLocum {
		method = PayDaily
	}

	if method.Salaried() {
		include := targetLocation == "" || c.HomeLocationID == targetLocation
		return Scope{Include: include, Attendance: attendance}
	}

	scoped := filterByLocation(attendance, targetLocation)
	return Scope{Include: len(scoped) > 0 || hasItem, Attendance: scoped}
}

func filterByLocation(attendance AttendanceMap, locationID string) AttendanceMap {
	if locationID == "" {
		return attendance
	}
	out := make(AttendanceMap, len(attendance))
	for date, a := range attendance {
		if a.LocationID == locationID {
			out[date] = a
		}
	}
	return out
}
