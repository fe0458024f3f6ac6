package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/payroll-engine/calendar"
	"github.com/warp/payroll-engine/payroll"
)

// ErrDuplicateRecord is returned when a source record ID is reused for a
// different row.
var ErrDuplicateRecord = errors.New("duplicate record")

// =============================================================================
// SOURCE READS (payroll.Source interface)
// =============================================================================

// ListActiveStaff returns active staff ordered by name.
func (q *queries) ListActiveStaff(ctx context.Context, tenantID string) ([]payroll.Staff, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, tenant_id, name, pay_method, pay_rate, home_location_id, active
		FROM staff
		WHERE tenant_id = ? AND active = TRUE
		ORDER BY name, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []payroll.Staff
	for rows.Next() {
		var st payroll.Staff
		var method string
		var rate sql.NullString
		if err := rows.Scan(&st.ID, &st.TenantID, &st.Name, &method, &rate, &st.HomeLocationID, &st.Active); err != nil {
			return nil, err
		}
		st.PayMethod = payroll.PayMethod(method)
		st.PayRate = parseNullDecimal(rate)
		staff = append(staff, st)
	}
	return staff, rows.Err()
}

// ListActiveLocums returns active locums ordered by name.
func (q *queries) ListActiveLocums(ctx context.Context, tenantID string) ([]payroll.Locum, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, tenant_id, name, daily_rate, active
		FROM locums
		WHERE tenant_id = ? AND active = TRUE
		ORDER BY name, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locums []payroll.Locum
	for rows.Next() {
		var lc payroll.Locum
		var rate sql.NullString
		if err := rows.Scan(&lc.ID, &lc.TenantID, &lc.Name, &rate, &lc.Active); err != nil {
			return nil, err
		}
		lc.DailyRate = parseNullDecimal(rate)
		locums = append(locums, lc)
	}
	return locums, rows.Err()
}

// ListAttendance returns attendance dated within r.
func (q *queries) ListAttendance(ctx context.Context, tenantID string, r calendar.Range) ([]payroll.Attendance, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, tenant_id, staff_id, locum_id, date, total_hours, status, locum_status, location_id
		FROM attendance
		WHERE tenant_id = ? AND date >= ? AND date <= ?
		ORDER BY date, person_key
	`, tenantID, r.Start.String(), r.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []payroll.Attendance
	for rows.Next() {
		var a payroll.Attendance
		var staffID, locumID sql.NullString
		var date string
		if err := rows.Scan(&a.ID, &a.TenantID, &staffID, &locumID, &date,
			&a.TotalHours, &a.Status, &a.LocumStatus, &a.LocationID); err != nil {
			return nil, err
		}
		if staffID.Valid {
			a.Person = payroll.PersonRef{Kind: payroll.KindStaff, ID: staffID.String}
		} else {
			a.Person = payroll.PersonRef{Kind: payroll.KindLocum, ID: locumID.String}
		}
		if a.Date, err = calendar.ParseDate(date); err != nil {
			return nil, fmt.Errorf("corrupt attendance %s: %w", a.ID, err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

// ListLeaveTypes returns the tenant's leave types.
func (q *queries) ListLeaveTypes(ctx context.Context, tenantID string) ([]payroll.LeaveType, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT tenant_id, name, is_paid FROM leave_types WHERE tenant_id = ? ORDER BY name",
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []payroll.LeaveType
	for rows.Next() {
		var lt payroll.LeaveType
		if err := rows.Scan(&lt.TenantID, &lt.Name, &lt.IsPaid); err != nil {
			return nil, err
		}
		types = append(types, lt)
	}
	return types, rows.Err()
}

// ListApprovedLeave returns approved requests overlapping r.
func (q *queries) ListApprovedLeave(ctx context.Context, tenantID string, r calendar.Range) ([]payroll.LeaveRequest, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, tenant_id, staff_id, start_date, end_date, leave_type, half_day, status
		FROM leave_requests
		WHERE tenant_id = ? AND status = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date, id
	`, tenantID, payroll.LeaveApproved, r.End.String(), r.Start.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []payroll.LeaveRequest
	for rows.Next() {
		var lr payroll.LeaveRequest
		var start, end, status string
		if err := rows.Scan(&lr.ID, &lr.TenantID, &lr.StaffID, &start, &end,
			&lr.LeaveType, &lr.HalfDay, &status); err != nil {
			return nil, err
		}
		if lr.Period, err = calendar.ParseRange(start, end); err != nil {
			return nil, fmt.Errorf("corrupt leave request %s: %w", lr.ID, err)
		}
		lr.Status = payroll.LeaveStatus(status)
		requests = append(requests, lr)
	}
	return requests, rows.Err()
}

// =============================================================================
// SOURCE WRITES
// =============================================================================
// Entity CRUD lives in other services; these writers exist for fixtures,
// seeding and tests.

// SaveStaff upserts a staff pay profile.
func (s *Store) SaveStaff(ctx context.Context, st payroll.Staff) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, tenant_id, name, pay_method, pay_rate, home_location_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			pay_method = excluded.pay_method,
			pay_rate = excluded.pay_rate,
			home_location_id = excluded.home_location_id,
			active = excluded.active
	`,
		st.ID, st.TenantID, st.Name, st.PayMethod, nullDecimal(st.PayRate),
		st.HomeLocationID, st.Active, formatTime(time.Now()),
	)
	return err
}

// SaveLocum upserts a locum.
func (s *Store) SaveLocum(ctx context.Context, lc payroll.Locum) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locums (id, tenant_id, name, daily_rate, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			daily_rate = excluded.daily_rate,
			active = excluded.active
	`,
		lc.ID, lc.TenantID, lc.Name, nullDecimal(lc.DailyRate), lc.Active, formatTime(time.Now()),
	)
	return err
}

// SaveAttendance upserts the record for (person, date).
func (s *Store) SaveAttendance(ctx context.Context, a payroll.Attendance) error {
	var staffID, locumID sql.NullString
	if a.Person.Kind == payroll.KindLocum {
		locumID = nullString(a.Person.ID)
	} else {
		staffID = nullString(a.Person.ID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (id, tenant_id, person_key, staff_id, locum_id, date, total_hours,
			status, locum_status, location_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, person_key, date) DO UPDATE SET
			total_hours = excluded.total_hours,
			status = excluded.status,
			locum_status = excluded.locum_status,
			location_id = excluded.location_id
	`,
		a.ID, a.TenantID, a.Person.Key(), staffID, locumID, a.Date.String(), a.TotalHours,
		a.Status, a.LocumStatus, a.LocationID, formatTime(time.Now()),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("attendance %s: %w", a.ID, ErrDuplicateRecord)
	}
	return err
}

// SaveLeaveType upserts a leave type.
func (s *Store) SaveLeaveType(ctx context.Context, lt payroll.LeaveType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_types (tenant_id, name, is_paid) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, name) DO UPDATE SET is_paid = excluded.is_paid
	`, lt.TenantID, lt.Name, lt.IsPaid)
	return err
}

// SaveLeaveRequest upserts a leave request.
func (s *Store) SaveLeaveRequest(ctx context.Context, lr payroll.LeaveRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_requests (id, tenant_id, staff_id, start_date, end_date, leave_type,
			half_day, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			leave_type = excluded.leave_type,
			half_day = excluded.half_day,
			status = excluded.status
	`,
		lr.ID, lr.TenantID, lr.StaffID, lr.Period.Start.String(), lr.Period.End.String(),
		lr.LeaveType, lr.HalfDay, lr.Status, formatTime(time.Now()),
	)
	return err
}
