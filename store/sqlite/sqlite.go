/*
Package sqlite provides a SQLite-backed implementation of payroll.TxRepository.

PURPOSE:
  Persists payroll runs and items, and serves the tenant-scoped source
  records (staff, locums, attendance, leave) the engine reads. The same
  statements run on PostgreSQL with only placeholder differences.

KEY TABLES:
  staff, locums:   Pay profiles (read-only to the engine)
  attendance:      One row per (person, date)
  leave_types:     Leave name -> is_paid
  leave_requests:  Continuous leave spans
  payroll_runs:    UNIQUE(tenant_id, location_scope, start_date, end_date)
  payroll_items:   UNIQUE(run_id, person_key)

CONCURRENCY:
  Get-or-create is INSERT ... ON CONFLICT DO NOTHING followed by a read, so
  concurrent syncs of the same key never create two runs. The pool is
  capped at one connection: SQLite has a single writer, and ":memory:"
  databases are private to a connection.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := payroll.NewService(store, logger, payroll.Options{})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - payroll/store.go: Interface definitions
  - source.go: Source record reads and writes
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/calendar"
	"github.com/warp/payroll-engine/payroll"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements payroll.Repository over a queryer.
type queries struct {
	q queryer
}

var _ payroll.Repository = (*queries)(nil)

// Store implements payroll.TxRepository using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var _ payroll.TxRepository = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		pay_method TEXT NOT NULL,
		pay_rate TEXT,
		home_location_id TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_staff_tenant_active
		ON staff(tenant_id, active);

	CREATE TABLE IF NOT EXISTS locums (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		daily_rate TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_locums_tenant_active
		ON locums(tenant_id, active);

	-- One record per person per date
	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		person_key TEXT NOT NULL,
		staff_id TEXT,
		locum_id TEXT,
		date TEXT NOT NULL,
		total_hours REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT '',
		locum_status TEXT NOT NULL DEFAULT '',
		location_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		CHECK ((staff_id IS NULL) <> (locum_id IS NULL)),
		UNIQUE(tenant_id, person_key, date)
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_tenant_date
		ON attendance(tenant_id, date);

	CREATE TABLE IF NOT EXISTS leave_types (
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (tenant_id, name)
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		staff_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		half_day BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_tenant_status
		ON leave_requests(tenant_id, status, start_date, end_date);

	-- Natural key: at most one run per (tenant, scope, start, end)
	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		location_scope TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		month_units INTEGER NOT NULL DEFAULT 30,
		marked_by_name TEXT NOT NULL DEFAULT '',
		finalized_at TEXT,
		finalized_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(tenant_id, location_scope, start_date, end_date)
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_runs_tenant_status
		ON payroll_runs(tenant_id, status);

	CREATE TABLE IF NOT EXISTS payroll_items (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES payroll_runs(id) ON DELETE CASCADE,
		tenant_id TEXT NOT NULL,
		person_key TEXT NOT NULL,
		staff_id TEXT,
		locum_id TEXT,
		person_name TEXT NOT NULL DEFAULT '',
		pay_method TEXT NOT NULL,
		base_rate TEXT NOT NULL,
		worked_units TEXT NOT NULL,
		paid_leave_units TEXT NOT NULL,
		unpaid_leave_units TEXT NOT NULL,
		absent_units TEXT NOT NULL,
		period_units INTEGER NOT NULL,
		payable_base TEXT NOT NULL,
		allowances_json TEXT NOT NULL DEFAULT '[]',
		allowances_amount TEXT NOT NULL DEFAULT '0',
		gross_pay TEXT NOT NULL,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at TEXT,
		paid_by TEXT NOT NULL DEFAULT '',
		breakdown_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK ((staff_id IS NULL) <> (locum_id IS NULL)),
		UNIQUE(run_id, person_key)
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_items_tenant
		ON payroll_items(tenant_id, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.Repository) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// UpsertItems writes the batch atomically when called outside WithTx.
func (s *Store) UpsertItems(ctx context.Context, items []payroll.Item) error {
	return s.WithTx(ctx, func(r payroll.Repository) error {
		return r.UpsertItems(ctx, items)
	})
}

// =============================================================================
// PAYROLL RUNS
// =============================================================================

const runColumns = `id, tenant_id, location_scope, start_date, end_date, status, month_units,
	marked_by_name, finalized_at, finalized_by, created_at, updated_at`

// GetOrCreateRun inserts a draft run for key unless one exists, then reads it.
func (q *queries) GetOrCreateRun(ctx context.Context, key payroll.RunKey, monthUnits int) (*payroll.Run, error) {
	now := formatTime(time.Now().UTC())

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO payroll_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', NULL, '', ?, ?)
		ON CONFLICT(tenant_id, location_scope, start_date, end_date) DO NOTHING
	`,
		uuid.NewString(), key.TenantID, key.LocationScope,
		key.Period.Start.String(), key.Period.End.String(),
		payroll.RunDraft, monthUnits, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	row := q.q.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM payroll_runs
		WHERE tenant_id = ? AND location_scope = ? AND start_date = ? AND end_date = ?
	`, key.TenantID, key.LocationScope, key.Period.Start.String(), key.Period.End.String())

	return scanRun(row)
}

// GetRun retrieves a run by ID within a tenant.
func (q *queries) GetRun(ctx context.Context, tenantID, runID string) (*payroll.Run, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM payroll_runs WHERE id = ? AND tenant_id = ?`,
		runID, tenantID,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns runs newest first. Empty status means all.
func (q *queries) ListRuns(ctx context.Context, tenantID string, status payroll.RunStatus) ([]payroll.Run, error) {
	query := `SELECT ` + runColumns + ` FROM payroll_runs WHERE tenant_id = ?`
	args := []any{tenantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY start_date DESC, created_at DESC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []payroll.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateRun writes the mutable run fields.
func (q *queries) UpdateRun(ctx context.Context, run payroll.Run) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE payroll_runs SET
			status = ?, month_units = ?, marked_by_name = ?,
			finalized_at = ?, finalized_by = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`,
		run.Status, run.MonthUnits, run.MarkedByName,
		nullTime(run.FinalizedAt), run.FinalizedBy, formatTime(run.UpdatedAt),
		run.ID, run.TenantID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, payroll.ErrRunNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*payroll.Run, error) {
	var r payroll.Run
	var start, end, createdAt, updatedAt string
	var finalizedAt sql.NullString

	if err := row.Scan(
		&r.ID, &r.TenantID, &r.LocationScope, &start, &end, &r.Status, &r.MonthUnits,
		&r.MarkedByName, &finalizedAt, &r.FinalizedBy, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	period, err := calendar.ParseRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("corrupt run %s period: %w", r.ID, err)
	}
	r.Period = period
	r.FinalizedAt = parseNullTime(finalizedAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// =============================================================================
// PAYROLL ITEMS
// =============================================================================

const itemColumns = `id, run_id, tenant_id, person_key, staff_id, locum_id, person_name, pay_method,
	base_rate, worked_units, paid_leave_units, unpaid_leave_units, absent_units, period_units,
	payable_base, allowances_json, allowances_amount, gross_pay, is_paid, paid_at, paid_by,
	breakdown_json, created_at, updated_at`

// ListItems returns all items in a run.
func (q *queries) ListItems(ctx context.Context, runID string) ([]payroll.Item, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM payroll_items WHERE run_id = ? ORDER BY person_name, person_key`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []payroll.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// GetItem retrieves an item by ID within a tenant.
func (q *queries) GetItem(ctx context.Context, tenantID, itemID string) (*payroll.Item, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM payroll_items WHERE id = ? AND tenant_id = ?`,
		itemID, tenantID,
	)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

// UpsertItems inserts or refreshes items keyed by (run_id, person_key).
// The row ID and created_at of an existing item are kept.
func (q *queries) UpsertItems(ctx context.Context, items []payroll.Item) error {
	query := `
		INSERT INTO payroll_items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, person_key) DO UPDATE SET
			person_name = excluded.person_name,
			pay_method = excluded.pay_method,
			base_rate = excluded.base_rate,
			worked_units = excluded.worked_units,
			paid_leave_units = excluded.paid_leave_units,
			unpaid_leave_units = excluded.unpaid_leave_units,
			absent_units = excluded.absent_units,
			period_units = excluded.period_units,
			payable_base = excluded.payable_base,
			allowances_json = excluded.allowances_json,
			allowances_amount = excluded.allowances_amount,
			gross_pay = excluded.gross_pay,
			is_paid = excluded.is_paid,
			paid_at = excluded.paid_at,
			paid_by = excluded.paid_by,
			breakdown_json = excluded.breakdown_json,
			updated_at = excluded.updated_at
	`

	for _, it := range items {
		allowancesJSON, breakdownJSON, err := encodeItemJSON(it)
		if err != nil {
			return err
		}
		var staffID, locumID sql.NullString
		switch it.Person.Kind {
		case payroll.KindStaff:
			staffID = nullString(it.Person.ID)
		case payroll.KindLocum:
			locumID = nullString(it.Person.ID)
		default:
			return fmt.Errorf("item %s: unknown person kind %q", it.ID, it.Person.Kind)
		}

		if _, err := q.q.ExecContext(ctx, query,
			it.ID, it.RunID, it.TenantID, it.Person.Key(), staffID, locumID, it.PersonName, it.PayMethod,
			it.BaseRate.String(), it.WorkedUnits.String(), it.PaidLeaveUnits.String(),
			it.UnpaidLeaveUnits.String(), it.AbsentUnits.String(), it.PeriodUnits,
			it.PayableBase.String(), allowancesJSON, it.AllowancesAmount.String(), it.GrossPay.String(),
			it.IsPaid, nullTime(it.PaidAt), it.PaidBy,
			breakdownJSON, formatTime(it.CreatedAt), formatTime(it.UpdatedAt),
		); err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", it.Person.Key(), err)
		}
	}
	return nil
}

// UpdateItem writes operator-editable fields and the recomputed gross pay.
func (q *queries) UpdateItem(ctx context.Context, it payroll.Item) error {
	allowancesJSON, _, err := encodeItemJSON(it)
	if err != nil {
		return err
	}

	res, err := q.q.ExecContext(ctx, `
		UPDATE payroll_items SET
			allowances_json = ?, allowances_amount = ?, gross_pay = ?,
			is_paid = ?, paid_at = ?, paid_by = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?
	`,
		allowancesJSON, it.AllowancesAmount.String(), it.GrossPay.String(),
		it.IsPaid, nullTime(it.PaidAt), it.PaidBy, formatTime(it.UpdatedAt),
		it.ID, it.TenantID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res, payroll.ErrItemNotFound)
}

type allowanceJSON struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

func encodeItemJSON(it payroll.Item) (allowances, breakdown string, err error) {
	list := make([]allowanceJSON, len(it.Allowances))
	for i, a := range it.Allowances {
		list[i] = allowanceJSON{Label: a.Label, Amount: a.Amount}
	}
	a, err := json.Marshal(list)
	if err != nil {
		return "", "", fmt.Errorf("encode allowances: %w", err)
	}

	bd := it.Breakdown
	if bd == nil {
		bd = map[string]decimal.Decimal{}
	}
	b, err := json.Marshal(bd)
	if err != nil {
		return "", "", fmt.Errorf("encode breakdown: %w", err)
	}
	return string(a), string(b), nil
}

func scanItem(row rowScanner) (*payroll.Item, error) {
	var it payroll.Item
	var personKey, method, createdAt, updatedAt string
	var staffID, locumID, paidAt sql.NullString
	var baseRate, worked, paidLeave, unpaidLeave, absent, payable, allowancesAmount, gross string
	var allowancesJSON, breakdownJSON string

	if err := row.Scan(
		&it.ID, &it.RunID, &it.TenantID, &personKey, &staffID, &locumID, &it.PersonName, &method,
		&baseRate, &worked, &paidLeave, &unpaidLeave, &absent, &it.PeriodUnits,
		&payable, &allowancesJSON, &allowancesAmount, &gross, &it.IsPaid, &paidAt, &it.PaidBy,
		&breakdownJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if staffID.Valid {
		it.Person = payroll.PersonRef{Kind: payroll.KindStaff, ID: staffID.String}
	} else {
		it.Person = payroll.PersonRef{Kind: payroll.KindLocum, ID: locumID.String}
	}
	it.PayMethod = payroll.PayMethod(method)
	it.BaseRate = parseDecimal(baseRate)
	it.WorkedUnits = parseDecimal(worked)
	it.PaidLeaveUnits = parseDecimal(paidLeave)
	it.UnpaidLeaveUnits = parseDecimal(unpaidLeave)
	it.AbsentUnits = parseDecimal(absent)
	it.PayableBase = parseDecimal(payable)
	it.AllowancesAmount = parseDecimal(allowancesAmount)
	it.GrossPay = parseDecimal(gross)
	it.PaidAt = parseNullTime(paidAt)
	it.CreatedAt = parseTime(createdAt)
	it.UpdatedAt = parseTime(updatedAt)

	var list []allowanceJSON
	if err := json.Unmarshal([]byte(allowancesJSON), &list); err != nil {
		return nil, fmt.Errorf("decode allowances for item %s: %w", it.ID, err)
	}
	it.Allowances = make([]payroll.Allowance, len(list))
	for i, a := range list {
		it.Allowances[i] = payroll.Allowance{Label: a.Label, Amount: a.Amount}
	}

	it.Breakdown = map[string]decimal.Decimal{}
	if err := json.Unmarshal([]byte(breakdownJSON), &it.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown for item %s: %w", it.ID, err)
	}

	return &it, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d := parseDecimal(s.String)
	return &d
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
