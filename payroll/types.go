/*
Package payroll implements the payroll reconciliation engine.

PURPOSE:
  Merges raw attendance and approved leave into per-person payable units,
  derives gross pay under three pay methods, and persists the result as a
  re-computable, eventually-lockable payroll run.

KEY CONCEPTS IN THIS FILE (types.go):
  - Run:  A payroll computation for (tenant, location scope, date range)
  - Item: One person's computed payroll line within a run
  - Source records: Staff, Locum, Attendance, LeaveType, LeaveRequest
  - Unit: A fractional day-credit (0, 0.5, 1.0)

COMPONENTS:
  units.go:       Unit Calculator (pure)
  eligibility.go: Eligibility Filter (pure)
  pay.go:         Pay Computer (pure)
  sync.go:        Run Synchronizer
  lifecycle.go:   Run Lifecycle Manager (finalize, run/item patches)

DESIGN PRINCIPLES:
  1. Precision: units and money use decimal.Decimal; rounding happens once,
     when the payable base is combined with allowances
  2. Idempotence: Sync is safe to repeat for the same run key
  3. Operator fields win: allowances and payment status are never
     recomputed by Sync

SEE ALSO:
  - store.go: Repository interfaces
  - store/sqlite/sqlite.go: Concrete repository
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/calendar"
)

// =============================================================================
// ENUMS
// =============================================================================

// PayMethod determines how units become a payable base.
type PayMethod string

const (
	PayFixed    PayMethod = "fixed"
	PayProrated PayMethod = "prorated"
	PayDaily    PayMethod = "daily"
)

// Valid reports whether m is one of the known pay methods.
func (m PayMethod) Valid() bool {
	switch m {
	case PayFixed, PayProrated, PayDaily:
		return true
	}
	return false
}

// Salaried is true for fixed and prorated methods.
func (m PayMethod) Salaried() bool {
	return m == PayFixed || m == PayProrated
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunDraft     RunStatus = "draft"
	RunFinalized RunStatus = "finalized"
)

// PersonKind distinguishes staff from external locums.
type PersonKind string

const (
	KindStaff PersonKind = "staff"
	KindLocum PersonKind = "locum"
)

// GlobalScope is the stored location scope of a run with no location.
const GlobalScope = "global"

// DefaultMonthUnits is the proration denominator for new runs.
const DefaultMonthUnits = 30

// =============================================================================
// IDENTIFIERS
// =============================================================================

// PersonRef identifies the subject of an item: exactly one of staff or locum.
type PersonRef struct {
	Kind PersonKind
	ID   string
}

// Key is the per-run uniqueness key, e.g. "staff:st-1".
func (p PersonRef) Key() string { return string(p.Kind) + ":" + p.ID }

// RunKey is the natural key of a run.
type RunKey struct {
	TenantID      string
	LocationScope string // location ID or GlobalScope
	Period        calendar.Range
}

// ScopeFor maps an optional location filter to a stored scope.
// "" and "all" mean global.
func ScopeFor(locationID string) string {
	if locationID == "" || locationID == "all" {
		return GlobalScope
	}
	return locationID
}

// TargetLocation is the location filter for eligibility, empty for global runs.
func (k RunKey) TargetLocation() string {
	if k.LocationScope == GlobalScope {
		return ""
	}
	return k.LocationScope
}

// =============================================================================
// RUN & ITEM
// =============================================================================

// Run is a payroll computation for one run key.
type Run struct {
	ID            string
	TenantID      string
	LocationScope string
	Period        calendar.Range
	Status        RunStatus
	MonthUnits    int
	MarkedByName  string
	FinalizedAt   *time.Time
	FinalizedBy   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the run's natural key.
func (r Run) Key() RunKey {
	return RunKey{TenantID: r.TenantID, LocationScope: r.LocationScope, Period: r.Period}
}

func (r Run) IsFinalized() bool { return r.Status == RunFinalized }

// Allowance is an operator-entered addition to an item.
type Allowance struct {
	Label  string
	Amount decimal.Decimal
}

// Item is one person's payroll line.
type Item struct {
	ID               string
	RunID            string
	TenantID         string
	Person           PersonRef
	PersonName       string
	PayMethod        PayMethod
	BaseRate         decimal.Decimal
	WorkedUnits      decimal.Decimal
	PaidLeaveUnits   decimal.Decimal
	UnpaidLeaveUnits decimal.Decimal
	AbsentUnits      decimal.Decimal
	PeriodUnits      int
	PayableBase      decimal.Decimal
	Allowances       []Allowance
	AllowancesAmount decimal.Decimal
	GrossPay         decimal.Decimal
	IsPaid           bool
	PaidAt           *time.Time
	PaidBy           string
	Breakdown        map[string]decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SumAllowances totals allowance amounts.
func SumAllowances(allowances []Allowance) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allowances {
		total = total.Add(a.Amount)
	}
	return total
}

// GrossPay rounds payable base plus allowances to the nearest whole unit.
func GrossPay(payableBase, allowancesAmount decimal.Decimal) decimal.Decimal {
	return payableBase.Add(allowancesAmount).Round(0)
}

// RunWithItems is the read model returned by Sync and GetRun.
type RunWithItems struct {
	Run   Run
	Items []Item
}

// Totals summarizes a run's items.
type Totals struct {
	PayableBase decimal.Decimal
	Allowances  decimal.Decimal
	GrossPay    decimal.Decimal
	Items       int
	Paid        int
}

// Totals sums all items.
func (rw RunWithItems) Totals() Totals {
	t := Totals{PayableBase: decimal.Zero, Allowances: decimal.Zero, GrossPay: decimal.Zero}
	for _, it := range rw.Items {
		t.PayableBase = t.PayableBase.Add(it.PayableBase)
		t.Allowances = t.Allowances.Add(it.AllowancesAmount)
		t.GrossPay = t.GrossPay.Add(it.GrossPay)
		t.Items++
		if it.IsPaid {
			t.Paid++
		}
	}
	return t
}

// =============================================================================
// SOURCE RECORDS (read-only here)
// =============================================================================

// Staff is the pay profile subset of a staff record.
type Staff struct {
	ID             string
	TenantID       string
	Name           string
	PayMethod      PayMethod
	PayRate        *decimal.Decimal
	HomeLocationID string
	Active         bool
}

// Locum is an external worker, always paid daily.
type Locum struct {
	ID        string
	TenantID  string
	Name      string
	DailyRate *decimal.Decimal
	Active    bool
}

// Attendance is one person's record for one date.
type Attendance struct {
	ID          string
	TenantID    string
	Person      PersonRef
	Date        calendar.Date
	TotalHours  float64
	Status      string
	LocumStatus string
	LocationID  string
}

// LeaveType maps a leave name to whether it is paid.
type LeaveType struct {
	TenantID string
	Name     string
	IsPaid   bool
}

// LeaveStatus of a request; only approved requests participate.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

// LeaveRequest is a continuous leave span for one staff member.
type LeaveRequest struct {
	ID        string
	TenantID  string
	StaffID   string
	Period    calendar.Range
	LeaveType string
	HalfDay   bool
	Status    LeaveStatus
}
