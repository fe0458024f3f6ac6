/*
store.go - Persistence interfaces for payroll runs and their source records

PURPOSE:
  Defines the boundary between the engine and the database. Source records
  (staff, locums, attendance, leave) are read-only here; runs and items are
  the only rows this package writes.

KEY INTERFACES:
  Source:       Tenant-scoped reads of staff, locums, attendance and leave
  RunStore:     Runs and items (get-or-create, batch upsert, patches)
  Repository:   Source + RunStore
  TxRepository: Repository with WithTx for all-or-nothing operations

ATOMICITY:
  Sync runs entirely inside WithTx. Any fetch or upsert failure rolls back,
  so no partial item set is ever committed.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go
*/
package payroll

import (
	"context"

	"github.com/warp/payroll-engine/calendar"
)

// Source reads the records a run is computed from.
type Source interface {
	ListActiveStaff(ctx context.Context, tenantID string) ([]Staff, error)
	ListActiveLocums(ctx context.Context, tenantID string) ([]Locum, error)

	// ListAttendance returns attendance for staff and locums dated within r.
	ListAttendance(ctx context.Context, tenantID string, r calendar.Range) ([]Attendance, error)

	ListLeaveTypes(ctx context.Context, tenantID string) ([]LeaveType, error)

	// ListApprovedLeave returns approved requests overlapping r.
	ListApprovedLeave(ctx context.Context, tenantID string, r calendar.Range) ([]LeaveRequest, error)
}

// RunStore persists runs and items.
type RunStore interface {
	// GetOrCreateRun atomically inserts a draft run for key if absent,
	// then returns the stored row.
	GetOrCreateRun(ctx context.Context, key RunKey, monthUnits int) (*Run, error)

	// GetRun returns nil, nil when the run does not exist for the tenant.
	GetRun(ctx context.Context, tenantID, runID string) (*Run, error)
	ListRuns(ctx context.Context, tenantID string, status RunStatus) ([]Run, error)
	UpdateRun(ctx context.Context, run Run) error

	ListItems(ctx context.Context, runID string) ([]Item, error)

	// GetItem returns nil, nil when the item does not exist for the tenant.
	GetItem(ctx context.Context, tenantID, itemID string) (*Item, error)

	// UpsertItems writes all items keyed by (run, person) in one statement batch.
	UpsertItems(ctx context.Context, items []Item) error
	UpdateItem(ctx context.Context, item Item) error
}

// Repository is everything the engine reads and writes.
type Repository interface {
	Source
	RunStore
}

// TxRepository wraps Repository with transaction support.
// If fn returns an error the transaction is rolled back.
type TxRepository interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}
