// Package memory provides an in-memory payroll.TxRepository for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/calendar"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory holds source records, runs and items in maps guarded by one mutex.
// WithTx is simulated with a snapshot and a rollback on error.
type Memory struct {
	mu sync.RWMutex
	st state
}

type state struct {
	staff      map[string]payroll.Staff // tenant/id
	locums     map[string]payroll.Locum
	attendance map[string]payroll.Attendance // tenant/person/date
	leaveTypes map[string]payroll.LeaveType  // tenant/name
	leave      map[string]payroll.LeaveRequest
	runs       map[string]payroll.Run // id
	runKeys    map[runKey]string      // natural key -> id
	items      map[string]payroll.Item
	itemKeys   map[itemKey]string // (run, person) -> id
}

type runKey struct {
	tenant, scope, start, end string
}

type itemKey struct {
	runID, person string
}

var _ payroll.TxRepository = (*Memory)(nil)

// New returns an empty store.
func New() *Memory {
	return &Memory{st: state{
		staff:      make(map[string]payroll.Staff),
		locums:     make(map[string]payroll.Locum),
		attendance: make(map[string]payroll.Attendance),
		leaveTypes: make(map[string]payroll.LeaveType),
		leave:      make(map[string]payroll.LeaveRequest),
		runs:       make(map[string]payroll.Run),
		runKeys:    make(map[runKey]string),
		items:      make(map[string]payroll.Item),
		itemKeys:   make(map[itemKey]string),
	}}
}

func tenantKey(tenant, id string) string { return tenant + "/" + id }

// =============================================================================
// SEEDING
// =============================================================================

// PutStaff inserts or replaces a staff record.
func (m *Memory) PutStaff(s payroll.Staff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.staff[tenantKey(s.TenantID, s.ID)] = s
}

// PutLocum inserts or replaces a locum record.
func (m *Memory) PutLocum(l payroll.Locum) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.locums[tenantKey(l.TenantID, l.ID)] = l
}

// PutAttendance keeps one record per person and day; later puts replace.
func (m *Memory) PutAttendance(a payroll.Attendance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.attendance[tenantKey(a.TenantID, a.Person.Key()+"/"+a.Date.String())] = a
}

// PutLeaveType maps a leave type name to paid or unpaid for its tenant.
func (m *Memory) PutLeaveType(lt payroll.LeaveType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.leaveTypes[tenantKey(lt.TenantID, lt.Name)] = lt
}

// PutLeaveRequest inserts or replaces a leave request of any status.
func (m *Memory) PutLeaveRequest(lr payroll.LeaveRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.leave[tenantKey(lr.TenantID, lr.ID)] = lr
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against the live state and restores the snapshot if fn
// fails. Transactions are serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(payroll.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&view{st: &m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() state {
	return state{
		staff:      maps.Clone(s.staff),
		locums:     maps.Clone(s.locums),
		attendance: maps.Clone(s.attendance),
		leaveTypes: maps.Clone(s.leaveTypes),
		leave:      maps.Clone(s.leave),
		runs:       maps.Clone(s.runs),
		runKeys:    maps.Clone(s.runKeys),
		items:      maps.Clone(s.items),
		itemKeys:   maps.Clone(s.itemKeys),
	}
}

// Repository methods outside WithTx take the lock and run against a view.
func (m *Memory) read(fn func(v *view)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(&view{st: &m.st})
}

func (m *Memory) write(fn func(v *view) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{st: &m.st})
}

func (m *Memory) ListActiveStaff(ctx context.Context, tenantID string) (out []payroll.Staff, err error) {
	m.read(func(v *view) { out, err = v.ListActiveStaff(ctx, tenantID) })
	return
}

func (m *Memory) ListActiveLocums(ctx context.Context, tenantID string) (out []payroll.Locum, err error) {
	m.read(func(v *view) { out, err = v.ListActiveLocums(ctx, tenantID) })
	return
}

func (m *Memory) ListAttendance(ctx context.Context, tenantID string, r calendar.Range) (out []payroll.Attendance, err error) {
	m.read(func(v *view) { out, err = v.ListAttendance(ctx, tenantID, r) })
	return
}

func (m *Memory) ListLeaveTypes(ctx context.Context, tenantID string) (out []payroll.LeaveType, err error) {
	m.read(func(v *view) { out, err = v.ListLeaveTypes(ctx, tenantID) })
	return
}

func (m *Memory) ListApprovedLeave(ctx context.Context, tenantID string, r calendar.Range) (out []payroll.LeaveRequest, err error) {
	m.read(func(v *view) { out, err = v.ListApprovedLeave(ctx, tenantID, r) })
	return
}

func (m *Memory) GetOrCreateRun(ctx context.Context, key payroll.RunKey, monthUnits int) (out *payroll.Run, err error) {
	err = m.write(func(v *view) error {
		out, err = v.GetOrCreateRun(ctx, key, monthUnits)
		return err
	})
	return
}

func (m *Memory) GetRun(ctx context.Context, tenantID, runID string) (out *payroll.Run, err error) {
	m.read(func(v *view) { out, err = v.GetRun(ctx, tenantID, runID) })
	return
}

func (m *Memory) ListRuns(ctx context.Context, tenantID string, status payroll.RunStatus) (out []payroll.Run, err error) {
	m.read(func(v *view) { out, err = v.ListRuns(ctx, tenantID, status) })
	return
}

func (m *Memory) UpdateRun(ctx context.Context, run payroll.Run) error {
	return m.write(func(v *view) error { return v.UpdateRun(ctx, run) })
}

func (m *Memory) ListItems(ctx context.Context, runID string) (out []payroll.Item, err error) {
	m.read(func(v *view) { out, err = v.ListItems(ctx, runID) })
	return
}

func (m *Memory) GetItem(ctx context.Context, tenantID, itemID string) (out *payroll.Item, err error) {
	m.read(func(v *view) { out, err = v.GetItem(ctx, tenantID, itemID) })
	return
}

// UpsertItems is atomic: the batch is validated before anything is written.
func (m *Memory) UpsertItems(ctx context.Context, items []payroll.Item) error {
	return m.WithTx(ctx, func(r payroll.Repository) error { return r.UpsertItems(ctx, items) })
}

func (m *Memory) UpdateItem(ctx context.Context, it payroll.Item) error {
	return m.write(func(v *view) error { return v.UpdateItem(ctx, it) })
}

// =============================================================================
// VIEW - repository over the state, caller holds the lock
// =============================================================================

type view struct {
	st *state
}

func (v *view) ListActiveStaff(_ context.Context, tenantID string) ([]payroll.Staff, error) {
	var out []payroll.Staff
	for _, s := range v.st.staff {
		if s.TenantID == tenantID && s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byName(out[i].Name, out[i].ID, out[j].Name, out[j].ID) })
	return out, nil
}

func (v *view) ListActiveLocums(_ context.Context, tenantID string) ([]payroll.Locum, error) {
	var out []payroll.Locum
	for _, l := range v.st.locums {
		if l.TenantID == tenantID && l.Active {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return byName(out[i].Name, out[i].ID, out[j].Name, out[j].ID) })
	return out, nil
}

func (v *view) ListAttendance(_ context.Context, tenantID string, r calendar.Range) ([]payroll.Attendance, error) {
	var out []payroll.Attendance
	for _, a := range v.st.attendance {
		if a.TenantID == tenantID && r.Contains(a.Date) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Person.Key() < out[j].Person.Key()
	})
	return out, nil
}

func (v *view) ListLeaveTypes(_ context.Context, tenantID string) ([]payroll.LeaveType, error) {
	var out []payroll.LeaveType
	for _, lt := range v.st.leaveTypes {
		if lt.TenantID == tenantID {
			out = append(out, lt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) ListApprovedLeave(_ context.Context, tenantID string, r calendar.Range) ([]payroll.LeaveRequest, error) {
	var out []payroll.LeaveRequest
	for _, lr := range v.st.leave {
		if lr.TenantID == tenantID && lr.Status == payroll.LeaveApproved && lr.Period.Overlaps(r) {
			out = append(out, lr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Period.Start.Equal(out[j].Period.Start) {
			return out[i].Period.Start.Before(out[j].Period.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) GetOrCreateRun(_ context.Context, key payroll.RunKey, monthUnits int) (*payroll.Run, error) {
	k := runKey{key.TenantID, key.LocationScope, key.Period.Start.String(), key.Period.End.String()}
	if id, ok := v.st.runKeys[k]; ok {
		run := v.st.runs[id]
		return &run, nil
	}

	now := time.Now().UTC()
	run := payroll.Run{
		ID:            uuid.NewString(),
		TenantID:      key.TenantID,
		LocationScope: key.LocationScope,
		Period:        key.Period,
		Status:        payroll.RunDraft,
		MonthUnits:    monthUnits,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	v.st.runs[run.ID] = run
	v.st.runKeys[k] = run.ID
	return &run, nil
}

func (v *view) GetRun(_ context.Context, tenantID, runID string) (*payroll.Run, error) {
	run, ok := v.st.runs[runID]
	if !ok || run.TenantID != tenantID {
		return nil, nil
	}
	return &run, nil
}

func (v *view) ListRuns(_ context.Context, tenantID string, status payroll.RunStatus) ([]payroll.Run, error) {
	var out []payroll.Run
	for _, run := range v.st.runs {
		if run.TenantID == tenantID && (status == "" || run.Status == status) {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Period.Start.Equal(out[j].Period.Start) {
			return out[i].Period.Start.After(out[j].Period.Start)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (v *view) UpdateRun(_ context.Context, run payroll.Run) error {
	cur, ok := v.st.runs[run.ID]
	if !ok || cur.TenantID != run.TenantID {
		return payroll.ErrRunNotFound
	}
	cur.Status = run.Status
	cur.MonthUnits = run.MonthUnits
	cur.MarkedByName = run.MarkedByName
	cur.FinalizedAt = run.FinalizedAt
	cur.FinalizedBy = run.FinalizedBy
	cur.UpdatedAt = run.UpdatedAt
	v.st.runs[run.ID] = cur
	return nil
}

func (v *view) ListItems(_ context.Context, runID string) ([]payroll.Item, error) {
	var out []payroll.Item
	for _, it := range v.st.items {
		if it.RunID == runID {
			out = append(out, cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return byName(out[i].PersonName, out[i].Person.Key(), out[j].PersonName, out[j].Person.Key())
	})
	return out, nil
}

func (v *view) GetItem(_ context.Context, tenantID, itemID string) (*payroll.Item, error) {
	it, ok := v.st.items[itemID]
	if !ok || it.TenantID != tenantID {
		return nil, nil
	}
	it = cloneItem(it)
	return &it, nil
}

// UpsertItems keeps the existing ID and CreatedAt of an item already stored
// for the same (run, person).
func (v *view) UpsertItems(_ context.Context, items []payroll.Item) error {
	for _, it := range items {
		if it.Person.Kind != payroll.KindStaff && it.Person.Kind != payroll.KindLocum {
			return fmt.Errorf("item %s: unknown person kind %q", it.ID, it.Person.Kind)
		}
		if _, ok := v.st.runs[it.RunID]; !ok {
			return payroll.ErrRunNotFound
		}
	}

	for _, it := range items {
		k := itemKey{it.RunID, it.Person.Key()}
		if id, ok := v.st.itemKeys[k]; ok {
			prev := v.st.items[id]
			it.ID, it.CreatedAt = prev.ID, prev.CreatedAt
		}
		v.st.items[it.ID] = cloneItem(it)
		v.st.itemKeys[k] = it.ID
	}
	return nil
}

func (v *view) UpdateItem(_ context.Context, it payroll.Item) error {
	cur, ok := v.st.items[it.ID]
	if !ok || cur.TenantID != it.TenantID {
		return payroll.ErrItemNotFound
	}
	cur.Allowances = slices.Clone(it.Allowances)
	cur.AllowancesAmount = it.AllowancesAmount
	cur.GrossPay = it.GrossPay
	cur.IsPaid = it.IsPaid
	cur.PaidAt = it.PaidAt
	cur.PaidBy = it.PaidBy
	cur.UpdatedAt = it.UpdatedAt
	v.st.items[it.ID] = cur
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func byName(nameA, idA, nameB, idB string) bool {
	if c := strings.Compare(nameA, nameB); c != 0 {
		return c < 0
	}
	return idA < idB
}

func cloneItem(it payroll.Item) payroll.Item {
	it.Allowances = slices.Clone(it.Allowances)
	if it.Breakdown != nil {
		b := make(map[string]decimal.Decimal, len(it.Breakdown))
		maps.Copy(b, it.Breakdown)
		it.Breakdown = b
	}
	return it
}
