package payroll

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/calendar"
	"go.uber.org/zap"
)

// =============================================================================
// SERVICE
// =============================================================================

// Options tune the engine.
type Options struct {
	// DefaultMonthUnits is the proration denominator given to new runs.
	DefaultMonthUnits int

	// FullDayHours is the hours threshold for a full unit when an attendance
	// status does not determine the unit by itself.
	FullDayHours float64

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Service is the payroll engine: synchronizer plus lifecycle manager.
type Service struct {
	repo TxRepository
	log  *zap.Logger
	opts Options
}

// NewService wires the engine to a repository.
func NewService(repo TxRepository, log *zap.Logger, opts Options) *Service {
	if opts.DefaultMonthUnits <= 0 {
		opts.DefaultMonthUnits = DefaultMonthUnits
	}
	if opts.FullDayHours <= 0 {
		opts.FullDayHours = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, opts: opts}
}

func (s *Service) now() time.Time { return s.opts.Now().UTC() }

// =============================================================================
// RUN SYNCHRONIZER
// =============================================================================

// Sync gets or creates the run for (tenant, location, period), recomputes
// every eligible person's item and returns the stored result.
//
// A finalized run is returned as stored. Everything happens in one store
// transaction: any failure leaves the previous item set untouched.
func (s *Service) Sync(ctx context.Context, tenantID, locationID string, period calendar.Range) (*RunWithItems, error) {
	if tenantID == "" {
		return nil, invalid("tenant", "required")
	}
	if period.End.Before(period.Start) {
		return nil, ErrInvalidRange
	}

	key := RunKey{TenantID: tenantID, LocationScope: ScopeFor(locationID), Period: period}
	var out *RunWithItems

	err := s.repo.WithTx(ctx, func(repo Repository) error {
		run, err := repo.GetOrCreateRun(ctx, key, s.opts.DefaultMonthUnits)
		if err != nil {
			return fmt.Errorf("get or create run: %w", err)
		}

		existing, err := repo.ListItems(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}

		if run.IsFinalized() {
			out = &RunWithItems{Run: *run, Items: existing}
			return nil
		}

		snap, err := s.fetchSnapshot(ctx, repo, tenantID, run.Period)
		if err != nil {
			return err
		}

		items := s.buildItems(*run, key.TargetLocation(), snap, existing)
		if len(items) > 0 {
			if err := repo.UpsertItems(ctx, items); err != nil {
				return fmt.Errorf("upsert items: %w", err)
			}
		}

		stored, err := repo.ListItems(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		out = &RunWithItems{Run: *run, Items: stored}
		return nil
	})
	if err != nil {
		s.log.Error("payroll sync failed",
			zap.String("tenant_id", tenantID),
			zap.String("scope", key.LocationScope),
			zap.Stringer("period", period),
			zap.Error(err))
		return nil, err
	}

	sortItems(out.Items)
	s.log.Info("payroll synced",
		zap.String("run_id", out.Run.ID),
		zap.String("scope", out.Run.LocationScope),
		zap.Stringer("period", out.Run.Period),
		zap.Bool("finalized", out.Run.IsFinalized()),
		zap.Int("items", len(out.Items)))
	return out, nil
}

// snapshot is everything read from Source for one sync, indexed for lookup.
type snapshot struct {
	staff      []Staff
	locums     []Locum
	attendance map[string]AttendanceMap // person key -> date -> day
	leave      map[string]LeaveMap      // staff ID -> date -> day
}

func (s *Service) fetchSnapshot(ctx context.Context, src Source, tenantID string, period calendar.Range) (*snapshot, error) {
	staff, err := src.ListActiveStaff(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	locums, err := src.ListActiveLocums(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list locums: %w", err)
	}
	attendance, err := src.ListAttendance(ctx, tenantID, period)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	types, err := src.ListLeaveTypes(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list leave types: %w", err)
	}
	leave, err := src.ListApprovedLeave(ctx, tenantID, period)
	if err != nil {
		return nil, fmt.Errorf("list leave: %w", err)
	}

	return &snapshot{
		staff:      staff,
		locums:     locums,
		attendance: BuildAttendanceMaps(attendance, period, s.opts.FullDayHours),
		leave:      BuildLeaveMaps(leave, types, period),
	}, nil
}

// BuildAttendanceMaps indexes attendance per person key and date.
func BuildAttendanceMaps(records []Attendance, period calendar.Range, fullDayHours float64) map[string]AttendanceMap {
	out := make(map[string]AttendanceMap)
	for _, a := range records {
		if !period.Contains(a.Date) {
			continue
		}
		status := a.Status
		if a.Person.Kind == KindLocum && a.LocumStatus != "" {
			status = a.LocumStatus
		}
		units, normalized := AttendanceUnits(status, a.TotalHours, fullDayHours)

		k := a.Person.Key()
		if out[k] == nil {
			out[k] = make(AttendanceMap)
		}
		out[k][a.Date.String()] = DayAttendance{Units: units, Status: normalized, LocationID: a.LocationID}
	}
	return out
}

// BuildLeaveMaps expands approved requests into per-day leave, clipped to period.
// Unmapped leave type names are paid. When requests overlap on a day the
// larger unit value wins; ties keep the earlier-starting request.
func BuildLeaveMaps(requests []LeaveRequest, types []LeaveType, period calendar.Range) map[string]LeaveMap {
	paid := make(map[string]bool, len(types))
	for _, t := range types {
		paid[t.Name] = t.IsPaid
	}

	sorted := append([]LeaveRequest(nil), requests...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Period.Start.Before(sorted[j].Period.Start)
	})

	out := make(map[string]LeaveMap)
	for _, req := range sorted {
		if req.Status != LeaveApproved {
			continue
		}
		span, ok := req.Period.Clip(period)
		if !ok {
			continue
		}
		isPaid, mapped := paid[req.LeaveType]
		if !mapped {
			isPaid = true
		}
		units := LeaveUnits(req.HalfDay)

		if out[req.StaffID] == nil {
			out[req.StaffID] = make(LeaveMap)
		}
		days := out[req.StaffID]
		for d := span.Start; d.BeforeOrEqual(span.End); d = d.AddDays(1) {
			k := d.String()
			if cur, exists := days[k]; exists && !units.GreaterThan(cur.Units) {
				continue
			}
			days[k] = DayLeave{Units: units, IsPaid: isPaid, LeaveType: req.LeaveType}
		}
	}
	return out
}

func (s *Service) buildItems(run Run, target string, snap *snapshot, existing []Item) []Item {
	byPerson := make(map[string]*Item, len(existing))
	for i := range existing {
		byPerson[existing[i].Person.Key()] = &existing[i]
	}

	now := s.now()
	var items []Item

	for _, st := range snap.staff {
		ref := PersonRef{Kind: KindStaff, ID: st.ID}
		prev := byPerson[ref.Key()]
		method := st.PayMethod
		if !method.Valid() {
			method = PayFixed
		}

		scope := SelectScope(Candidate{Person: ref, HomeLocationID: st.HomeLocationID},
			method, target, snap.attendance[ref.Key()], prev != nil)
		if !scope.Include && prev == nil {
			continue
		}

		rate := rateOrZero(st.PayRate)
		units := ComputeUnits(scope.Attendance, snap.leave[st.ID], run.Period)
		base := ComputeBase(method, rate, units, run.MonthUnits)
		items = append(items, buildItem(run, ref, st.Name, method, rate, units, base, prev, now))
	}

	for _, lc := range snap.locums {
		ref := PersonRef{Kind: KindLocum, ID: lc.ID}
		prev := byPerson[ref.Key()]

		scope := SelectScope(Candidate{Person: ref}, PayDaily, target, snap.attendance[ref.Key()], prev != nil)
		if !scope.Include && prev == nil {
			continue
		}

		rate := rateOrZero(lc.DailyRate)
		units := LocumUnits(ComputeUnits(scope.Attendance, nil, run.Period))
		base := ComputeBase(PayDaily, rate, units, run.MonthUnits)
		items = append(items, buildItem(run, ref, lc.Name, PayDaily, rate, units, base, prev, now))
	}

	return items
}

// buildItem assembles the upsert payload, carrying operator fields forward.
func buildItem(run Run, ref PersonRef, name string, method PayMethod, rate decimal.Decimal,
	u Units, base decimal.Decimal, prev *Item, now time.Time) Item {
	it := Item{
		ID:               uuid.NewString(),
		RunID:            run.ID,
		TenantID:         run.TenantID,
		Person:           ref,
		PersonName:       name,
		PayMethod:        method,
		BaseRate:         rate,
		WorkedUnits:      u.Worked,
		PaidLeaveUnits:   u.PaidLeave,
		UnpaidLeaveUnits: u.UnpaidLeave,
		AbsentUnits:      u.Absent,
		PeriodUnits:      run.MonthUnits,
		PayableBase:      base,
		Allowances:       []Allowance{},
		AllowancesAmount: decimal.Zero,
		Breakdown:        u.Breakdown,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if prev != nil {
		it.ID = prev.ID
		it.CreatedAt = prev.CreatedAt
		it.Allowances = prev.Allowances
		it.AllowancesAmount = SumAllowances(prev.Allowances)
		it.IsPaid = prev.IsPaid
		it.PaidAt = prev.PaidAt
		it.PaidBy = prev.PaidBy
	}

	it.GrossPay = GrossPay(it.PayableBase, it.AllowancesAmount)
	return it
}

// sortItems orders staff before locums, then by name and ID.
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Person.Kind != b.Person.Kind {
			return a.Person.Kind == KindStaff
		}
		an, bn := strings.ToLower(a.PersonName), strings.ToLower(b.PersonName)
		if an != bn {
			return an < bn
		}
		return a.Person.ID < b.Person.ID
	})
}
