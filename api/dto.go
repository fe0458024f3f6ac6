/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication and decouples the
  payroll domain model from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND UNITS:
  Decimal values are encoded as JSON strings ("1500", "0.5") so no
  precision is lost in transit. Requests accept either strings or numbers.

VALIDATION:
  Validation is done by the payroll service, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - payroll/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RunDTO represents a run header in API responses.
type RunDTO struct {
	ID            string  `json:"id"`
	LocationScope string  `json:"location_scope"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	Status        string  `json:"status"`
	MonthUnits    int     `json:"month_units"`
	MarkedByName  string  `json:"marked_by_name,omitempty"`
	FinalizedAt   *string `json:"finalized_at,omitempty"`
	FinalizedBy   string  `json:"finalized_by,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// AllowanceDTO is one labelled additive allowance.
type AllowanceDTO struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// ItemDTO represents one person's payroll line.
type ItemDTO struct {
	ID               string                     `json:"id"`
	RunID            string                     `json:"run_id"`
	Kind             string                     `json:"kind"`
	StaffID          string                     `json:"staff_id,omitempty"`
	LocumID          string                     `json:"locum_id,omitempty"`
	PersonName       string                     `json:"person_name"`
	PayMethod        string                     `json:"pay_method"`
	BaseRate         decimal.Decimal            `json:"base_rate"`
	WorkedUnits      decimal.Decimal            `json:"worked_units"`
	PaidLeaveUnits   decimal.Decimal            `json:"paid_leave_units"`
	UnpaidLeaveUnits decimal.Decimal            `json:"unpaid_leave_units"`
	AbsentUnits      decimal.Decimal            `json:"absent_units"`
	PeriodUnits      int                        `json:"period_units"`
	PayableBase      decimal.Decimal            `json:"payable_base"`
	Allowances       []AllowanceDTO             `json:"allowances"`
	AllowancesAmount decimal.Decimal            `json:"allowances_amount"`
	GrossPay         decimal.Decimal            `json:"gross_pay"`
	IsPaid           bool                       `json:"is_paid"`
	PaidAt           *string                    `json:"paid_at,omitempty"`
	PaidBy           string                     `json:"paid_by,omitempty"`
	LeaveBreakdown   map[string]decimal.Decimal `json:"leave_breakdown"`
	UpdatedAt        string                     `json:"updated_at"`
}

// TotalsDTO summarizes a run's items.
type TotalsDTO struct {
	PayableBase decimal.Decimal `json:"payable_base"`
	Allowances  decimal.Decimal `json:"allowances"`
	GrossPay    decimal.Decimal `json:"gross_pay"`
	Items       int             `json:"items"`
	Paid        int             `json:"paid"`
}

// RunResponse is a run, its items and their totals.
type RunResponse struct {
	Run    RunDTO    `json:"run"`
	Items  []ItemDTO `json:"items"`
	Totals TotalsDTO `json:"totals"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PatchRunRequest edits a draft run. Omitted fields are unchanged.
type PatchRunRequest struct {
	MonthUnits   *int    `json:"month_units"`
	MarkedByName *string `json:"marked_by_name"`
}

// PatchItemRequest edits a draft item. Omitted fields are unchanged;
// allowances replaces the whole list.
type PatchItemRequest struct {
	Allowances *[]AllowanceDTO `json:"allowances"`
	IsPaid     *bool           `json:"is_paid"`
	PaidBy     *string         `json:"paid_by"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toRunDTO(r payroll.Run) RunDTO {
	return RunDTO{
		ID:            r.ID,
		LocationScope: r.LocationScope,
		StartDate:     r.Period.Start.String(),
		EndDate:       r.Period.End.String(),
		Status:        string(r.Status),
		MonthUnits:    r.MonthUnits,
		MarkedByName:  r.MarkedByName,
		FinalizedAt:   timePtr(r.FinalizedAt),
		FinalizedBy:   r.FinalizedBy,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.Format(time.RFC3339),
	}
}

func toItemDTO(it payroll.Item) ItemDTO {
	dto := ItemDTO{
		ID:               it.ID,
		RunID:            it.RunID,
		Kind:             string(it.Person.Kind),
		PersonName:       it.PersonName,
		PayMethod:        string(it.PayMethod),
		BaseRate:         it.BaseRate,
		WorkedUnits:      it.WorkedUnits,
		PaidLeaveUnits:   it.PaidLeaveUnits,
		UnpaidLeaveUnits: it.UnpaidLeaveUnits,
		AbsentUnits:      it.AbsentUnits,
		PeriodUnits:      it.PeriodUnits,
		PayableBase:      it.PayableBase,
		Allowances:       make([]AllowanceDTO, len(it.Allowances)),
		AllowancesAmount: it.AllowancesAmount,
		GrossPay:         it.GrossPay,
		IsPaid:           it.IsPaid,
		PaidAt:           timePtr(it.PaidAt),
		PaidBy:           it.PaidBy,
		LeaveBreakdown:   it.Breakdown,
		UpdatedAt:        it.UpdatedAt.Format(time.RFC3339),
	}
	if it.Person.Kind == payroll.KindLocum {
		dto.LocumID = it.Person.ID
	} else {
		dto.StaffID = it.Person.ID
	}
	for i, a := range it.Allowances {
		dto.Allowances[i] = AllowanceDTO{Label: a.Label, Amount: a.Amount}
	}
	if dto.LeaveBreakdown == nil {
		dto.LeaveBreakdown = map[string]decimal.Decimal{}
	}
	return dto
}

func toRunResponse(rw *payroll.RunWithItems) RunResponse {
	items := make([]ItemDTO, len(rw.Items))
	for i, it := range rw.Items {
		items[i] = toItemDTO(it)
	}
	t := rw.Totals()
	return RunResponse{
		Run:   toRunDTO(rw.Run),
		Items: items,
		Totals: TotalsDTO{
			PayableBase: t.PayableBase,
			Allowances:  t.Allowances,
			GrossPay:    t.GrossPay,
			Items:       t.Items,
			Paid:        t.Paid,
		},
	}
}

func (req PatchItemRequest) toPatch() payroll.ItemPatch {
	patch := payroll.ItemPatch{IsPaid: req.IsPaid, PaidBy: req.PaidBy}
	if req.Allowances != nil {
		allowances := make([]payroll.Allowance, len(*req.Allowances))
		for i, a := range *req.Allowances {
			allowances[i] = payroll.Allowance{Label: a.Label, Amount: a.Amount}
		}
		patch.Allowances = &allowances
	}
	return patch
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
