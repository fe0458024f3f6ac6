package payroll

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// RUN LIFECYCLE MANAGER
// =============================================================================
//
//	draft --finalize--> finalized (terminal)
//
// Draft runs accept sync, run patches, item patches and finalize.
// Finalized runs are read-only: Sync returns them as stored and every
// mutation fails with ErrRunFinalized.

// RunPatch carries optional run fields. Nil means unchanged.
type RunPatch struct {
	MonthUnits   *int
	MarkedByName *string
}

// ItemPatch carries optional item fields. Nil means unchanged.
type ItemPatch struct {
	Allowances *[]Allowance
	IsPaid     *bool
	PaidBy     *string
}

// GetRun reads a run and its items without synchronizing.
func (s *Service) GetRun(ctx context.Context, tenantID, runID string) (*RunWithItems, error) {
	run, err := s.repo.GetRun(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	items, err := s.repo.ListItems(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	sortItems(items)
	return &RunWithItems{Run: *run, Items: items}, nil
}

// ListRuns returns the tenant's runs, optionally filtered by status.
func (s *Service) ListRuns(ctx context.Context, tenantID string, status RunStatus) ([]Run, error) {
	if status != "" && status != RunDraft && status != RunFinalized {
		return nil, invalid("status", "must be draft or finalized")
	}
	return s.repo.ListRuns(ctx, tenantID, status)
}

// Finalize locks a draft run. It is irreversible.
func (s *Service) Finalize(ctx context.Context, tenantID, runID, actorID string) (*Run, error) {
	var out Run
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		run, err := loadDraftRun(ctx, repo, tenantID, runID)
		if err != nil {
			return err
		}

		now := s.now()
		run.Status = RunFinalized
		run.FinalizedAt = &now
		run.FinalizedBy = actorID
		run.UpdatedAt = now
		if err := repo.UpdateRun(ctx, *run); err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		out = *run
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payroll run finalized",
		zap.String("run_id", out.ID),
		zap.String("finalized_by", actorID))
	return &out, nil
}

// PatchRun updates month units and the marked-by display name of a draft run.
// New month units take effect on the next sync.
func (s *Service) PatchRun(ctx context.Context, tenantID, runID string, patch RunPatch) (*Run, error) {
	if patch.MonthUnits != nil && *patch.MonthUnits <= 0 {
		return nil, invalid("month_units", "must be positive")
	}

	var out Run
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		run, err := loadDraftRun(ctx, repo, tenantID, runID)
		if err != nil {
			return err
		}

		if patch.MonthUnits != nil {
			run.MonthUnits = *patch.MonthUnits
		}
		if patch.MarkedByName != nil {
			run.MarkedByName = strings.TrimSpace(*patch.MarkedByName)
		}
		run.UpdatedAt = s.now()
		if err := repo.UpdateRun(ctx, *run); err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		out = *run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchItem edits allowances and payment status.
//
// Gross pay is recomputed from the stored payable base; units are not
// recalculated. is_paid=true stamps paid_at and paid_by (falling back to the
// actor); is_paid=false clears both.
func (s *Service) PatchItem(ctx context.Context, tenantID, itemID, actorID string, patch ItemPatch) (*Item, error) {
	var allowances []Allowance
	if patch.Allowances != nil {
		var err error
		if allowances, err = normalizeAllowances(*patch.Allowances); err != nil {
			return nil, err
		}
	}

	var out Item
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		item, err := repo.GetItem(ctx, tenantID, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrItemNotFound
		}
		if _, err := loadDraftRun(ctx, repo, tenantID, item.RunID); err != nil {
			return err
		}

		now := s.now()
		if patch.Allowances != nil {
			item.Allowances = allowances
			item.AllowancesAmount = SumAllowances(allowances)
			item.GrossPay = GrossPay(item.PayableBase, item.AllowancesAmount)
		}
		if patch.IsPaid != nil {
			item.IsPaid = *patch.IsPaid
			if item.IsPaid {
				paidBy := actorID
				if patch.PaidBy != nil && strings.TrimSpace(*patch.PaidBy) != "" {
					paidBy = strings.TrimSpace(*patch.PaidBy)
				}
				item.PaidAt = &now
				item.PaidBy = paidBy
			} else {
				item.PaidAt = nil
				item.PaidBy = ""
			}
		}
		item.UpdatedAt = now

		if err := repo.UpdateItem(ctx, *item); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		out = *item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug("payroll item patched",
		zap.String("item_id", out.ID),
		zap.String("gross_pay", out.GrossPay.String()),
		zap.Bool("is_paid", out.IsPaid))
	return &out, nil
}

func loadDraftRun(ctx context.Context, repo Repository, tenantID, runID string) (*Run, error) {
	run, err := repo.GetRun(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	if run.IsFinalized() {
		return nil, ErrRunFinalized
	}
	return run, nil
}

func normalizeAllowances(in []Allowance) ([]Allowance, error) {
	out := make([]Allowance, 0, len(in))
	for i, a := range in {
		label := strings.TrimSpace(a.Label)
		if label == "" {
			return nil, invalid(fmt.Sprintf("allowances[%d].label", i), "required")
		}
		out = append(out, Allowance{Label: label, Amount: a.Amount})
	}
	return out, nil
}
