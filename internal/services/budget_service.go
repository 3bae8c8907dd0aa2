package services

import (
	"context"
	"fmt"
	"time"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

// BudgetService owns budget CRUD validation and the progress calculator.
// Progress reads are side-effect free and safe to run concurrently for
// many budgets.
type BudgetService struct {
	budgets BudgetStore
	ledger  LedgerStore
	log     *applog.Logger
	now     func() time.Time
}

func NewBudgetService(budgets BudgetStore, ledger LedgerStore, logger *applog.Logger) *BudgetService {
	return &BudgetService{
		budgets: budgets,
		ledger:  ledger,
		log:     logger.WithComponent(applog.ComponentBudget),
		now:     time.Now,
	}
}

// Create validates and stores a new budget, returning it with its id.
// Validation failures never reach the calculator.
func (s *BudgetService) Create(ctx context.Context, b core.Budget) (*core.Budget, error) {
	b.ApplyDefaults()
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("validate budget: %w", err)
	}

	id, err := s.budgets.CreateBudget(ctx, b)
	if err != nil {
		return nil, err
	}
	b.ID = id

	s.log.InfoContext(ctx, "budget created",
		applog.FieldBudgetID, id,
		"scope", string(b.Scope),
		"scope_value", b.ScopeValue(),
		applog.FieldAmountCents, b.Amount.Cents)

	return &b, nil
}

// Update validates and overwrites an existing budget.
func (s *BudgetService) Update(ctx context.Context, b core.Budget) error {
	b.ApplyDefaults()
	if err := b.Validate(); err != nil {
		return fmt.Errorf("validate budget: %w", err)
	}
	if err := s.budgets.UpdateBudget(ctx, b); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "budget updated", applog.FieldBudgetID, b.ID)
	return nil
}

func (s *BudgetService) Delete(ctx context.Context, id int64) error {
	if err := s.budgets.DeleteBudget(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "budget deleted", applog.FieldBudgetID, id)
	return nil
}

func (s *BudgetService) Get(ctx context.Context, id int64) (*core.Budget, error) {
	return s.budgets.GetBudget(ctx, id)
}

// Progress computes current-period progress for a stored budget.
func (s *BudgetService) Progress(ctx context.Context, budgetID int64) (core.BudgetProgress, error) {
	b, err := s.budgets.GetBudget(ctx, budgetID)
	if err != nil {
		return core.BudgetProgress{}, err
	}
	return s.ProgressFor(ctx, *b)
}

// ProgressFor computes progress for a budget value without a storage
// lookup. Used by the alert engine during bulk evaluation.
func (s *BudgetService) ProgressFor(ctx context.Context, b core.Budget) (core.BudgetProgress, error) {
	filter, err := b.SpendFilter()
	if err != nil {
		return core.BudgetProgress{}, fmt.Errorf("budget %d period: %w", b.ID, err)
	}

	records, err := s.ledger.ListSpendCandidates(ctx, filter)
	if err != nil {
		return core.BudgetProgress{}, fmt.Errorf("budget %d spend candidates: %w", b.ID, err)
	}

	return core.ComputeProgress(b, records, s.now())
}

// ProgressAll computes progress for every active budget. Budgets that fail
// to evaluate are logged and skipped.
func (s *BudgetService) ProgressAll(ctx context.Context) ([]core.BudgetProgress, error) {
	budgets, err := s.budgets.ListActiveBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}

	progresses := make([]core.BudgetProgress, 0, len(budgets))
	for _, b := range budgets {
		p, err := s.ProgressFor(ctx, b)
		if err != nil {
			s.log.ErrorContext(ctx, "budget progress failed",
				applog.FieldBudgetID, b.ID,
				applog.FieldError, err.Error())
			continue
		}
		progresses = append(progresses, p)
	}
	return progresses, nil
}
