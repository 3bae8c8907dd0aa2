package core

import "time"

// BudgetProgress is derived state. It is computed on read from the budget
// and its period's transactions and is never persisted.
type BudgetProgress struct {
	Budget         Budget
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Spent          Money
	Remaining      Money
	Percentage     float64
	DaysRemaining  int
	IsOverBudget   bool
	ProjectedSpend Money
}

// ComputeProgress derives budget progress from the period's candidate spend
// records. Records that are not outflows or that classify as internal
// transfers are skipped; the rest contribute their absolute amount.
//
// Pure function of its inputs, safe to call concurrently for many budgets.
func ComputeProgress(b Budget, records []SpendRecord, now time.Time) (BudgetProgress, error) {
	end, err := b.PeriodEnd()
	if err != nil {
		return BudgetProgress{}, err
	}

	var spent int64
	for _, r := range records {
		if !r.SpendAmount().IsOutflow() {
			continue
		}
		if IsExcludedTransfer(r) {
			continue
		}
		spent += r.SpendAmount().Abs().Cents
	}

	p := BudgetProgress{
		Budget:      b,
		PeriodStart: b.StartDate,
		PeriodEnd:   end,
		Spent:       Money{Cents: spent},
	}

	remaining := b.Amount.Cents - spent
	if remaining < 0 {
		remaining = 0
	}
	p.Remaining = Money{Cents: remaining}

	if b.Amount.Cents > 0 {
		p.Percentage = float64(spent) / float64(b.Amount.Cents) * 100
	}
	p.IsOverBudget = spent > b.Amount.Cents

	if days := int(end.Sub(now).Hours() / 24); days > 0 {
		p.DaysRemaining = days
	}

	totalDays := int(end.Sub(b.StartDate).Hours() / 24)
	elapsedDays := int(now.Sub(b.StartDate).Hours() / 24)
	if elapsedDays > 0 && totalDays > 0 {
		perDay := float64(spent) / float64(elapsedDays)
		p.ProjectedSpend = Money{Cents: int64(perDay * float64(totalDays))}
	}

	return p, nil
}
