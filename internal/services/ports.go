package services

import (
	"context"
	"time"

	"bilancio/internal/core"
)

// Ports for the storage layer. The SQLite repository satisfies all of
// them; tests use in-memory fakes.
type (
	AccountStore interface {
		ListAccounts(ctx context.Context) ([]core.Account, error)
	}

	LedgerStore interface {
		UpsertTransaction(ctx context.Context, t core.Transaction) (inserted bool, err error)
		LatestTransactionDate(ctx context.Context, accountID int64) (time.Time, bool, error)
		ListSpendCandidates(ctx context.Context, f core.SpendFilter) ([]core.SpendRecord, error)
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) (int64, error)
		UpdateBudget(ctx context.Context, b core.Budget) error
		DeleteBudget(ctx context.Context, id int64) error
		GetBudget(ctx context.Context, id int64) (*core.Budget, error)
		ListActiveBudgets(ctx context.Context) ([]core.Budget, error)
	}

	AlertStore interface {
		InsertAlertDeduped(ctx context.Context, a core.BudgetAlert, window time.Duration) (created bool, err error)
	}
)
