package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/notify"
)

// AlertDedupWindow is how long a persisted (budget, kind) alert suppresses
// identical ones.
const AlertDedupWindow = 24 * time.Hour

// AlertEngine evaluates budget progress against thresholds and persists
// deduplicated alerts. Dedup is enforced by the storage layer's
// conditional insert, so concurrent evaluations cannot double-fire.
type AlertEngine struct {
	budgets   BudgetStore
	alerts    AlertStore
	progress  *BudgetService
	notifier  notify.Notifier
	recipient string
	log       *applog.Logger
	now       func() time.Time
}

func NewAlertEngine(budgets BudgetStore, alerts AlertStore, progress *BudgetService, notifier notify.Notifier, recipient string, logger *applog.Logger) *AlertEngine {
	return &AlertEngine{
		budgets:   budgets,
		alerts:    alerts,
		progress:  progress,
		notifier:  notifier,
		recipient: recipient,
		log:       logger.WithComponent(applog.ComponentAlert),
		now:       time.Now,
	}
}

// Evaluate checks one budget. It returns the alert it created, or nil when
// no threshold was crossed or an identical alert fired within the dedup
// window. Notifier failures are logged; the persisted alert stands.
func (e *AlertEngine) Evaluate(ctx context.Context, b core.Budget) (*core.BudgetAlert, error) {
	prog, err := e.progress.ProgressFor(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("evaluate budget %d: %w", b.ID, err)
	}

	kind, ok := core.AlertKindFor(prog.Percentage, b.AlertThreshold)
	if !ok {
		return nil, nil
	}

	alert := core.BudgetAlert{
		BudgetID:    b.ID,
		Kind:        kind,
		TriggeredAt: e.now(),
		SpentCents:  prog.Spent.Cents,
		Percentage:  math.Round(prog.Percentage),
	}

	created, err := e.alerts.InsertAlertDeduped(ctx, alert, AlertDedupWindow)
	if err != nil {
		return nil, fmt.Errorf("persist alert for budget %d: %w", b.ID, err)
	}
	if !created {
		return nil, nil
	}

	e.log.InfoContext(ctx, "budget alert created",
		applog.FieldBudgetID, b.ID,
		applog.FieldAlertKind, string(kind),
		applog.FieldAmountCents, alert.SpentCents,
		"percentage", alert.Percentage)

	if e.notifier != nil {
		if err := e.notifier.SendAlert(ctx, e.recipient, prog, kind); err != nil {
			e.log.WarnContext(ctx, "alert notification failed",
				applog.FieldBudgetID, b.ID,
				applog.FieldError, err.Error())
		}
	}

	return &alert, nil
}

// CheckAll evaluates every active budget and returns the alerts actually
// created. Budgets that fail to evaluate are logged and skipped; they
// never hide alerts created for other budgets.
func (e *AlertEngine) CheckAll(ctx context.Context) ([]core.BudgetAlert, error) {
	budgets, err := e.budgets.ListActiveBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}

	var created []core.BudgetAlert
	for _, b := range budgets {
		alert, err := e.Evaluate(ctx, b)
		if err != nil {
			e.log.ErrorContext(ctx, "budget evaluation failed",
				applog.FieldBudgetID, b.ID,
				applog.FieldError, err.Error())
			continue
		}
		if alert != nil {
			created = append(created, *alert)
		}
	}

	e.log.InfoContext(ctx, "budget check finished",
		"budgets", len(budgets),
		"alerts_created", len(created))

	return created, nil
}

// SendDigest delivers a progress summary of all active budgets to the
// configured recipient. Best-effort.
func (e *AlertEngine) SendDigest(ctx context.Context) error {
	if e.notifier == nil {
		return nil
	}
	progresses, err := e.progress.ProgressAll(ctx)
	if err != nil {
		return fmt.Errorf("digest progress: %w", err)
	}
	if err := e.notifier.SendDigest(ctx, e.recipient, progresses); err != nil {
		e.log.WarnContext(ctx, "digest notification failed", applog.FieldError, err.Error())
	}
	return nil
}
