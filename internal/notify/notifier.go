// Package notify defines the outbound notification port. Real delivery
// (email, push) lives outside this system; the shipped implementation
// logs the intent.
package notify

import (
	"context"
	"fmt"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

// Notifier delivers budget alerts and periodic digests to a recipient.
// Failures are treated as non-fatal by all callers.
type Notifier interface {
	SendAlert(ctx context.Context, recipient string, p core.BudgetProgress, kind core.AlertKind) error
	SendDigest(ctx context.Context, recipient string, progresses []core.BudgetProgress) error
}

// LogNotifier logs what would have been sent.
type LogNotifier struct {
	log *applog.Logger
}

func NewLogNotifier(logger *applog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.WithComponent(applog.ComponentNotify)}
}

// SendAlert implements Notifier.
func (n *LogNotifier) SendAlert(ctx context.Context, recipient string, p core.BudgetProgress, kind core.AlertKind) error {
	n.log.InfoContext(ctx, "would send budget alert",
		applog.FieldRecipient, recipient,
		applog.FieldBudgetID, p.Budget.ID,
		applog.FieldAlertKind, string(kind),
		"message", alertMessage(p, kind))
	return nil
}

// SendDigest implements Notifier.
func (n *LogNotifier) SendDigest(ctx context.Context, recipient string, progresses []core.BudgetProgress) error {
	n.log.InfoContext(ctx, "would send budget digest",
		applog.FieldRecipient, recipient,
		"budgets", len(progresses))
	for _, p := range progresses {
		n.log.InfoContext(ctx, "digest line",
			applog.FieldBudgetID, p.Budget.ID,
			"budget", p.Budget.Name,
			"spent", p.Spent.Float64(),
			"remaining", p.Remaining.Float64(),
			"percentage", p.Percentage)
	}
	return nil
}

func alertMessage(p core.BudgetProgress, kind core.AlertKind) string {
	switch kind {
	case core.AlertExceeded:
		return fmt.Sprintf("budget %q exceeded: spent %.2f of %.2f (%.0f%%)",
			p.Budget.Name, p.Spent.Float64(), p.Budget.Amount.Float64(), p.Percentage)
	case core.AlertWarning:
		return fmt.Sprintf("budget %q at %.0f%%: spent %.2f of %.2f",
			p.Budget.Name, p.Percentage, p.Spent.Float64(), p.Budget.Amount.Float64())
	default:
		return fmt.Sprintf("budget %q approaching its limit: %.0f%% used, %.2f remaining",
			p.Budget.Name, p.Percentage, p.Remaining.Float64())
	}
}
