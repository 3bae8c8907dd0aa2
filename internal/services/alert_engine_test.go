package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
)

func newTestAlertEngine(budgets *fakeBudgetStore, alerts *fakeAlertStore, ledger *fakeLedger, notifier *fakeNotifier) *AlertEngine {
	progress := newTestBudgetService(budgets, ledger)
	e := NewAlertEngine(budgets, alerts, progress, notifier, "user@example.com", testLogger())
	e.now = func() time.Time { return testNow }
	return e
}

func spendCents(cents int64) []core.SpendRecord {
	return []core.SpendRecord{
		core.Transaction{Amount: core.Money{Cents: cents}, Name: "Purchase", Category: "FOOD_AND_DRINK"},
	}
}

func storedBudget(t *testing.T, store *fakeBudgetStore) core.Budget {
	t.Helper()
	b := testBudget()
	b.AlertThreshold = 80
	id, err := store.CreateBudget(context.Background(), b)
	if err != nil {
		t.Fatalf("CreateBudget() err = %v", err)
	}
	b.ID = id
	return b
}

func TestAlertEngineEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		spent    int64 // budget amount is 20000
		wantKind core.AlertKind
		wantNone bool
	}{
		{"below approaching band", 10000, "", true},
		{"approaching", 14500, core.AlertApproaching, false},
		{"warning at threshold", 16000, core.AlertWarning, false},
		{"exceeded", 24000, core.AlertExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budgets := newFakeBudgetStore()
			alerts := &fakeAlertStore{}
			ledger := newFakeLedger()
			ledger.records = spendCents(tt.spent)
			notifier := &fakeNotifier{}
			engine := newTestAlertEngine(budgets, alerts, ledger, notifier)
			b := storedBudget(t, budgets)

			alert, err := engine.Evaluate(context.Background(), b)
			if err != nil {
				t.Fatalf("Evaluate() err = %v", err)
			}
			if tt.wantNone {
				if alert != nil {
					t.Fatalf("alert = %+v, want none", alert)
				}
				if notifier.alerts != 0 {
					t.Error("notifier called without an alert")
				}
				return
			}
			if alert == nil {
				t.Fatal("alert = nil, want one")
			}
			if alert.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", alert.Kind, tt.wantKind)
			}
			if alert.SpentCents != tt.spent {
				t.Errorf("SpentCents = %d, want %d", alert.SpentCents, tt.spent)
			}
			if notifier.alerts != 1 || notifier.lastKind != tt.wantKind {
				t.Errorf("notifier alerts/kind = %d/%q", notifier.alerts, notifier.lastKind)
			}
		})
	}
}

func TestAlertEngineDedup(t *testing.T) {
	budgets := newFakeBudgetStore()
	alerts := &fakeAlertStore{}
	ledger := newFakeLedger()
	ledger.records = spendCents(17000)
	notifier := &fakeNotifier{}
	engine := newTestAlertEngine(budgets, alerts, ledger, notifier)
	b := storedBudget(t, budgets)
	ctx := context.Background()

	first, err := engine.Evaluate(ctx, b)
	if err != nil || first == nil {
		t.Fatalf("first Evaluate: alert = %v, err = %v", first, err)
	}

	second, err := engine.Evaluate(ctx, b)
	if err != nil {
		t.Fatalf("second Evaluate err = %v", err)
	}
	if second != nil {
		t.Errorf("duplicate alert created: %+v", second)
	}
	if alerts.count() != 1 {
		t.Errorf("persisted alerts = %d, want 1", alerts.count())
	}
	if notifier.alerts != 1 {
		t.Errorf("notifications = %d, want 1 (suppressed alert must not notify)", notifier.alerts)
	}

	// crossing into a different kind still fires
	ledger.records = spendCents(25000)
	third, err := engine.Evaluate(ctx, b)
	if err != nil || third == nil {
		t.Fatalf("escalated Evaluate: alert = %v, err = %v", third, err)
	}
	if third.Kind != core.AlertExceeded {
		t.Errorf("Kind = %q, want exceeded", third.Kind)
	}
}

func TestAlertEngineNotifierFailureNonFatal(t *testing.T) {
	budgets := newFakeBudgetStore()
	alerts := &fakeAlertStore{}
	ledger := newFakeLedger()
	ledger.records = spendCents(17000)
	notifier := &fakeNotifier{sendErr: errors.New("smtp down")}
	engine := newTestAlertEngine(budgets, alerts, ledger, notifier)
	b := storedBudget(t, budgets)

	alert, err := engine.Evaluate(context.Background(), b)
	if err != nil {
		t.Fatalf("Evaluate() err = %v", err)
	}
	if alert == nil {
		t.Fatal("alert dropped because notification failed")
	}
	if alerts.count() != 1 {
		t.Errorf("persisted alerts = %d, want 1", alerts.count())
	}
}

func TestAlertEngineCheckAll(t *testing.T) {
	budgets := newFakeBudgetStore()
	alerts := &fakeAlertStore{}
	ledger := newFakeLedger()
	ledger.records = spendCents(17000)
	engine := newTestAlertEngine(budgets, alerts, ledger, &fakeNotifier{})
	ctx := context.Background()

	storedBudget(t, budgets)

	// broken budget must not block the healthy one
	broken := testBudget()
	broken.Period = core.Custom
	if _, err := budgets.CreateBudget(ctx, broken); err != nil {
		t.Fatalf("CreateBudget() err = %v", err)
	}

	inactive := testBudget()
	inactive.Active = false
	if _, err := budgets.CreateBudget(ctx, inactive); err != nil {
		t.Fatalf("CreateBudget() err = %v", err)
	}

	created, err := engine.CheckAll(ctx)
	if err != nil {
		t.Fatalf("CheckAll() err = %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created = %d alerts, want 1", len(created))
	}
	if created[0].Kind != core.AlertWarning {
		t.Errorf("Kind = %q, want warning", created[0].Kind)
	}
}

func TestAlertEngineSendDigest(t *testing.T) {
	budgets := newFakeBudgetStore()
	ledger := newFakeLedger()
	ledger.records = spendCents(5000)
	notifier := &fakeNotifier{}
	engine := newTestAlertEngine(budgets, &fakeAlertStore{}, ledger, notifier)

	storedBudget(t, budgets)

	if err := engine.SendDigest(context.Background()); err != nil {
		t.Fatalf("SendDigest() err = %v", err)
	}
	if notifier.digests != 1 {
		t.Errorf("digests = %d, want 1", notifier.digests)
	}

	// delivery failure is swallowed
	notifier.sendErr = errors.New("smtp down")
	if err := engine.SendDigest(context.Background()); err != nil {
		t.Fatalf("SendDigest() with failing notifier err = %v", err)
	}
}
