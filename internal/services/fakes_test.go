package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/provider"
	"bilancio/internal/retry"
)

func testLogger() *applog.Logger {
	return applog.New(applog.Config{
		Handler: slog.NewTextHandler(io.Discard, nil),
	})
}

func fastSyncConfig() SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.PageDelay = 0
	cfg.Retry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return cfg
}

// wireTxns generates n provider transactions with sequential ids, all dated
// inside August 2026.
func wireTxns(n int) []provider.Transaction {
	txns := make([]provider.Transaction, n)
	for i := range txns {
		txns[i] = provider.Transaction{
			TransactionID:   fmt.Sprintf("txn-%05d", i),
			AccountID:       "acc-ext",
			Amount:          decimal.NewFromInt(int64(i%50 + 1)),
			ISOCurrencyCode: "USD",
			Date:            "2026-08-10",
			Name:            fmt.Sprintf("Purchase %d", i),
			Category:        "FOOD_AND_DRINK",
		}
	}
	return txns
}

// fakeClient pages through a fixed transaction list. failuresLeft injects
// that many errors before calls start succeeding; failTokens rejects
// specific access tokens outright.
type fakeClient struct {
	mu           sync.Mutex
	txns         []provider.Transaction
	failuresLeft int
	failErr      error
	failTokens   map[string]error
	reqs         []provider.TransactionsRequest
}

func (c *fakeClient) ListTransactions(ctx context.Context, req provider.TransactionsRequest) (*provider.TransactionsPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reqs = append(c.reqs, req)

	if err, ok := c.failTokens[req.AccessToken]; ok {
		return nil, err
	}
	if c.failuresLeft > 0 {
		c.failuresLeft--
		return nil, c.failErr
	}

	start := req.Offset
	if start > len(c.txns) {
		start = len(c.txns)
	}
	end := start + req.Count
	if end > len(c.txns) {
		end = len(c.txns)
	}

	return &provider.TransactionsPage{
		Transactions:      c.txns[start:end],
		TotalTransactions: len(c.txns),
	}, nil
}

func (c *fakeClient) ListAccounts(ctx context.Context, accessToken string) ([]provider.AccountMeta, error) {
	return nil, nil
}

func (c *fakeClient) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	return "", "", nil
}

func (c *fakeClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reqs)
}

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts []core.Account
	listErr  error
	lists    int
}

func (s *fakeAccountStore) ListAccounts(ctx context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.accounts, nil
}

type fakeLedger struct {
	mu        sync.Mutex
	txns      map[string]core.Transaction
	latest    map[int64]time.Time
	upsertErr map[string]error
	records   []core.SpendRecord
	listErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		txns:   make(map[string]core.Transaction),
		latest: make(map[int64]time.Time),
	}
}

func (l *fakeLedger) UpsertTransaction(ctx context.Context, t core.Transaction) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, ok := l.upsertErr[t.ExternalID]; ok {
		return false, err
	}
	_, exists := l.txns[t.ExternalID]
	l.txns[t.ExternalID] = t
	return !exists, nil
}

func (l *fakeLedger) LatestTransactionDate(ctx context.Context, accountID int64) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.latest[accountID]
	return d, ok, nil
}

func (l *fakeLedger) ListSpendCandidates(ctx context.Context, f core.SpendFilter) ([]core.SpendRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	return l.records, nil
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txns)
}

type fakeBudgetStore struct {
	mu      sync.Mutex
	nextID  int64
	budgets map[int64]core.Budget
	listErr error
}

func newFakeBudgetStore() *fakeBudgetStore {
	return &fakeBudgetStore{budgets: make(map[int64]core.Budget)}
}

func (s *fakeBudgetStore) CreateBudget(ctx context.Context, b core.Budget) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	b.ID = s.nextID
	s.budgets[b.ID] = b
	return b.ID, nil
}

func (s *fakeBudgetStore) UpdateBudget(ctx context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[b.ID]; !ok {
		return core.ErrNotFound
	}
	s.budgets[b.ID] = b
	return nil
}

func (s *fakeBudgetStore) DeleteBudget(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.budgets, id)
	return nil
}

func (s *fakeBudgetStore) GetBudget(ctx context.Context, id int64) (*core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &b, nil
}

func (s *fakeBudgetStore) ListActiveBudgets(ctx context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []core.Budget
	for id := int64(1); id <= s.nextID; id++ {
		if b, ok := s.budgets[id]; ok && b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

// fakeAlertStore mirrors the repository's dedup semantics in memory.
type fakeAlertStore struct {
	mu        sync.Mutex
	alerts    []core.BudgetAlert
	insertErr error
}

func (s *fakeAlertStore) InsertAlertDeduped(ctx context.Context, a core.BudgetAlert, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return false, s.insertErr
	}
	cutoff := a.TriggeredAt.Add(-window)
	for _, existing := range s.alerts {
		if existing.BudgetID == a.BudgetID && existing.Kind == a.Kind && existing.TriggeredAt.After(cutoff) {
			return false, nil
		}
	}
	s.alerts = append(s.alerts, a)
	return true, nil
}

func (s *fakeAlertStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

type fakeNotifier struct {
	mu       sync.Mutex
	alerts   int
	digests  int
	sendErr  error
	lastKind core.AlertKind
}

func (n *fakeNotifier) SendAlert(ctx context.Context, recipient string, p core.BudgetProgress, kind core.AlertKind) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts++
	n.lastKind = kind
	return n.sendErr
}

func (n *fakeNotifier) SendDigest(ctx context.Context, recipient string, progresses []core.BudgetProgress) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests++
	return n.sendErr
}
