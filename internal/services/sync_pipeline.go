package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/provider"
	"bilancio/internal/retry"
)

// SyncConfig holds tuning for the sync pipeline.
type SyncConfig struct {
	// PageSize is the page size requested per provider call, capped by
	// the provider at 500.
	PageSize int

	// OffsetCeiling is the runaway-loop safety bound. Reaching it ends
	// pagination and marks the result incomplete.
	OffsetCeiling int

	// PageDelay is the throttle between successful page requests.
	PageDelay time.Duration

	// Retry bounds page-request retries (the initial attempt plus two
	// more by default).
	Retry retry.Policy

	// Concurrency limits parallel account syncs in a batch run.
	Concurrency int
}

// DefaultSyncConfig returns sensible defaults
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		PageSize:      provider.MaxPageSize,
		OffsetCeiling: 10000,
		PageDelay:     250 * time.Millisecond,
		Retry:         retry.DefaultPolicy(),
		Concurrency:   4,
	}
}

// SyncPipeline pulls transactions from the external provider per account
// and merges them into the ledger via idempotent upsert.
type SyncPipeline struct {
	accounts AccountStore
	ledger   LedgerStore
	client   provider.Client
	cfg      SyncConfig
	log      *applog.Logger
	now      func() time.Time
}

func NewSyncPipeline(accounts AccountStore, ledger LedgerStore, client provider.Client, cfg SyncConfig, logger *applog.Logger) *SyncPipeline {
	return &SyncPipeline{
		accounts: accounts,
		ledger:   ledger,
		client:   client,
		cfg:      cfg,
		log:      logger.WithComponent(applog.ComponentSync),
		now:      time.Now,
	}
}

// SyncResult reports the outcome of syncing one account.
type SyncResult struct {
	Account  core.Account
	Fetched  int
	Inserted int
	Updated  int
	Skipped  int

	// Incomplete is set when pagination stopped at the offset ceiling
	// before reaching the provider-reported total.
	Incomplete bool

	Err error
}

// BatchReport collects per-account results of a batch run.
type BatchReport struct {
	Results []SyncResult
}

// Succeeded counts accounts that synced without error.
func (r BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts accounts whose sync aborted with an error.
func (r BatchReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// SyncAccount fetches every transaction for the account in [start, end]
// and upserts it into the ledger. A zero start resolves incrementally: the
// account's most recent stored transaction date, or January 1st of the
// current year for a newly linked account. A zero end means today.
//
// The pagination loop for a single account is strictly sequential. The
// caller may cancel between page fetches; pages already committed stay
// valid because the merge is idempotent.
func (p *SyncPipeline) SyncAccount(ctx context.Context, account core.Account, start, end time.Time) (SyncResult, error) {
	result := SyncResult{Account: account}

	var err error
	if start, err = p.resolveStart(ctx, account, start); err != nil {
		result.Err = err
		return result, err
	}
	if end.IsZero() {
		end = p.now()
	}

	p.log.InfoContext(ctx, "account sync started",
		applog.FieldAccountID, account.ID,
		applog.FieldExternalID, account.ExternalID,
		applog.FieldStartDate, start.Format("2006-01-02"),
		applog.FieldEndDate, end.Format("2006-01-02"))

	pageSize := p.cfg.PageSize
	if pageSize <= 0 || pageSize > provider.MaxPageSize {
		pageSize = provider.MaxPageSize
	}

	offset := 0
	total := -1

	for {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result, err
		}

		page, err := p.fetchPage(ctx, account, start, end, pageSize, offset)
		if err != nil {
			result.Err = err
			return result, fmt.Errorf("account %s at offset %d: %w", account.ExternalID, offset, err)
		}

		if total < 0 {
			total = page.TotalTransactions
		}
		if len(page.Transactions) == 0 {
			break
		}

		p.mergePage(ctx, account, page.Transactions, &result)
		offset += len(page.Transactions)

		if result.Fetched >= total {
			break
		}
		if offset >= p.cfg.OffsetCeiling {
			result.Incomplete = true
			p.log.WarnContext(ctx, "pagination stopped at offset ceiling",
				applog.FieldAccountID, account.ID,
				applog.FieldOffset, offset,
				applog.FieldTotal, total)
			break
		}

		// throttle before the next page
		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			return result, ctx.Err()
		case <-time.After(p.cfg.PageDelay):
		}
	}

	p.log.InfoContext(ctx, "account sync finished",
		applog.FieldAccountID, account.ID,
		applog.FieldFetched, result.Fetched,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"incomplete", result.Incomplete)

	return result, nil
}

func (p *SyncPipeline) resolveStart(ctx context.Context, account core.Account, start time.Time) (time.Time, error) {
	if !start.IsZero() {
		return start, nil
	}
	latest, ok, err := p.ledger.LatestTransactionDate(ctx, account.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve sync start: %w", err)
	}
	if ok {
		return latest, nil
	}
	year := p.now().Year()
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), nil
}

// fetchPage requests one page, retrying transient failures with backoff.
// Permanent provider errors (invalid credential) abort immediately.
func (p *SyncPipeline) fetchPage(ctx context.Context, account core.Account, start, end time.Time, count, offset int) (*provider.TransactionsPage, error) {
	// One access token can cover several sub-accounts; restrict the call
	// to the one being synced.
	req := provider.TransactionsRequest{
		AccessToken: account.AccessToken,
		StartDate:   start,
		EndDate:     end,
		AccountIDs:  []string{account.ExternalID},
		Count:       count,
		Offset:      offset,
	}

	var page *provider.TransactionsPage
	err := retry.Do(ctx, p.cfg.Retry, func() error {
		pg, err := p.client.ListTransactions(ctx, req)
		if err != nil {
			if !provider.IsTransient(err) {
				return retry.Permanent(err)
			}
			p.log.WarnContext(ctx, "page request failed, will retry",
				applog.FieldAccountID, account.ID,
				applog.FieldOffset, offset,
				applog.FieldError, err.Error())
			return err
		}
		page = pg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// mergePage upserts every transaction of a page. Per-transaction storage
// errors are logged and counted, never fatal for the page.
func (p *SyncPipeline) mergePage(ctx context.Context, account core.Account, txns []provider.Transaction, result *SyncResult) {
	for _, wire := range txns {
		if wire.AccountID != "" && wire.AccountID != account.ExternalID {
			p.log.WarnContext(ctx, "skipping transaction for another sub-account",
				applog.FieldTxnID, wire.TransactionID,
				applog.FieldExternalID, wire.AccountID)
			result.Skipped++
			continue
		}

		txn, err := wire.Normalize(account.ID)
		if err != nil {
			p.log.WarnContext(ctx, "skipping malformed transaction",
				applog.FieldTxnID, wire.TransactionID,
				applog.FieldError, err.Error())
			result.Skipped++
			continue
		}

		inserted, err := p.ledger.UpsertTransaction(ctx, txn)
		if err != nil {
			p.log.ErrorContext(ctx, "transaction upsert failed",
				applog.FieldTxnID, txn.ExternalID,
				applog.FieldError, err.Error())
			result.Skipped++
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	result.Fetched += len(txns)
}

// SyncAll syncs every stored account. Per-account failures are isolated
// into the report, never propagated, so one bad account cannot block the
// rest. Accounts run in parallel up to the configured limit; the storage
// upsert keyed on the external transaction id keeps writes safe.
func (p *SyncPipeline) SyncAll(ctx context.Context) (BatchReport, error) {
	accounts, err := p.accounts.ListAccounts(ctx)
	if err != nil {
		return BatchReport{}, fmt.Errorf("list accounts: %w", err)
	}

	results := make([]SyncResult, len(accounts))

	var g errgroup.Group
	limit := p.cfg.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			res, err := p.SyncAccount(ctx, account, time.Time{}, time.Time{})
			if err != nil {
				p.log.ErrorContext(ctx, "account sync failed",
					applog.FieldAccountID, account.ID,
					applog.FieldExternalID, account.ExternalID,
					applog.FieldError, err.Error())
				res.Err = err
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report := BatchReport{Results: results}
	p.log.InfoContext(ctx, "batch sync finished",
		"accounts", len(accounts),
		"succeeded", report.Succeeded(),
		"failed", report.Failed())

	return report, nil
}
