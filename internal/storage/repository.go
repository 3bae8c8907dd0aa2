package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteRepository persists accounts, the transaction ledger, budgets and
// alerts. Write serialization per external transaction id relies on the
// unique index plus sqlite's single-writer model.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- accounts ---

// CreateAccount stores a newly linked account. The external identifier is
// globally unique; re-linking the same account is a conflict.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (external_id, name, mask, type, subtype, institution_id, access_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ExternalID, a.Name, a.Mask, a.Type, a.Subtype, a.InstitutionID, a.AccessToken,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("account insert id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetAccountByExternalID(ctx context.Context, externalID string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, external_id, name, mask, type, subtype, institution_id, access_token, created_at
		FROM accounts WHERE external_id = ?`, externalID)
	return scanAccount(row)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, external_id, name, mask, type, subtype, institution_id, access_token, created_at
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// DeleteAccount unlinks an account; its transactions cascade away.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %d: %w", id, core.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*core.Account, error) {
	var a core.Account
	var createdAt string
	err := row.Scan(&a.ID, &a.ExternalID, &a.Name, &a.Mask, &a.Type, &a.Subtype,
		&a.InstitutionID, &a.AccessToken, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

// --- transactions ---

// UpsertTransaction inserts or overwrites by external transaction id,
// making sync idempotent over overlapping date ranges. It reports whether
// a new row was created.
func (r *SQLiteRepository) UpsertTransaction(ctx context.Context, t core.Transaction) (bool, error) {
	var existing int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE external_id = ?`, t.ExternalID).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("check transaction: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions
			(external_id, account_id, amount_cents, currency, date, name, merchant_name, category, pending, payment_channel, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			name = excluded.name,
			merchant_name = excluded.merchant_name,
			category = excluded.category,
			pending = excluded.pending,
			updated_at = excluded.updated_at`,
		t.ExternalID, t.AccountID, t.Amount.Cents, t.Currency, t.Date.Format(dateLayout),
		t.Name, t.MerchantName, t.Category, boolToInt(t.Pending), t.PaymentChannel,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("upsert transaction %s: %w", t.ExternalID, err)
	}

	return existing == 0, nil
}

// LatestTransactionDate returns the most recent stored transaction date for
// an account. The second return is false when the account has no rows yet.
func (r *SQLiteRepository) LatestTransactionDate(ctx context.Context, accountID int64) (time.Time, bool, error) {
	var date sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM transactions WHERE account_id = ?`, accountID).Scan(&date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest transaction date: %w", err)
	}
	if !date.Valid || date.String == "" {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(dateLayout, date.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse latest date %q: %w", date.String, err)
	}
	return d, true, nil
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// spendRow is the partial projection handed to the classification filter.
type spendRow struct {
	amountCents int64
	name        string
	merchant    string
	category    string
}

func (s spendRow) SpendAmount() core.Money { return core.Money{Cents: s.amountCents} }
func (s spendRow) SpendName() string       { return s.name }
func (s spendRow) SpendMerchant() string   { return s.merchant }
func (s spendRow) SpendCategory() string   { return s.category }

// ListSpendCandidates returns outflow transactions in the filter's period
// and scope. Transfer exclusion happens in the caller via the
// classification filter, not in SQL.
func (r *SQLiteRepository) ListSpendCandidates(ctx context.Context, f core.SpendFilter) ([]core.SpendRecord, error) {
	query := `
		SELECT amount_cents, name, merchant_name, category
		FROM transactions
		WHERE amount_cents > 0 AND date >= ? AND date <= ?`
	args := []any{f.Start.Format(dateLayout), f.End.Format(dateLayout)}

	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Merchant != "" {
		query += ` AND lower(merchant_name) LIKE '%' || lower(?) || '%' ESCAPE '\'`
		args = append(args, escapeLike(f.Merchant))
	}
	if f.AccountID != 0 {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list spend candidates: %w", err)
	}
	defer rows.Close()

	var records []core.SpendRecord
	for rows.Next() {
		var s spendRow
		if err := rows.Scan(&s.amountCents, &s.name, &s.merchant, &s.category); err != nil {
			return nil, fmt.Errorf("scan spend candidate: %w", err)
		}
		records = append(records, s)
	}
	return records, rows.Err()
}

// --- budgets ---

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (name, scope, category, merchant, account_id, amount_cents, period, start_date, end_date, active, alert_threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Name, string(b.Scope), b.Category, b.Merchant, b.AccountID, b.Amount.Cents,
		string(b.Period), b.StartDate.Format(dateLayout), nullableDate(b.EndDate),
		boolToInt(b.Active), b.AlertThreshold)
	if err != nil {
		return 0, fmt.Errorf("create budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("budget insert id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE budgets SET name = ?, scope = ?, category = ?, merchant = ?, account_id = ?,
			amount_cents = ?, period = ?, start_date = ?, end_date = ?, active = ?, alert_threshold = ?
		WHERE id = ?`,
		b.Name, string(b.Scope), b.Category, b.Merchant, b.AccountID, b.Amount.Cents,
		string(b.Period), b.StartDate.Format(dateLayout), nullableDate(b.EndDate),
		boolToInt(b.Active), b.AlertThreshold, b.ID)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("budget %d: %w", b.ID, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("budget %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id int64) (*core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, scope, category, merchant, account_id, amount_cents, period, start_date, end_date, active, alert_threshold
		FROM budgets WHERE id = ?`, id)
	return scanBudget(row)
}

func (r *SQLiteRepository) ListActiveBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, scope, category, merchant, account_id, amount_cents, period, start_date, end_date, active, alert_threshold
		FROM budgets WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

func scanBudget(row rowScanner) (*core.Budget, error) {
	var b core.Budget
	var scope, period, startDate string
	var endDate sql.NullString
	var active int
	err := row.Scan(&b.ID, &b.Name, &scope, &b.Category, &b.Merchant, &b.AccountID,
		&b.Amount.Cents, &period, &startDate, &endDate, &active, &b.AlertThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan budget: %w", err)
	}
	b.Scope = core.ScopeType(scope)
	b.Period = core.PeriodKind(period)
	b.Active = active != 0
	if b.StartDate, err = time.Parse(dateLayout, startDate); err != nil {
		return nil, fmt.Errorf("parse budget start date: %w", err)
	}
	if endDate.Valid && endDate.String != "" {
		if b.EndDate, err = time.Parse(dateLayout, endDate.String); err != nil {
			return nil, fmt.Errorf("parse budget end date: %w", err)
		}
	}
	return &b, nil
}

// --- alerts ---

// InsertAlertDeduped persists the alert unless one of the same
// (budget, kind) was triggered within the window. The check and the insert
// are one statement, so concurrent evaluations cannot both create a row.
func (r *SQLiteRepository) InsertAlertDeduped(ctx context.Context, a core.BudgetAlert, window time.Duration) (bool, error) {
	cutoff := a.TriggeredAt.Add(-window).Unix()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_alerts (budget_id, kind, triggered_at, spent_cents, percentage, read)
		SELECT ?, ?, ?, ?, ?, 0
		WHERE NOT EXISTS (
			SELECT 1 FROM budget_alerts WHERE budget_id = ? AND kind = ? AND triggered_at > ?
		)`,
		a.BudgetID, string(a.Kind), a.TriggeredAt.Unix(), a.SpentCents, a.Percentage,
		a.BudgetID, string(a.Kind), cutoff)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("alert rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context, budgetID int64) ([]core.BudgetAlert, error) {
	return r.listAlerts(ctx, `
		SELECT id, budget_id, kind, triggered_at, spent_cents, percentage, read
		FROM budget_alerts WHERE budget_id = ? ORDER BY triggered_at DESC`, budgetID)
}

func (r *SQLiteRepository) ListUnreadAlerts(ctx context.Context) ([]core.BudgetAlert, error) {
	return r.listAlerts(ctx, `
		SELECT id, budget_id, kind, triggered_at, spent_cents, percentage, read
		FROM budget_alerts WHERE read = 0 ORDER BY triggered_at DESC`)
}

func (r *SQLiteRepository) listAlerts(ctx context.Context, query string, args ...any) ([]core.BudgetAlert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []core.BudgetAlert
	for rows.Next() {
		var a core.BudgetAlert
		var kind string
		var triggered int64
		var read int
		if err := rows.Scan(&a.ID, &a.BudgetID, &kind, &triggered, &a.SpentCents, &a.Percentage, &read); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Kind = core.AlertKind(kind)
		a.TriggeredAt = time.Unix(triggered, 0).UTC()
		a.Read = read != 0
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *SQLiteRepository) MarkAlertRead(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE budget_alerts SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// escapeLike makes LIKE wildcard characters in user-supplied filter values
// match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}
