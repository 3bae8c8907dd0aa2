package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Weekly  PeriodKind = "weekly"
	Monthly PeriodKind = "monthly"
	Yearly  PeriodKind = "yearly"
	Custom  PeriodKind = "custom"
)

const (
	ScopeTotal    ScopeType = "total"
	ScopeCategory ScopeType = "category"
	ScopeMerchant ScopeType = "merchant"
	ScopeAccount  ScopeType = "account"
)

const (
	AlertApproaching AlertKind = "approaching"
	AlertWarning     AlertKind = "warning"
	AlertExceeded    AlertKind = "exceeded"
)

// DefaultAlertThreshold is the alert threshold percentage applied when a
// budget is created without one.
const DefaultAlertThreshold = 80.0

type (
	PeriodKind string
	ScopeType  string
	AlertKind  string

	Money struct {
		Cents int64
	}

	// Account is a linked financial account at the external provider. The
	// access token is the opaque credential used to query its transactions.
	Account struct {
		ID            int64
		ExternalID    string
		Name          string
		Mask          string
		Type          string
		Subtype       string
		InstitutionID string
		AccessToken   string
		CreatedAt     time.Time
	}

	// Transaction is a ledger entry owned by an Account, keyed by the
	// provider-assigned external identifier.
	//
	// Sign convention: positive cents are outflows (spend), negative cents
	// are inflows. All provider data is normalized to this convention at
	// ingestion; downstream consumers take Abs() when summing spend.
	Transaction struct {
		ID             int64
		ExternalID     string
		AccountID      int64
		Amount         Money
		Currency       string
		Date           time.Time
		Name           string
		MerchantName   string
		Category       string
		Pending        bool
		PaymentChannel string
		UpdatedAt      time.Time
	}

	// Budget caps spend for one scope over a recurring or custom period.
	// Exactly one of Category, Merchant, AccountID is set, matching Scope;
	// a total-spend budget sets none.
	Budget struct {
		ID             int64
		Name           string
		Scope          ScopeType
		Category       string
		Merchant       string
		AccountID      int64
		Amount         Money
		Period         PeriodKind
		StartDate      time.Time
		EndDate        time.Time // required for custom periods, zero otherwise
		Active         bool
		AlertThreshold float64
	}

	// BudgetAlert is a persisted alert row. At most one row per
	// (budget, kind) may be created within a 24-hour window.
	BudgetAlert struct {
		ID          int64
		BudgetID    int64
		Kind        AlertKind
		TriggeredAt time.Time
		SpentCents  int64
		Percentage  float64
		Read        bool
	}

	// SpendFilter selects candidate spend transactions for one budget
	// period. Merchant matches case-insensitively as a substring.
	SpendFilter struct {
		Start     time.Time
		End       time.Time
		Category  string
		Merchant  string
		AccountID int64
	}
)

var (
	ErrNotFound = errors.New("not found")

	ErrEmptyName        = errors.New("empty budget name")
	ErrInvalidAmount    = errors.New("budget amount must be positive")
	ErrInvalidScope     = errors.New("invalid budget scope")
	ErrScopeValue       = errors.New("scope value does not match scope type")
	ErrInvalidPeriod    = errors.New("invalid budget period")
	ErrMissingStartDate = errors.New("missing budget start date")
	ErrMissingEndDate   = errors.New("custom period requires an end date")
	ErrEndBeforeStart   = errors.New("end date must be after start date")
	ErrInvalidThreshold = errors.New("alert threshold must be between 1 and 100")
)

// Abs returns the absolute value of the amount.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

// Float64 returns the amount in major units for display and percentages.
func (m Money) Float64() float64 {
	return float64(m.Cents) / 100.0
}

// IsOutflow reports whether the amount represents spend.
func (m Money) IsOutflow() bool {
	return m.Cents > 0
}

// IsValid reports whether the period kind is one of the known kinds.
func (p PeriodKind) IsValid() bool {
	switch p {
	case Weekly, Monthly, Yearly, Custom:
		return true
	}
	return false
}

// IsValid reports whether the scope type is one of the known scopes.
func (s ScopeType) IsValid() bool {
	switch s {
	case ScopeTotal, ScopeCategory, ScopeMerchant, ScopeAccount:
		return true
	}
	return false
}

// ApplyDefaults fills zero-valued optional fields.
func (b *Budget) ApplyDefaults() {
	if b.AlertThreshold == 0 {
		b.AlertThreshold = DefaultAlertThreshold
	}
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if b.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if !b.Scope.IsValid() {
		return ErrInvalidScope
	}
	if err := b.validateScopeValue(); err != nil {
		return err
	}
	if !b.Period.IsValid() {
		return ErrInvalidPeriod
	}
	if b.StartDate.IsZero() {
		return ErrMissingStartDate
	}
	if b.Period == Custom && b.EndDate.IsZero() {
		return ErrMissingEndDate
	}
	if !b.EndDate.IsZero() && !b.EndDate.After(b.StartDate) {
		return ErrEndBeforeStart
	}
	if b.AlertThreshold < 1 || b.AlertThreshold > 100 {
		return ErrInvalidThreshold
	}
	return nil
}

func (b Budget) validateScopeValue() error {
	hasCategory := strings.TrimSpace(b.Category) != ""
	hasMerchant := strings.TrimSpace(b.Merchant) != ""
	hasAccount := b.AccountID != 0

	var want bool
	switch b.Scope {
	case ScopeCategory:
		want = hasCategory && !hasMerchant && !hasAccount
	case ScopeMerchant:
		want = hasMerchant && !hasCategory && !hasAccount
	case ScopeAccount:
		want = hasAccount && !hasCategory && !hasMerchant
	case ScopeTotal:
		want = !hasCategory && !hasMerchant && !hasAccount
	}
	if !want {
		return ErrScopeValue
	}
	return nil
}

// PeriodEnd resolves the end of the budget period. An explicit end date
// wins; otherwise the end is one period unit past the start date.
func (b Budget) PeriodEnd() (time.Time, error) {
	if !b.EndDate.IsZero() {
		return b.EndDate, nil
	}
	switch b.Period {
	case Weekly:
		return b.StartDate.AddDate(0, 0, 7), nil
	case Monthly:
		return b.StartDate.AddDate(0, 1, 0), nil
	case Yearly:
		return b.StartDate.AddDate(1, 0, 0), nil
	case Custom:
		return time.Time{}, ErrMissingEndDate
	}
	return time.Time{}, ErrInvalidPeriod
}

// ScopeValue returns the scope-identifying value for logging.
func (b Budget) ScopeValue() string {
	switch b.Scope {
	case ScopeCategory:
		return b.Category
	case ScopeMerchant:
		return b.Merchant
	case ScopeAccount:
		return "account"
	}
	return "total"
}

// SpendFilter builds the transaction filter for the budget's current period.
func (b Budget) SpendFilter() (SpendFilter, error) {
	end, err := b.PeriodEnd()
	if err != nil {
		return SpendFilter{}, err
	}
	f := SpendFilter{Start: b.StartDate, End: end}
	switch b.Scope {
	case ScopeCategory:
		f.Category = b.Category
	case ScopeMerchant:
		f.Merchant = b.Merchant
	case ScopeAccount:
		f.AccountID = b.AccountID
	}
	return f, nil
}

// AlertKindFor maps a progress percentage to the alert kind it triggers.
// The second return is false when no alert applies.
func AlertKindFor(percentage, threshold float64) (AlertKind, bool) {
	switch {
	case percentage >= 100:
		return AlertExceeded, true
	case percentage >= threshold:
		return AlertWarning, true
	case percentage >= threshold-10:
		return AlertApproaching, true
	}
	return "", false
}
