package core

import "strings"

// Internal transfers (credit-card bill payments and similar) show up in the
// provider feed as ordinary transactions. They are money movement between
// the user's own accounts, not spend, and must stay out of spend totals.
const (
	transferMarkerPhrase = "internal payment"
	transferCategory     = "LOAN_PAYMENTS"
)

// SpendRecord is the minimal projection the classification filter needs.
// Both full Transaction rows and partial storage projections satisfy it.
type SpendRecord interface {
	SpendAmount() Money
	SpendName() string
	SpendMerchant() string
	SpendCategory() string
}

// SpendAmount implements SpendRecord.
func (t Transaction) SpendAmount() Money { return t.Amount }

// SpendName implements SpendRecord.
func (t Transaction) SpendName() string { return t.Name }

// SpendMerchant implements SpendRecord.
func (t Transaction) SpendMerchant() string { return t.MerchantName }

// SpendCategory implements SpendRecord.
func (t Transaction) SpendCategory() string { return t.Category }

// IsExcludedTransfer reports whether a transaction is an internal transfer
// to be excluded from spend aggregates. All three conditions must hold:
// the descriptive name contains the internal-payment marker phrase, the
// merchant name is absent or blank, and the category is the loan/transfer
// payment label. Pure predicate, no fuzzy matching.
func IsExcludedTransfer(r SpendRecord) bool {
	if !strings.Contains(strings.ToLower(r.SpendName()), transferMarkerPhrase) {
		return false
	}
	if strings.TrimSpace(r.SpendMerchant()) != "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.SpendCategory()), transferCategory)
}
