// Package provider implements the client for the external
// account-aggregation service that supplies account and transaction data.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// MaxPageSize is the largest page the provider accepts per call.
const MaxPageSize = 500

// ErrInvalidCredential marks a permanently rejected access credential.
// Callers must not retry it; the account needs to be re-linked.
var ErrInvalidCredential = errors.New("invalid access credential")

type (
	// Transaction is the wire representation of a provider transaction.
	// Amounts arrive as decimals with the provider's convention of
	// positive = outflow, which matches the ledger convention.
	Transaction struct {
		TransactionID   string          `json:"transaction_id"`
		AccountID       string          `json:"account_id"`
		Amount          decimal.Decimal `json:"amount"`
		ISOCurrencyCode string          `json:"iso_currency_code"`
		Date            string          `json:"date"`
		Name            string          `json:"name"`
		MerchantName    string          `json:"merchant_name"`
		Category        string          `json:"category"`
		Pending         bool            `json:"pending"`
		PaymentChannel  string          `json:"payment_channel"`
	}

	// AccountMeta is the provider's description of a linked account.
	AccountMeta struct {
		AccountID     string `json:"account_id"`
		Name          string `json:"name"`
		Mask          string `json:"mask"`
		Type          string `json:"type"`
		Subtype       string `json:"subtype"`
		InstitutionID string `json:"institution_id"`
	}

	// TransactionsRequest asks for one page of transactions in a date
	// range. AccountIDs optionally restricts to specific sub-accounts.
	TransactionsRequest struct {
		AccessToken string
		StartDate   time.Time
		EndDate     time.Time
		AccountIDs  []string
		Count       int
		Offset      int
	}

	// TransactionsPage is one page plus the provider-reported total for
	// the whole range.
	TransactionsPage struct {
		Transactions      []Transaction
		TotalTransactions int
	}

	// Client is the provider API surface the engine consumes. It is an
	// explicitly constructed, injected dependency so tests can swap in
	// fakes.
	Client interface {
		ListTransactions(ctx context.Context, req TransactionsRequest) (*TransactionsPage, error)
		ListAccounts(ctx context.Context, accessToken string) ([]AccountMeta, error)
		ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)
	}
)

// APIError is a provider-reported failure. Rate limits and server-side
// errors are retryable; everything else is not.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// Retryable reports whether the call may be retried with backoff.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTransient reports whether err is worth retrying. Network-level
// failures without a provider response count as transient.
func IsTransient(err error) bool {
	if errors.Is(err, ErrInvalidCredential) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

var cents = decimal.NewFromInt(100)

// Normalize converts the wire transaction into a ledger transaction owned
// by the given local account, rounding the decimal amount to whole cents.
func (t Transaction) Normalize(accountID int64) (core.Transaction, error) {
	date, err := time.Parse("2006-01-02", t.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", t.Date, err)
	}

	return core.Transaction{
		ExternalID:     t.TransactionID,
		AccountID:      accountID,
		Amount:         core.Money{Cents: t.Amount.Mul(cents).Round(0).IntPart()},
		Currency:       t.ISOCurrencyCode,
		Date:           date,
		Name:           t.Name,
		MerchantName:   t.MerchantName,
		Category:       t.Category,
		Pending:        t.Pending,
		PaymentChannel: t.PaymentChannel,
	}, nil
}
