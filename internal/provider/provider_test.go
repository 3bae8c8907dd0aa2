package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTransactionNormalize(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		wantCents int64
	}{
		{"whole dollars", "12", 1200},
		{"two decimal places", "12.34", 1234},
		{"negative inflow", "-45.67", -4567},
		{"rounds sub-cent precision", "10.005", 1001},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := Transaction{
				TransactionID:   "txn-1",
				Amount:          decimal.RequireFromString(tt.amount),
				ISOCurrencyCode: "USD",
				Date:            "2026-08-15",
				Name:            "Coffee",
				Category:        "FOOD_AND_DRINK",
			}

			txn, err := wire.Normalize(42)
			if err != nil {
				t.Fatalf("Normalize() err = %v", err)
			}
			if txn.Amount.Cents != tt.wantCents {
				t.Errorf("Amount.Cents = %d, want %d", txn.Amount.Cents, tt.wantCents)
			}
			if txn.AccountID != 42 {
				t.Errorf("AccountID = %d, want 42", txn.AccountID)
			}
			if txn.ExternalID != "txn-1" {
				t.Errorf("ExternalID = %q", txn.ExternalID)
			}
			want := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
			if !txn.Date.Equal(want) {
				t.Errorf("Date = %v, want %v", txn.Date, want)
			}
		})
	}
}

func TestTransactionNormalizeBadDate(t *testing.T) {
	wire := Transaction{TransactionID: "txn-1", Date: "15/08/2026"}
	if _, err := wire.Normalize(1); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid credential", ErrInvalidCredential, false},
		{"wrapped invalid credential", errors.Join(errors.New("call failed"), ErrInvalidCredential), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"rate limited", &APIError{StatusCode: 429, Code: "RATE_LIMIT_EXCEEDED"}, true},
		{"server error", &APIError{StatusCode: 500, Code: "INTERNAL_SERVER_ERROR"}, true},
		{"bad gateway", &APIError{StatusCode: 502}, true},
		{"bad request", &APIError{StatusCode: 400, Code: "INVALID_FIELD"}, false},
		{"not found", &APIError{StatusCode: 404}, false},
		{"bare network error", errors.New("connection reset"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	if (&APIError{StatusCode: 400}).Retryable() {
		t.Error("400 should not be retryable")
	}
	if !(&APIError{StatusCode: 429}).Retryable() {
		t.Error("429 should be retryable")
	}
	if !(&APIError{StatusCode: 503}).Retryable() {
		t.Error("503 should be retryable")
	}
}
