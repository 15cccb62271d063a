package domain

import (
	"time"

	"trustbridge/pkg/money"

	"github.com/google/uuid"
)

// Currency is a supported settlement currency.
type Currency string

const (
	CurrencyNGN Currency = "NGN"
	CurrencyGHS Currency = "GHS"
	CurrencyKES Currency = "KES"
	CurrencyUSD Currency = "USD"
)

// ParseCurrency converts a currency code into a Currency.
func ParseCurrency(s string) (Currency, bool) {
	switch Currency(s) {
	case CurrencyNGN, CurrencyGHS, CurrencyKES, CurrencyUSD:
		return Currency(s), true
	}
	return "", false
}

// Wallet holds one user's balances for one currency. Balance is spendable;
// LockedBalance is reserved by in-flight escrow. Both are never negative.
// There is exactly one wallet per (user, currency), created lazily.
type Wallet struct {
	ID            uuid.UUID   `json:"id"`
	UserID        uuid.UUID   `json:"user_id"`
	Currency      Currency    `json:"currency"`
	Balance       money.Money `json:"balance"`
	LockedBalance money.Money `json:"locked_balance"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Total returns balance + locked_balance, the quantity conserved by every
// wallet primitive except external deposits.
func (w *Wallet) Total() money.Money {
	return w.Balance.Add(w.LockedBalance)
}
