// Package domain defines the trading state shared by the engine, stores, feeds and the web layer.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultInitialBalance is the cash every wallet starts with.
var DefaultInitialBalance = decimal.NewFromInt(10000)

// WalletState is the authoritative cash/position record of one user.
type WalletState struct {
	// Balance cash available for buying, never negative.
	Balance decimal.Decimal `json:"balance"`
	// Shares quantity held, never negative.
	Shares decimal.Decimal `json:"shares"`
}

// NewWalletState creates the default state a user gets on first access.
func NewWalletState(initialBalance decimal.Decimal) WalletState {
	return WalletState{Balance: initialBalance, Shares: decimal.Zero}
}

// Validate reports ErrNegativeState if either field is below zero.
func (w WalletState) Validate() error {
	if w.Balance.IsNegative() {
		return fmt.Errorf("%w: balance %s", ErrNegativeState, w.Balance.String())
	}
	if w.Shares.IsNegative() {
		return fmt.Errorf("%w: shares %s", ErrNegativeState, w.Shares.String())
	}
	return nil
}

// Equal compares both fields numerically.
func (w WalletState) Equal(other WalletState) bool {
	return w.Balance.Equal(other.Balance) && w.Shares.Equal(other.Shares)
}

// String returns a human-readable representation.
func (w WalletState) String() string {
	return fmt.Sprintf("balance: %s shares: %s", w.Balance.String(), w.Shares.String())
}
