package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ViewStatus freshness of a portfolio view.
type ViewStatus string

const (
	// ViewOK both inputs are live.
	ViewOK ViewStatus = "ok"
	// ViewWarmingUp wallet or price not observed yet.
	ViewWarmingUp ViewStatus = "warming_up"
	// ViewDegraded store or feed is failing; numbers are the last known ones.
	ViewDegraded ViewStatus = "degraded"
)

// PortfolioView derived valuation of a wallet at the latest price. Never persisted.
type PortfolioView struct {
	UserID    string          `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Balance   decimal.Decimal `json:"balance"`
	Shares    decimal.Decimal `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	PriceTime time.Time       `json:"price_time"`
	Value     decimal.Decimal `json:"value"`
	Status    ViewStatus      `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PortfolioValue is balance + shares * price.
func PortfolioValue(w WalletState, price decimal.Decimal) decimal.Decimal {
	return w.Balance.Add(w.Shares.Mul(price))
}

// NewPortfolioView computes the view for a wallet and sample.
func NewPortfolioView(userID, symbol string, w WalletState, sample PriceSample, now time.Time) PortfolioView {
	return PortfolioView{
		UserID:    userID,
		Symbol:    symbol,
		Balance:   w.Balance,
		Shares:    w.Shares,
		Price:     sample.Price,
		PriceTime: sample.Time,
		Value:     PortfolioValue(w, sample.Price),
		Status:    ViewOK,
		UpdatedAt: now,
	}
}
