package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewPortfolioView(t *testing.T) {
	wallet := WalletState{Balance: decimal.NewFromInt(9000), Shares: decimal.NewFromInt(10)}
	sample := PriceSample{Time: time.Unix(100, 0), Price: decimal.NewFromInt(150)}
	now := time.Unix(200, 0)

	view := NewPortfolioView("user-1", "bitcoin", wallet, sample, now)

	assert.True(t, view.Value.Equal(decimal.NewFromInt(10500)), "got %s", view.Value)
	assert.Equal(t, ViewOK, view.Status)
	assert.Equal(t, "user-1", view.UserID)
	assert.Equal(t, "bitcoin", view.Symbol)
	assert.Equal(t, sample.Time, view.PriceTime)
	assert.Equal(t, now, view.UpdatedAt)
}

func TestWalletState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		wallet  WalletState
		wantErr bool
	}{
		{name: "default", wallet: NewWalletState(DefaultInitialBalance)},
		{name: "zero", wallet: WalletState{}},
		{name: "negative balance", wallet: WalletState{Balance: decimal.NewFromInt(-1)}, wantErr: true},
		{name: "negative shares", wallet: WalletState{Shares: decimal.NewFromFloat(-0.5)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wallet.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNegativeState)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseTradeKind(t *testing.T) {
	kind, err := ParseTradeKind("buy")
	assert.NoError(t, err)
	assert.Equal(t, TradeBuy, kind)

	kind, err = ParseTradeKind(" SELL ")
	assert.NoError(t, err)
	assert.Equal(t, TradeSell, kind)

	_, err = ParseTradeKind("HOLD")
	assert.ErrorIs(t, err, ErrInvalidTrade)
}

func TestReasonCode(t *testing.T) {
	rej := NewRejection(TradeBuy, ErrInsufficientBalance, "have %s", "500")

	assert.Equal(t, "InsufficientBalance", ReasonCode(rej))
	assert.Equal(t, "NoHoldings", ReasonCode(NewRejection(TradeSell, ErrNoHoldings, "")))
	assert.Equal(t, "", ReasonCode(nil))
	assert.Contains(t, rej.Error(), "BUY rejected")
}
