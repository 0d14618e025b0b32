package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeKind direction of a trade.
type TradeKind string

const (
	// TradeBuy spends a fixed notional on shares.
	TradeBuy TradeKind = "BUY"
	// TradeSell liquidates a fraction of the holdings.
	TradeSell TradeKind = "SELL"
)

// ParseTradeKind accepts BUY or SELL in any case.
func ParseTradeKind(s string) (TradeKind, error) {
	switch TradeKind(strings.ToUpper(strings.TrimSpace(s))) {
	case TradeBuy:
		return TradeBuy, nil
	case TradeSell:
		return TradeSell, nil
	default:
		return "", fmt.Errorf("%w: unknown trade type %q", ErrInvalidTrade, s)
	}
}

// IsValid checks if the kind is BUY or SELL.
func (k TradeKind) IsValid() bool {
	return k == TradeBuy || k == TradeSell
}

// String returns the string representation.
func (k TradeKind) String() string {
	return string(k)
}

// TradeRequest ephemeral sizing of one testnet trade.
type TradeRequest struct {
	Kind TradeKind
	// NotionalOrFraction currency amount for BUY, share fraction for SELL.
	NotionalOrFraction decimal.Decimal
}

// TradeStatus outcome stored with every testnet trade record.
type TradeStatus string

const (
	TradeStatusExecuted TradeStatus = "executed"
	TradeStatusRejected TradeStatus = "rejected"
)

// TradeRecord append-only entry of a symbol's trade history.
type TradeRecord struct {
	ID               string          `json:"id"`
	Symbol           string          `json:"symbol"`
	Timestamp        time.Time       `json:"timestamp"`
	PriceAtExecution decimal.Decimal `json:"price_at_execution"`
	Kind             TradeKind       `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Status           TradeStatus     `json:"status"`
	Reason           string          `json:"reason,omitempty"`
	// wallet after the attempt: shared cash and the symbol's holdings
	BalanceAfter decimal.Decimal `json:"balance_after"`
	SharesAfter  decimal.Decimal `json:"shares_after"`
}

// TradeRecordEntry bundles a record with the log index it was stored at.
type TradeRecordEntry struct {
	Index  uint64
	Record TradeRecord
}
