// Package engine holds the trade execution rules: a pure function from
// (wallet, trade kind, price) to a new wallet or a rejection.
package engine

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

var (
	// DefaultNotional currency spent by one BUY.
	DefaultNotional = decimal.NewFromInt(1000)
	// DefaultFraction share of holdings liquidated by one SELL.
	DefaultFraction = decimal.NewFromFloat(0.5)

	// results in (-underflowEpsilon, 0) are rounding noise and clamp to zero
	underflowEpsilon = decimal.New(1, -12)
	one              = decimal.NewFromInt(1)
)

// Rules fixed trade sizing.
type Rules struct {
	// Notional amount spent on a BUY.
	Notional decimal.Decimal
	// Fraction of current shares sold on a SELL, in (0, 1].
	Fraction decimal.Decimal
}

// DefaultRules BUY 1000, SELL half of the holdings.
func DefaultRules() Rules {
	return Rules{Notional: DefaultNotional, Fraction: DefaultFraction}
}

// Validate checks notional > 0 and 0 < fraction <= 1.
func (r Rules) Validate() error {
	if !r.Notional.IsPositive() {
		return errors.Wrapf(domain.ErrInvalidTrade, "notional must be positive, got %s", r.Notional.String())
	}
	if !r.Fraction.IsPositive() || r.Fraction.GreaterThan(one) {
		return errors.Wrapf(domain.ErrInvalidTrade, "sell fraction must be in (0, 1], got %s", r.Fraction.String())
	}
	return nil
}

// Engine executes trades with a fixed set of rules.
type Engine struct {
	rules Rules
}

// New creates an engine, rejecting invalid rules.
func New(rules Rules) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Engine{rules: rules}, nil
}

// Rules returns the configured rules.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Execute applies a trade at the given price with the engine rules.
func (e *Engine) Execute(current domain.WalletState, kind domain.TradeKind, price decimal.Decimal) (domain.WalletState, error) {
	return ExecuteWith(current, kind, price, e.rules)
}

// ExecuteWith applies a trade with explicit rules. On any error the returned
// state equals current.
func ExecuteWith(current domain.WalletState, kind domain.TradeKind, price decimal.Decimal, rules Rules) (domain.WalletState, error) {
	if !kind.IsValid() {
		return current, domain.NewRejection(kind, domain.ErrInvalidTrade, "unknown trade kind %q", string(kind))
	}
	if !price.IsPositive() {
		return current, domain.NewRejection(kind, domain.ErrInvalidPrice, "price %s", price.String())
	}
	if err := rules.Validate(); err != nil {
		return current, domain.NewRejection(kind, domain.ErrInvalidTrade, "%s", err.Error())
	}

	switch kind {
	case domain.TradeBuy:
		return buy(current, price, rules.Notional)
	default:
		return sell(current, price, rules.Fraction)
	}
}

func buy(current domain.WalletState, price, notional decimal.Decimal) (domain.WalletState, error) {
	if current.Balance.LessThan(notional) {
		return current, domain.NewRejection(domain.TradeBuy, domain.ErrInsufficientBalance,
			"have %s need %s", current.Balance.String(), notional.String())
	}

	bought := notional.Div(price)
	next := domain.WalletState{
		Balance: current.Balance.Sub(notional),
		Shares:  current.Shares.Add(bought),
	}
	return settle(current, next)
}

func sell(current domain.WalletState, price, fraction decimal.Decimal) (domain.WalletState, error) {
	if !current.Shares.IsPositive() {
		return current, domain.NewRejection(domain.TradeSell, domain.ErrNoHoldings, "shares %s", current.Shares.String())
	}

	sold := current.Shares.Mul(fraction)
	if fraction.Equal(one) {
		sold = current.Shares
	}
	next := domain.WalletState{
		Balance: current.Balance.Add(sold.Mul(price)),
		Shares:  current.Shares.Sub(sold),
	}
	return settle(current, next)
}

// settle clamps rounding underflow and refuses any larger negative value.
func settle(current, next domain.WalletState) (domain.WalletState, error) {
	balance, err := clampUnderflow(next.Balance)
	if err != nil {
		return current, errors.Wrap(err, "balance")
	}
	shares, err := clampUnderflow(next.Shares)
	if err != nil {
		return current, errors.Wrap(err, "shares")
	}
	return domain.WalletState{Balance: balance, Shares: shares}, nil
}

func clampUnderflow(v decimal.Decimal) (decimal.Decimal, error) {
	if !v.IsNegative() {
		return v, nil
	}
	if v.GreaterThan(underflowEpsilon.Neg()) {
		return decimal.Zero, nil
	}
	return v, errors.Wrapf(domain.ErrNegativeState, "computed %s", v.String())
}
