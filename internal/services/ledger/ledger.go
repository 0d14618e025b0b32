// Package ledger is the testnet trading desk: a single in-memory wallet that
// trades simulated coins and records every attempt in a trade log.
package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/events"
	"github.com/vadiminshakov/papertrade/internal/services/engine"
	"github.com/vadiminshakov/papertrade/internal/services/pricefeed"
)

// Market supplies the price a testnet trade executes at.
type Market interface {
	Has(symbol string) bool
	Latest(symbol string) (domain.PriceSample, error)
}

// TradeLog is the append-only record store.
type TradeLog interface {
	Append(rec domain.TradeRecord) (uint64, error)
	History(symbol string) ([]domain.TradeRecord, error)
	RecordsAfter(index uint64) ([]domain.TradeRecordEntry, error)
}

// Config configures the ledger.
type Config struct {
	InitialBalance decimal.Decimal
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithBroadcaster publishes every appended record.
func WithBroadcaster(b *events.TradeBroadcaster) Option {
	return func(l *Ledger) { l.broadcaster = b }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger shares one cash balance across coins and tracks holdings per coin.
// BUY spends amount of cash; SELL liquidates amount as a fraction (0, 1] of the coin's holdings.
type Ledger struct {
	market      Market
	log         TradeLog
	broadcaster *events.TradeBroadcaster
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	balance  decimal.Decimal
	holdings map[string]decimal.Decimal
}

// New creates a ledger and restores the wallet recorded in log.
func New(market Market, log TradeLog, cfg Config, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	if market == nil {
		return nil, errors.New("market is required")
	}
	if log == nil {
		return nil, errors.New("trade log is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	initial := cfg.InitialBalance
	if !initial.IsPositive() {
		initial = domain.DefaultInitialBalance
	}

	l := &Ledger{
		market:   market,
		log:      log,
		logger:   logger,
		now:      time.Now,
		balance:  initial,
		holdings: make(map[string]decimal.Decimal),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := l.replay(); err != nil {
		return nil, err
	}
	return l, nil
}

// replay restores the wallet from the state stored with each record.
// The last record wins for cash and the last record of a coin for its holdings,
// so a log that lost its head still restores what it holds.
func (l *Ledger) replay() error {
	entries, err := l.log.RecordsAfter(0)
	if err != nil {
		return errors.Wrap(err, "read trade log")
	}
	if len(entries) == 0 {
		return nil
	}

	for _, e := range entries {
		rec := e.Record
		if err := (domain.WalletState{Balance: rec.BalanceAfter, Shares: rec.SharesAfter}).Validate(); err != nil {
			l.logger.Warn("skipping trade record with invalid wallet state",
				zap.Uint64("index", e.Index), zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		l.commitLocked(rec.Symbol, domain.WalletState{Balance: rec.BalanceAfter, Shares: rec.SharesAfter})
	}

	if first := entries[0].Index; first != 1 {
		l.logger.Warn("trade log does not start at the first record", zap.Uint64("first_index", first))
	}
	l.logger.Info("testnet wallet restored from trade log",
		zap.Int("records", len(entries)),
		zap.String("balance", l.balance.String()))
	return nil
}

// Trade executes kind for symbol and appends a record whatever the outcome.
// A rejected trade returns the unchanged wallet, the rejected record and the rejection.
func (l *Ledger) Trade(ctx context.Context, symbol string, kind domain.TradeKind, amount decimal.Decimal) (domain.WalletState, domain.TradeRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.WalletState{}, domain.TradeRecord{}, err
	}
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if !l.market.Has(symbol) {
		return domain.WalletState{}, domain.TradeRecord{}, errors.Wrapf(pricefeed.ErrUnknownCoin, "%q", symbol)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.walletLocked(symbol)
	rec := domain.TradeRecord{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Timestamp: l.now().UTC(),
		Kind:      kind,
		Amount:    amount,
		Status:    domain.TradeStatusExecuted,
	}

	next, tradeErr := l.execute(symbol, current, kind, amount, &rec)
	if tradeErr != nil {
		rec.Status = domain.TradeStatusRejected
		rec.Reason = domain.ReasonCode(tradeErr)
		next = current
	}
	rec.BalanceAfter, rec.SharesAfter = next.Balance, next.Shares

	idx, err := l.log.Append(rec)
	if err != nil {
		return current, rec, errors.Wrapf(domain.ErrStoreUnavailable, "append trade record: %v", err)
	}
	l.commitLocked(symbol, next)

	if l.broadcaster != nil {
		l.broadcaster.Publish(domain.TradeRecordEntry{Index: idx, Record: rec})
	}

	fields := []zap.Field{
		zap.String("id", rec.ID),
		zap.String("coin", symbol),
		zap.String("kind", kind.String()),
		zap.String("amount", amount.String()),
		zap.String("price", rec.PriceAtExecution.String()),
	}
	if tradeErr != nil {
		l.logger.Info("testnet trade rejected", append(fields, zap.String("reason", rec.Reason))...)
		return current, rec, tradeErr
	}
	l.logger.Info("testnet trade executed", append(fields, zap.String("balance", next.Balance.String()))...)
	return next, rec, nil
}

func (l *Ledger) execute(symbol string, current domain.WalletState, kind domain.TradeKind, amount decimal.Decimal, rec *domain.TradeRecord) (domain.WalletState, error) {
	if !kind.IsValid() {
		return current, domain.NewRejection(kind, domain.ErrInvalidTrade, "unknown trade type %q", string(kind))
	}
	if !amount.IsPositive() {
		return current, domain.NewRejection(kind, domain.ErrInvalidTrade, "amount must be positive, got %s", amount.String())
	}
	if kind == domain.TradeSell && amount.GreaterThan(decimal.NewFromInt(1)) {
		return current, domain.NewRejection(kind, domain.ErrInvalidTrade, "sell amount is a fraction in (0, 1], got %s", amount.String())
	}

	sample, err := l.market.Latest(symbol)
	if err != nil {
		return current, domain.NewRejection(kind, domain.ErrInvalidPrice, "%s", err.Error())
	}
	rec.PriceAtExecution = sample.Price

	req := domain.TradeRequest{Kind: kind, NotionalOrFraction: amount}
	return engine.ExecuteWith(current, kind, sample.Price, rulesFor(req))
}

// rulesFor maps a testnet amount onto engine rules.
func rulesFor(req domain.TradeRequest) engine.Rules {
	rules := engine.DefaultRules()
	if req.Kind == domain.TradeBuy {
		rules.Notional = req.NotionalOrFraction
	} else {
		rules.Fraction = req.NotionalOrFraction
	}
	return rules
}

// Wallet returns the cash balance and the holdings of symbol.
func (l *Ledger) Wallet(symbol string) domain.WalletState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.walletLocked(strings.ToLower(symbol))
}

// Holdings returns the non-zero holdings by coin.
func (l *Ledger) Holdings() map[string]decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(l.holdings))
	for sym, shares := range l.holdings {
		out[sym] = shares
	}
	return out
}

// Value is cash plus every holding at its latest price.
func (l *Ledger) Value() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	symbols := make([]string, 0, len(l.holdings))
	for sym := range l.holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	total := l.balance
	for _, sym := range symbols {
		sample, err := l.market.Latest(sym)
		if err != nil {
			continue
		}
		total = total.Add(l.holdings[sym].Mul(sample.Price))
	}
	return total
}

// History returns the records of symbol, oldest first.
func (l *Ledger) History(symbol string) ([]domain.TradeRecord, error) {
	return l.log.History(strings.ToLower(symbol))
}

// RecordsAfter returns the log entries after index.
func (l *Ledger) RecordsAfter(index uint64) ([]domain.TradeRecordEntry, error) {
	return l.log.RecordsAfter(index)
}

func (l *Ledger) walletLocked(symbol string) domain.WalletState {
	shares, ok := l.holdings[symbol]
	if !ok {
		shares = decimal.Zero
	}
	return domain.WalletState{Balance: l.balance, Shares: shares}
}

func (l *Ledger) commitLocked(symbol string, w domain.WalletState) {
	l.balance = w.Balance
	if w.Shares.IsZero() {
		delete(l.holdings, symbol)
		return
	}
	l.holdings[symbol] = w.Shares
}
