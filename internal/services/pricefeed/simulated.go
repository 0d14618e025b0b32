package pricefeed

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

const (
	defaultCapacity   = 512
	defaultStep       = 5 * time.Minute
	defaultVolatility = 0.004
	pricePlaces       = 8
)

// ListedCoin is a coin with the price its simulated walk starts from.
type ListedCoin struct {
	Coin
	Start decimal.Decimal
}

// DefaultCoins coins listed by the testnet market.
func DefaultCoins() []ListedCoin {
	return []ListedCoin{
		{Coin: Coin{ID: "bitcoin", Name: "Bitcoin", Symbol: "BTC"}, Start: decimal.NewFromInt(65000)},
		{Coin: Coin{ID: "ethereum", Name: "Ethereum", Symbol: "ETH"}, Start: decimal.NewFromInt(3200)},
		{Coin: Coin{ID: "solana", Name: "Solana", Symbol: "SOL"}, Start: decimal.NewFromInt(150)},
		{Coin: Coin{ID: "cardano", Name: "Cardano", Symbol: "ADA"}, Start: decimal.RequireFromString("0.45")},
		{Coin: Coin{ID: "dogecoin", Name: "Dogecoin", Symbol: "DOGE"}, Start: decimal.RequireFromString("0.12")},
	}
}

// MarketConfig configures SimulatedMarket.
type MarketConfig struct {
	Coins []ListedCoin
	// Capacity samples kept per coin.
	Capacity int
	// Backfill samples generated before Now, spaced by Step.
	Backfill int
	Step     time.Duration
	// Volatility standard deviation of one step's relative move.
	Volatility float64
	Seed       uint64
	Now        time.Time
}

// SimulatedMarket is a deterministic random-walk market. Same seed, same walk.
type SimulatedMarket struct {
	mu         sync.RWMutex
	rng        *rand.Rand
	coins      []Coin
	histories  map[string]*domain.PriceHistory
	volatility float64
}

// NewSimulatedMarket creates the market and backfills every coin's history.
func NewSimulatedMarket(cfg MarketConfig) *SimulatedMarket {
	if len(cfg.Coins) == 0 {
		cfg.Coins = DefaultCoins()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.Backfill <= 0 {
		cfg.Backfill = DefaultPoints * 4
	}
	if cfg.Backfill > cfg.Capacity {
		cfg.Backfill = cfg.Capacity
	}
	if cfg.Step <= 0 {
		cfg.Step = defaultStep
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = defaultVolatility
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	m := &SimulatedMarket{
		rng:        rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		histories:  make(map[string]*domain.PriceHistory, len(cfg.Coins)),
		volatility: cfg.Volatility,
	}

	start := cfg.Now.Add(-time.Duration(cfg.Backfill-1) * cfg.Step)
	for _, c := range cfg.Coins {
		id := strings.ToLower(c.ID)
		m.coins = append(m.coins, Coin{ID: id, Name: c.Name, Symbol: c.Symbol})

		h := domain.NewPriceHistory(cfg.Capacity)
		price := c.Start
		if !price.IsPositive() {
			price = decimal.NewFromInt(1)
		}
		for i := 0; i < cfg.Backfill; i++ {
			_ = h.Append(domain.PriceSample{Time: start.Add(time.Duration(i) * cfg.Step), Price: price})
			price = m.step(price)
		}
		m.histories[id] = h
	}

	return m
}

// Name implements Source.
func (m *SimulatedMarket) Name() string { return "simulated" }

// Coins lists the coins in listing order.
func (m *SimulatedMarket) Coins() []Coin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Coin(nil), m.coins...)
}

// Has reports whether symbol is listed.
func (m *SimulatedMarket) Has(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.histories[strings.ToLower(symbol)]
	return ok
}

// Tick appends one sample per coin at now. A now earlier than the last sample
// is moved up to it so histories stay ordered.
func (m *SimulatedMarket) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.coins {
		h := m.histories[c.ID]
		last, ok := h.Latest()
		if !ok {
			continue
		}
		at := now
		if at.Before(last.Time) {
			at = last.Time
		}
		_ = h.Append(domain.PriceSample{Time: at, Price: m.step(last.Price)})
	}
}

// Run ticks every interval until ctx is done.
func (m *SimulatedMarket) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultStep
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}

// History returns the last points samples of symbol, DefaultPoints when points <= 0.
func (m *SimulatedMarket) History(symbol string, points int) ([]domain.PriceSample, error) {
	if points <= 0 {
		points = DefaultPoints
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.histories[strings.ToLower(symbol)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCoin, "%q", symbol)
	}
	return h.Last(points), nil
}

// Latest returns the newest sample of symbol.
func (m *SimulatedMarket) Latest(symbol string) (domain.PriceSample, error) {
	samples, err := m.History(symbol, 1)
	if err != nil {
		return domain.PriceSample{}, err
	}
	if len(samples) == 0 {
		return domain.PriceSample{}, errors.Wrapf(domain.ErrInvalidPrice, "no samples for %q", symbol)
	}
	return samples[0], nil
}

// Fetch implements Source.
func (m *SimulatedMarket) Fetch(ctx context.Context, symbol string, points int) ([]domain.PriceSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.History(symbol, points)
}

// step moves price by one normally distributed relative change. Caller holds mu
// or is the constructor.
func (m *SimulatedMarket) step(price decimal.Decimal) decimal.Decimal {
	move := m.rng.NormFloat64() * m.volatility
	if move < -0.5 {
		move = -0.5
	}
	next := price.Mul(decimal.NewFromFloat(1 + move)).Round(pricePlaces)
	if !next.IsPositive() {
		return price
	}
	return next
}
