package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal/services/pricefeed"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Feed.PollInterval = 20 * time.Millisecond
	cfg.Market.TickInterval = 20 * time.Millisecond
	return cfg
}

func TestNewAllMode(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.market)
	assert.NotNil(t, a.ledger)
	assert.NotNil(t, a.wallets)
	assert.NotNil(t, a.poller)
	assert.Equal(t, "bitcoin", a.poller.Symbol())

	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/testnet/coins", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewTestnetModeHasNoWallets(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = config.ModeTestnet
	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.wallets)
	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallet/alice", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewLiveRoutes(t *testing.T) {
	cg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"bitcoin","name":"Bitcoin","symbol":"btc","current_price":61000}]`))
	}))
	defer cg.Close()

	a, err := New(testConfig(), nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live/coins", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	a.Close()

	cfg := testConfig()
	cfg.Live = config.LiveConfig{Enabled: true, BaseURL: cg.URL, RequestsPerSecond: 10}
	a, err = New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	rec = httptest.NewRecorder()
	a.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live/coins?limit=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "61000")
}

func TestNewDurableStores(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDir = t.TempDir()
	cfg.TradeLogDir = t.TempDir()

	a, err := New(cfg, nil)
	require.NoError(t, err)
	a.Close()
	a.Close()
}

func TestNewRejectsUnlistedSymbol(t *testing.T) {
	cfg := testConfig()
	cfg.Market.Coins = []string{"solana"}
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, pricefeed.ErrUnknownCoin)

	cfg.Market.Coins = []string{"nope"}
	_, err = New(cfg, nil)
	assert.ErrorIs(t, err, pricefeed.ErrUnknownCoin)
}

func TestRunUntilCancelled(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// the poller warms up from the simulated market
	require.Eventually(t, func() bool {
		_, ok := a.poller.Latest()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		v, ok := a.session.View()
		return ok && v.Value.IsPositive()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestExchangeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", exchangeSymbol("bitcoin"))
	assert.Equal(t, "ETHUSDT", exchangeSymbol("ethereum"))
	assert.Equal(t, "XRPUSDT", exchangeSymbol("xrp_usdt"))
}

func TestBaseSymbol(t *testing.T) {
	assert.Equal(t, "BTC", baseSymbol("bitcoin"))
	assert.Equal(t, "SOL", baseSymbol("solana"))
	assert.Equal(t, "HYPE", baseSymbol("hype"))
}

func TestNewPriceSource(t *testing.T) {
	market := pricefeed.NewSimulatedMarket(pricefeed.MarketConfig{})

	tests := []struct {
		source string
		name   string
		symbol string
	}{
		{config.SourceSimulated, "simulated", "bitcoin"},
		{config.SourceTestnet, "testnet", "bitcoin"},
		{config.SourceCoinGecko, "coingecko", "bitcoin"},
		{config.SourceBinance, "binance", "BTCUSDT"},
		{config.SourceBybit, "bybit", "BTCUSDT"},
		{config.SourceHyperliquid, "hyperliquid", "BTC"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			cfg := testConfig()
			cfg.Feed.Source = tt.source
			cfg.Feed.BaseURL = "http://localhost:1"

			src, symbol, err := newPriceSource(cfg, market)
			require.NoError(t, err)
			assert.Equal(t, tt.name, src.Name())
			assert.Equal(t, tt.symbol, symbol)
		})
	}

	cfg := testConfig()
	cfg.Feed.Source = "kraken"
	_, _, err := newPriceSource(cfg, market)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "kraken"))
}
