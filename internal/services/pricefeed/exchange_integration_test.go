//go:build integration

package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/papertrade/internal/clients"
)

// Live public endpoints. Run with: go test -tags=integration ./internal/services/pricefeed/
func TestLiveSources_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sources := []struct {
		source Source
		symbol string
	}{
		{NewBinanceSource(clients.NewBinanceClient("", "", "")), "BTCUSDT"},
		{NewBybitSource(clients.NewBybitClient("")), "BTCUSDT"},
		{NewCoinGeckoSource("", 0), "bitcoin"},
		{NewHyperliquidSource(clients.NewHyperliquidInfo(ctx, "", []string{"BTC"})), "BTC"},
	}

	for _, tc := range sources {
		t.Run(tc.source.Name(), func(t *testing.T) {
			samples, err := tc.source.Fetch(ctx, tc.symbol, 5)
			require.NoError(t, err)
			require.NotEmpty(t, samples)
			last := samples[len(samples)-1]
			assert.True(t, last.Price.IsPositive(), "price %s", last.Price.String())
			t.Logf("%s %s: %s at %s", tc.source.Name(), tc.symbol, last.Price.String(), last.Time)
		})
	}

	t.Run("binance rejects unknown symbol", func(t *testing.T) {
		_, err := NewBinanceSource(clients.NewBinanceClient("", "", "")).Fetch(ctx, "INVALIDPAIR", 5)
		assert.Error(t, err)
	})
}
