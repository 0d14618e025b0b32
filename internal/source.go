package internal

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/papertrade/config"
	"github.com/vadiminshakov/papertrade/internal/clients"
	"github.com/vadiminshakov/papertrade/internal/services/pricefeed"
)

const quoteCurrency = "USDT"

// newPriceSource is the single point of dispatch from feed.source to a Source.
// It also returns the symbol to poll, translated for exchanges.
func newPriceSource(cfg config.Config, market *pricefeed.SimulatedMarket) (pricefeed.Source, string, error) {
	symbol := strings.ToLower(cfg.Symbol)

	switch cfg.Feed.Source {
	case config.SourceSimulated:
		if market == nil {
			return nil, "", errors.New("simulated source needs the simulated market")
		}
		if !market.Has(symbol) {
			return nil, "", errors.Wrapf(pricefeed.ErrUnknownCoin, "simulated market does not list %q", symbol)
		}
		return market, symbol, nil
	case config.SourceTestnet:
		return pricefeed.NewTestnetSource(cfg.Feed.BaseURL, cfg.Feed.RequestsPerSecond), symbol, nil
	case config.SourceCoinGecko:
		return pricefeed.NewCoinGeckoSource(cfg.Feed.BaseURL, cfg.Feed.RequestsPerSecond), symbol, nil
	case config.SourceBinance:
		// klines are public; credentials are used only when present
		client := clients.NewBinanceClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"), cfg.Feed.BaseURL)
		return pricefeed.NewBinanceSource(client), exchangeSymbol(symbol), nil
	case config.SourceBybit:
		return pricefeed.NewBybitSource(clients.NewBybitClient(cfg.Feed.BaseURL)), exchangeSymbol(symbol), nil
	case config.SourceHyperliquid:
		coin := baseSymbol(symbol)
		info := clients.NewHyperliquidInfo(context.Background(), cfg.Feed.BaseURL, []string{coin})
		return pricefeed.NewHyperliquidSource(info), coin, nil
	default:
		return nil, "", errors.Errorf("unsupported price source %q", cfg.Feed.Source)
	}
}

// exchangeSymbol maps a listed coin id to its USDT ticker, e.g. bitcoin -> BTCUSDT.
// Anything else is taken as a ticker already.
func exchangeSymbol(symbol string) string {
	for _, c := range pricefeed.DefaultCoins() {
		if c.ID == symbol {
			return c.Symbol + quoteCurrency
		}
	}
	return strings.ToUpper(strings.ReplaceAll(symbol, "_", ""))
}

// baseSymbol maps a listed coin id to its base ticker, e.g. bitcoin -> BTC.
func baseSymbol(symbol string) string {
	for _, c := range pricefeed.DefaultCoins() {
		if c.ID == symbol {
			return c.Symbol
		}
	}
	return strings.ToUpper(symbol)
}

// listedCoins filters the default coins by id; an empty filter lists them all.
func listedCoins(ids []string) ([]pricefeed.ListedCoin, error) {
	all := pricefeed.DefaultCoins()
	if len(ids) == 0 {
		return all, nil
	}

	byID := make(map[string]pricefeed.ListedCoin, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	out := make([]pricefeed.ListedCoin, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[strings.ToLower(id)]
		if !ok {
			return nil, errors.Wrapf(pricefeed.ErrUnknownCoin, "market.coins lists %q", id)
		}
		out = append(out, c)
	}
	return out, nil
}
