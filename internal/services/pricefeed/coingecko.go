package pricefeed

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// CoinGeckoBaseURL public API root.
const CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// free tier allows roughly 30 calls per minute
const coinGeckoRPS = 0.5

// CoinGeckoSource serves live USD prices from CoinGecko. Symbols are coin ids such as "bitcoin".
type CoinGeckoSource struct {
	client *jsonClient
}

// MarketCoin a listed coin with its current USD price.
type MarketCoin struct {
	Coin
	Price decimal.Decimal `json:"current_price"`
}

// NewCoinGeckoSource creates the source; empty baseURL means the public API.
func NewCoinGeckoSource(baseURL string, rps float64) *CoinGeckoSource {
	if baseURL == "" {
		baseURL = CoinGeckoBaseURL
	}
	if rps <= 0 {
		rps = coinGeckoRPS
	}
	return &CoinGeckoSource{client: newJSONClient("coingecko", strings.TrimRight(baseURL, "/"), rps, nil)}
}

// Name implements Source.
func (s *CoinGeckoSource) Name() string { return "coingecko" }

type marketChart struct {
	// each entry is [unix ms, price]
	Prices [][2]float64 `json:"prices"`
}

// Fetch implements Source with the last day of prices.
func (s *CoinGeckoSource) Fetch(ctx context.Context, symbol string, points int) ([]domain.PriceSample, error) {
	q := url.Values{
		"vs_currency": []string{"usd"},
		"days":        []string{"1"},
	}

	var chart marketChart
	if err := s.client.get(ctx, "/coins/"+url.PathEscape(strings.ToLower(symbol))+"/market_chart", q, &chart); err != nil {
		return nil, err
	}

	samples := make([]domain.PriceSample, 0, len(chart.Prices))
	for _, p := range chart.Prices {
		if p[1] <= 0 {
			continue
		}
		samples = append(samples, domain.PriceSample{
			Time:  time.UnixMilli(int64(p[0])).UTC(),
			Price: decimal.NewFromFloat(p[1]),
		})
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })

	return lastN(samples, points), nil
}

// Markets returns the top n coins by market cap.
func (s *CoinGeckoSource) Markets(ctx context.Context, n int) ([]MarketCoin, error) {
	if n <= 0 {
		n = 20
	}
	q := url.Values{
		"vs_currency": []string{"usd"},
		"order":       []string{"market_cap_desc"},
		"per_page":    []string{strconv.Itoa(n)},
		"page":        []string{"1"},
		"sparkline":   []string{"false"},
	}

	var coins []MarketCoin
	if err := s.client.get(ctx, "/coins/markets", q, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}
