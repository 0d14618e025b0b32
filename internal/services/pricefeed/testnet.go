package pricefeed

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// TestnetSource reads charts from a papertrade testnet server.
type TestnetSource struct {
	client *jsonClient
}

// NewTestnetSource creates a source for the server at baseURL. rps <= 0 disables rate limiting.
func NewTestnetSource(baseURL string, rps float64) *TestnetSource {
	return &TestnetSource{client: newJSONClient("testnet", strings.TrimRight(baseURL, "/"), rps, nil)}
}

// Name implements Source.
func (s *TestnetSource) Name() string { return "testnet" }

// Fetch implements Source.
func (s *TestnetSource) Fetch(ctx context.Context, symbol string, points int) ([]domain.PriceSample, error) {
	if points <= 0 {
		points = DefaultPoints
	}
	q := url.Values{"points": []string{strconv.Itoa(points)}}

	var samples []domain.PriceSample
	if err := s.client.get(ctx, "/testnet/market_chart/"+url.PathEscape(symbol), q, &samples); err != nil {
		return nil, err
	}
	return lastN(samples, points), nil
}

// Coins lists the coins the server trades.
func (s *TestnetSource) Coins(ctx context.Context) ([]Coin, error) {
	var coins []Coin
	if err := s.client.get(ctx, "/testnet/coins", nil, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}
