package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns a client for the public market endpoints.
// Klines and tickers need no credentials, so key and secret may be empty.
func NewBinanceClient(apiKey, apiSecret, baseURL string) *binance.Client {
	client := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return client
}
