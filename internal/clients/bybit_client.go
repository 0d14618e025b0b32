package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient returns a client for the public V5 market endpoints.
func NewBybitClient(baseURL string) *bybit.Client {
	client := bybit.NewClient()
	if baseURL != "" {
		client = client.WithBaseURL(baseURL)
	}
	return client
}
