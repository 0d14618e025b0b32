// Package pricefeed produces price samples for a symbol: simulated, over HTTP
// or from exchange SDKs, and polls a source on a fixed interval.
package pricefeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// DefaultPoints number of samples a chart request returns when none is given.
const DefaultPoints = 24

const requestTimeout = 15 * time.Second

// ErrUnknownCoin symbol not served by the source.
var ErrUnknownCoin = errors.New("unknown coin")

// Source fetches the most recent samples of a symbol, oldest first.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string, points int) ([]domain.PriceSample, error)
}

// Coin describes a tradable symbol.
type Coin struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

func unavailable(source string, err error) error {
	return errors.Wrapf(domain.ErrFeedUnavailable, "%s: %v", source, err)
}

// jsonClient is a small rate limited GET+decode helper for HTTP sources.
type jsonClient struct {
	name    string
	base    string
	http    *http.Client
	limiter *rate.Limiter
}

func newJSONClient(name, base string, rps float64, client *http.Client) *jsonClient {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &jsonClient{name: name, base: base, http: client, limiter: limiter}
}

func (c *jsonClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return unavailable(c.name, err)
		}
	}

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusNotFound {
			return errors.Wrapf(ErrUnknownCoin, "%s: %s", c.name, string(body))
		}
		return unavailable(c.name, errors.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return unavailable(c.name, errors.Wrap(err, "decode response"))
	}
	return nil
}

// lastN trims samples to the newest n.
func lastN(samples []domain.PriceSample, n int) []domain.PriceSample {
	if n > 0 && len(samples) > n {
		return samples[len(samples)-n:]
	}
	return samples
}
