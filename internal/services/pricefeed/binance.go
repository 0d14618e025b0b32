package pricefeed

import (
	"context"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

const binanceInterval = "5m"

// BinanceSource uses kline close prices from the Binance public API.
// Symbols are exchange tickers such as "BTCUSDT".
type BinanceSource struct {
	client   *binance.Client
	interval string
	now      func() time.Time
}

// NewBinanceSource wraps a client; no credentials are needed for klines.
func NewBinanceSource(client *binance.Client) *BinanceSource {
	return &BinanceSource{client: client, interval: binanceInterval, now: time.Now}
}

// Name implements Source.
func (s *BinanceSource) Name() string { return "binance" }

// Fetch implements Source.
func (s *BinanceSource) Fetch(ctx context.Context, symbol string, points int) ([]domain.PriceSample, error) {
	if points <= 0 {
		points = DefaultPoints
	}

	klines, err := s.client.NewKlinesService().
		Symbol(strings.ToUpper(symbol)).
		Interval(s.interval).
		Limit(points).
		Do(ctx)
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}

	return klinesToSamples(klines, s.now())
}

// klinesToSamples stamps each kline at its close time. The open kline closes
// in the future, so it is stamped at now.
func klinesToSamples(klines []*binance.Kline, now time.Time) ([]domain.PriceSample, error) {
	samples := make([]domain.PriceSample, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		price, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, unavailable("binance", errors.Wrapf(err, "parse close %q", k.Close))
		}
		at := time.UnixMilli(k.CloseTime).UTC()
		if at.After(now) {
			at = now.UTC()
		}
		samples = append(samples, domain.PriceSample{Time: at, Price: price})
	}
	return samples, nil
}
