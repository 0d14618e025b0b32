package pricefeed

import (
	"context"
	"strings"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

// BybitSource samples the spot last price. Every fetch yields one sample.
type BybitSource struct {
	client *bybit.Client
	now    func() time.Time
}

// NewBybitSource wraps a client; tickers are public.
func NewBybitSource(client *bybit.Client) *BybitSource {
	return &BybitSource{client: client, now: time.Now}
}

// Name implements Source.
func (s *BybitSource) Name() string { return "bybit" }

// Fetch implements Source. points is ignored.
func (s *BybitSource) Fetch(ctx context.Context, symbol string, _ int) ([]domain.PriceSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sym := bybit.SymbolV5(strings.ToUpper(symbol))
	result, err := s.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &sym,
	})
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}
	if result == nil || result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
		return nil, errors.Wrapf(ErrUnknownCoin, "bybit returned no ticker for %s", symbol)
	}

	sample, err := tickerSample(result.Result.Spot.List[0].LastPrice, s.now())
	if err != nil {
		return nil, err
	}
	return []domain.PriceSample{sample}, nil
}

func tickerSample(lastPrice string, now time.Time) (domain.PriceSample, error) {
	price, err := decimal.NewFromString(lastPrice)
	if err != nil {
		return domain.PriceSample{}, unavailable("bybit", errors.Wrapf(err, "parse last price %q", lastPrice))
	}
	return domain.PriceSample{Time: now.UTC(), Price: price}, nil
}
