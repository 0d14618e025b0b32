package pricefeed

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

const (
	hyperliquidInterval = "5m"
	hyperliquidStep     = 5 * time.Minute
)

// HyperliquidSource reads perp candles and mid prices from the Hyperliquid info api.
// Symbols are base coins such as "BTC".
type HyperliquidSource struct {
	info *hyperliquid.Info
	now  func() time.Time
}

func NewHyperliquidSource(info *hyperliquid.Info) *HyperliquidSource {
	return &HyperliquidSource{info: info, now: time.Now}
}

// Name implements Source.
func (s *HyperliquidSource) Name() string { return "hyperliquid" }

// Fetch implements Source. A single point is the current mid, more points are
// candle closes.
func (s *HyperliquidSource) Fetch(ctx context.Context, symbol string, points int) ([]domain.PriceSample, error) {
	if s.info == nil {
		return nil, unavailable(s.Name(), errors.New("info client is nil"))
	}
	if points <= 0 {
		points = DefaultPoints
	}
	coin := strings.ToUpper(symbol)
	now := s.now()

	if points == 1 {
		sample, err := s.mid(ctx, coin, now)
		if err != nil {
			return nil, err
		}
		return []domain.PriceSample{sample}, nil
	}

	start := now.Add(-time.Duration(points) * hyperliquidStep)
	candles, err := s.info.CandlesSnapshot(ctx, coin, hyperliquidInterval, start.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}
	if len(candles) == 0 {
		return nil, errors.Wrapf(ErrUnknownCoin, "hyperliquid returned no candles for %s", coin)
	}
	if len(candles) > points {
		candles = candles[len(candles)-points:]
	}
	return candlesToSamples(candles, now)
}

func (s *HyperliquidSource) mid(ctx context.Context, coin string, now time.Time) (domain.PriceSample, error) {
	mids, err := s.info.AllMids(ctx)
	if err != nil {
		return domain.PriceSample{}, unavailable(s.Name(), err)
	}
	raw, ok := mids[coin]
	if !ok || raw == "" {
		return domain.PriceSample{}, errors.Wrapf(ErrUnknownCoin, "hyperliquid has no mid for %s", coin)
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return domain.PriceSample{}, unavailable(s.Name(), errors.Wrapf(err, "parse mid %q", raw))
	}
	return domain.PriceSample{Time: now.UTC(), Price: price}, nil
}

// candlesToSamples stamps candles at their close time, the open one at now.
func candlesToSamples(candles []hyperliquid.Candle, now time.Time) ([]domain.PriceSample, error) {
	samples := make([]domain.PriceSample, 0, len(candles))
	for _, c := range candles {
		price, err := decimal.NewFromString(c.Close)
		if err != nil {
			return nil, unavailable("hyperliquid", errors.Wrapf(err, "parse close %q", c.Close))
		}
		at := time.UnixMilli(c.TimeClose).UTC()
		if at.After(now) {
			at = now.UTC()
		}
		samples = append(samples, domain.PriceSample{Time: at, Price: price})
	}
	return samples, nil
}
