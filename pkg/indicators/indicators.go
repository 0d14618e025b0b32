// Package indicators computes EMA and RSI over price histories for charts.
package indicators

import (
	"math"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

const (
	DefaultEMAPeriod = 9
	DefaultRSIPeriod = 14
)

// ErrNotEnoughData fewer closes than the indicator's warmup.
var ErrNotEnoughData = errors.New("not enough data points")

// Point is one indicator value stamped with the sample it was computed at.
type Point struct {
	Time  time.Time       `json:"time"`
	Value decimal.Decimal `json:"value"`
}

// Chart prices with their indicators. Indicator series start after warmup.
type Chart struct {
	Prices []domain.PriceSample `json:"prices"`
	EMA    []Point              `json:"ema"`
	RSI    []Point              `json:"rsi"`
}

// EMA calculates the exponential moving average for period.
func EMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, errors.Errorf("invalid EMA period %d", period)
	}
	if len(closes) < period {
		return nil, errors.Wrapf(ErrNotEnoughData, "EMA%d needs %d, got %d", period, period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := helper.ChanToSlice(ema.Compute(helper.SliceToChan(decimalsToFloat64(closes))))

	return float64ToDecimals(out), nil
}

// RSI calculates the relative strength index for period.
func RSI(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, errors.Errorf("invalid RSI period %d", period)
	}
	if len(closes) < period+1 {
		return nil, errors.Wrapf(ErrNotEnoughData, "RSI%d needs %d, got %d", period, period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(decimalsToFloat64(closes))))

	return float64ToDecimals(out), nil
}

// BuildChart attaches EMA and RSI to samples. A series that lacks data is left empty.
func BuildChart(samples []domain.PriceSample, emaPeriod, rsiPeriod int) Chart {
	if emaPeriod <= 0 {
		emaPeriod = DefaultEMAPeriod
	}
	if rsiPeriod <= 0 {
		rsiPeriod = DefaultRSIPeriod
	}

	closes := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		closes[i] = s.Price
	}

	chart := Chart{Prices: samples, EMA: []Point{}, RSI: []Point{}}
	if ema, err := EMA(closes, emaPeriod); err == nil {
		chart.EMA = align(samples, ema)
	}
	if rsi, err := RSI(closes, rsiPeriod); err == nil {
		chart.RSI = align(samples, rsi)
	}
	return chart
}

// align stamps values with the times of the trailing samples; indicator
// output is shorter than its input by the warmup.
func align(samples []domain.PriceSample, values []decimal.Decimal) []Point {
	offset := len(samples) - len(values)
	if offset < 0 {
		values = values[-offset:]
		offset = 0
	}
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Time: samples[offset+i].Time, Value: v}
	}
	return points
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}

// float64ToDecimals converts values, mapping NaN and infinities to zero.
func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			result[i] = decimal.Zero
			continue
		}
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
