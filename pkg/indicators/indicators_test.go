package indicators

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

func series(prices ...float64) []domain.PriceSample {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = domain.PriceSample{Time: start.Add(time.Duration(i) * time.Minute), Price: decimal.NewFromFloat(p)}
	}
	return out
}

func closes(samples []domain.PriceSample) []decimal.Decimal {
	out := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		out[i] = s.Price
	}
	return out
}

func TestEMA_ConstantSeries(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 42
	}

	ema, err := EMA(closes(series(flat...)), 5)
	require.NoError(t, err)
	require.NotEmpty(t, ema)
	assert.LessOrEqual(t, len(ema), 20)
	for _, v := range ema {
		f, _ := v.Float64()
		assert.InDelta(t, 42, f, 1e-9)
	}
}

func TestRSI_RisingSeries(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
	}

	rsi, err := RSI(closes(series(rising...)), 14)
	require.NoError(t, err)
	require.NotEmpty(t, rsi)
	last, _ := rsi[len(rsi)-1].Float64()
	assert.InDelta(t, 100, last, 1e-6)
}

func TestIndicators_NotEnoughData(t *testing.T) {
	short := closes(series(1, 2, 3))

	_, err := EMA(short, 5)
	assert.ErrorIs(t, err, ErrNotEnoughData)
	_, err = RSI(short, 3)
	assert.ErrorIs(t, err, ErrNotEnoughData)
	_, err = EMA(short, 0)
	assert.Error(t, err)
}

func TestBuildChart(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i%7)
	}
	samples := series(prices...)

	chart := BuildChart(samples, 0, 0)
	assert.Len(t, chart.Prices, 40)
	require.NotEmpty(t, chart.EMA)
	require.NotEmpty(t, chart.RSI)

	// indicator points end at the last sample
	assert.Equal(t, samples[39].Time, chart.EMA[len(chart.EMA)-1].Time)
	assert.Equal(t, samples[39].Time, chart.RSI[len(chart.RSI)-1].Time)
	for _, p := range chart.RSI {
		f, _ := p.Value.Float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.LessOrEqual(t, f, 100.0)
	}

	sparse := BuildChart(series(1, 2), 9, 14)
	assert.Empty(t, sparse.EMA)
	assert.Empty(t, sparse.RSI)
	assert.Len(t, sparse.Prices, 2)
}
