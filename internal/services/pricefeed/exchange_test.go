package pricefeed

import (
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

func TestKlinesToSamples(t *testing.T) {
	now := time.UnixMilli(1_700_000_600_000)
	klines := []*binance.Kline{
		{OpenTime: 1_700_000_000_000, CloseTime: 1_700_000_299_999, Close: "100.5"},
		nil,
		{OpenTime: 1_700_000_300_000, CloseTime: 1_700_000_599_999, Close: "101"},
		{OpenTime: 1_700_000_600_000, CloseTime: 1_700_000_899_999, Close: "102"},
	}

	samples, err := klinesToSamples(klines, now)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.True(t, samples[0].Price.Equal(decimal.RequireFromString("100.5")))
	assert.Equal(t, time.UnixMilli(1_700_000_599_999).UTC(), samples[1].Time)
	// open kline is stamped at now
	assert.Equal(t, now.UTC(), samples[2].Time)

	_, err = klinesToSamples([]*binance.Kline{{Close: "n/a"}}, now)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestTickerSample(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s, err := tickerSample("43000.12", now)
	require.NoError(t, err)
	assert.Equal(t, now, s.Time)
	assert.True(t, s.Price.Equal(decimal.RequireFromString("43000.12")))

	_, err = tickerSample("", now)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}
