package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(sec int64, price int64) PriceSample {
	return PriceSample{Time: time.Unix(sec, 0), Price: decimal.NewFromInt(price)}
}

func TestPriceHistory_Append(t *testing.T) {
	h := NewPriceHistory(0)

	require.NoError(t, h.Append(sampleAt(1, 100)))
	require.NoError(t, h.Append(sampleAt(1, 101)), "equal timestamps are allowed")
	require.NoError(t, h.Append(sampleAt(2, 99)))

	err := h.Append(sampleAt(0, 100))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	err = h.Append(PriceSample{Time: time.Unix(3, 0), Price: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	assert.Equal(t, 3, h.Len())
	latest, ok := h.Latest()
	require.True(t, ok)
	assert.True(t, latest.Price.Equal(decimal.NewFromInt(99)))
}

func TestPriceHistory_CapacityEvictsOldest(t *testing.T) {
	h := NewPriceHistory(3)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, h.Append(sampleAt(i, i*10)))
	}

	assert.Equal(t, 3, h.Len())
	closes := h.Closes(0)
	require.Len(t, closes, 3)
	assert.True(t, closes[0].Equal(decimal.NewFromInt(30)))
	assert.True(t, closes[2].Equal(decimal.NewFromInt(50)))
}

func TestPriceHistory_LastReturnsCopy(t *testing.T) {
	h := NewPriceHistory(0)
	require.NoError(t, h.Append(sampleAt(1, 10)))
	require.NoError(t, h.Append(sampleAt(2, 20)))

	last := h.Last(1)
	require.Len(t, last, 1)
	last[0].Price = decimal.NewFromInt(999)

	latest, _ := h.Latest()
	assert.True(t, latest.Price.Equal(decimal.NewFromInt(20)), "past samples must not be mutable through Last")
	assert.Len(t, h.Last(10), 2)
}

func TestPriceHistory_AppendNewer(t *testing.T) {
	h := NewPriceHistory(0)
	require.NoError(t, h.Append(sampleAt(2, 20)))

	added := h.AppendNewer([]PriceSample{sampleAt(1, 10), sampleAt(2, 21), sampleAt(3, 30), sampleAt(4, 0), sampleAt(5, 50)})

	assert.Equal(t, 2, added)
	assert.Equal(t, 3, h.Len())
	latest, _ := h.Latest()
	assert.True(t, latest.Price.Equal(decimal.NewFromInt(50)))
}

func TestPriceHistory_LatestEmpty(t *testing.T) {
	_, ok := NewPriceHistory(0).Latest()
	assert.False(t, ok)
}
