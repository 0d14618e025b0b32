package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newMarket(seed uint64) *SimulatedMarket {
	return NewSimulatedMarket(MarketConfig{Seed: seed, Now: epoch, Step: time.Minute})
}

func TestSimulatedMarket_Deterministic(t *testing.T) {
	a, err := newMarket(7).History("bitcoin", 50)
	require.NoError(t, err)
	b, err := newMarket(7).History("bitcoin", 50)
	require.NoError(t, err)
	c, err := newMarket(8).History("bitcoin", 50)
	require.NoError(t, err)

	require.Len(t, a, 50)
	for i := range a {
		assert.True(t, a[i].Price.Equal(b[i].Price))
		assert.Equal(t, a[i].Time, b[i].Time)
	}
	assert.False(t, a[len(a)-1].Price.Equal(c[len(c)-1].Price))
}

func TestSimulatedMarket_History(t *testing.T) {
	m := newMarket(1)

	samples, err := m.History("BITCOIN", 0)
	require.NoError(t, err)
	require.Len(t, samples, DefaultPoints)
	assert.Equal(t, epoch, samples[len(samples)-1].Time)

	for i := 1; i < len(samples); i++ {
		assert.False(t, samples[i].Time.Before(samples[i-1].Time))
		assert.True(t, samples[i].Price.IsPositive())
	}

	_, err = m.History("unobtainium", 10)
	assert.ErrorIs(t, err, ErrUnknownCoin)
}

func TestSimulatedMarket_Tick(t *testing.T) {
	m := newMarket(3)
	before, err := m.Latest("ethereum")
	require.NoError(t, err)

	m.Tick(epoch.Add(time.Minute))
	after, err := m.Latest("ethereum")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Minute), after.Time)
	assert.True(t, after.Price.IsPositive())
	assert.NotEqual(t, before.Time, after.Time)

	// a clock going backwards never reorders the history
	m.Tick(epoch.Add(-time.Hour))
	last, err := m.Latest("ethereum")
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(time.Minute), last.Time)
}

func TestSimulatedMarket_Coins(t *testing.T) {
	m := newMarket(1)
	coins := m.Coins()
	require.Len(t, coins, len(DefaultCoins()))
	assert.Equal(t, "bitcoin", coins[0].ID)
	assert.Equal(t, "BTC", coins[0].Symbol)
	assert.True(t, m.Has("Solana"))
	assert.False(t, m.Has("nope"))

	coins[0].ID = "mutated"
	assert.Equal(t, "bitcoin", m.Coins()[0].ID)
}

func TestSimulatedMarket_FetchHonoursContext(t *testing.T) {
	m := newMarket(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Fetch(ctx, "bitcoin", 5)
	assert.ErrorIs(t, err, context.Canceled)

	samples, err := m.Fetch(context.Background(), "bitcoin", 5)
	require.NoError(t, err)
	assert.Len(t, samples, 5)
}
