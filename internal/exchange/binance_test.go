package exchange

import (
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKlineToBar(t *testing.T) {
	k := &futures.Kline{
		OpenTime: 1717200000000,
		Open:     "67000.10",
		High:     "67100.00",
		Low:      "66950.50",
		Close:    "67050.00",
		Volume:   "123.456",
	}

	bar, err := klineToBar("BTCUSDT", "1m", k)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", bar.Symbol)
	assert.Equal(t, "1m", bar.Interval)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), bar.Timestamp)
	assert.Equal(t, 67000.10, bar.Open)
	assert.Equal(t, 66950.50, bar.Low)
	assert.Equal(t, 123.456, bar.Volume)
	assert.Equal(t, SourceName, bar.Source)
}

func TestKlineToBarRejectsGarbage(t *testing.T) {
	_, err := klineToBar("BTCUSDT", "1m", &futures.Kline{Open: "x", High: "1", Low: "1", Close: "1", Volume: "1"})
	assert.Error(t, err)
}

func TestBuildTick(t *testing.T) {
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tick, err := buildTick("ETHUSDT", "3500.5", "3500.4", "3500.6", "2", ts)
	require.NoError(t, err)
	assert.Equal(t, 3500.5, tick.Close)
	assert.Equal(t, 3500.5, tick.High)
	assert.Equal(t, 3500.4, tick.Bid)
	assert.Equal(t, 3500.6, tick.Ask)
	assert.Equal(t, 2.0, tick.LastSize)

	tick, err = buildTick("ETHUSDT", "3500.5", "", "", "", ts)
	require.NoError(t, err)
	assert.Zero(t, tick.Bid)

	_, err = buildTick("ETHUSDT", "", "", "", "", ts)
	assert.Error(t, err)
}
