package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/marketpipe/pkg/models"
)

func TestProcessSortsDedupesAndFilters(t *testing.T) {
	first := bar("BTCUSDT", 1, 100)
	dup := bar("BTCUSDT", 1, 200)
	second := bar("BTCUSDT", 2, 101)
	broken := bar("BTCUSDT", 3, 102)
	broken.Source = ""

	input := []models.MarketBar{second, first, broken, dup}
	out := NewProcessor(testValidator).Process(input)

	require.Len(t, out, 2)
	assert.Equal(t, first.Timestamp, out[0].Timestamp)
	assert.Equal(t, 100.0, out[0].Close, "первое вхождение побеждает")
	assert.Equal(t, second.Timestamp, out[1].Timestamp)

	// вход не меняется
	assert.Equal(t, second, input[0])
}

func TestProcessRounding(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		close  float64
		want   float64
	}{
		{"крипто 8 знаков", "BTCUSDT", 100.123456789, 100.12345679},
		{"крипто к BTC", "ETHBTC", 1.0512345678912, 1.05123457},
		{"акция 4 знака", "AAPL", 123.456789, 123.4568},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bar(tt.symbol, 0, tt.close)
			b.Volume = 10.6
			out := NewProcessor(testValidator).Process([]models.MarketBar{b})

			require.Len(t, out, 1)
			assert.Equal(t, tt.want, out[0].Close)
			assert.Equal(t, tt.want, out[0].Open)
			assert.Equal(t, 11.0, out[0].Volume)
		})
	}
}

func TestProcessStampsQualityScore(t *testing.T) {
	b := bar("BTCUSDT", 0, 100)
	out := NewProcessor(testValidator).Process([]models.MarketBar{b})
	require.Len(t, out, 1)
	assert.Equal(t, 100, out[0].QualityScore)

	b.QualityScore = 42
	out = NewProcessor(testValidator).Process([]models.MarketBar{b})
	assert.Equal(t, 42, out[0].QualityScore)
}

func TestIsCryptoSymbol(t *testing.T) {
	assert.True(t, isCryptoSymbol("btcusdt"))
	assert.True(t, isCryptoSymbol("SOLUSDC"))
	assert.False(t, isCryptoSymbol("MSFT"))
}
