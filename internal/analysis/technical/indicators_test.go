package technical

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6}

	cur, prev, ok := SMA(closes, 5, 3)
	require.True(t, ok)
	assert.InDelta(t, 5.0, cur, 1e-12)
	assert.InDelta(t, 4.0, prev, 1e-12)

	_, _, ok = SMA(closes, 2, 3)
	assert.False(t, ok, "для предыдущего значения нужна ещё одна свеча")

	_, _, ok = SMA(closes, 6, 3)
	assert.False(t, ok)
}

func TestRSI(t *testing.T) {
	t.Run("mixed", func(t *testing.T) {
		// изменения: +2, -1, +2, -1 -> avgGain 1, avgLoss 0.5, RS 2
		closes := []float64{10, 12, 11, 13, 12}
		assert.InDelta(t, 100-100.0/3, RSI(closes, 4, 4), 1e-9)
	})

	t.Run("no losses", func(t *testing.T) {
		closes := make([]float64, 16)
		for i := range closes {
			closes[i] = float64(100 + i)
		}
		v := RSI(closes, 15, 14)
		assert.False(t, math.IsNaN(v))
		assert.Equal(t, 100.0, v)
	})

	t.Run("flat", func(t *testing.T) {
		closes := []float64{5, 5, 5, 5}
		assert.Equal(t, 50.0, RSI(closes, 3, 3))
	})

	t.Run("no gains", func(t *testing.T) {
		closes := []float64{5, 4, 3, 2}
		assert.Equal(t, 0.0, RSI(closes, 3, 3))
	})

	t.Run("warm up", func(t *testing.T) {
		assert.Equal(t, 50.0, RSI([]float64{1, 2}, 1, 14))
	})
}

func TestBollinger(t *testing.T) {
	t.Run("flat window collapses bands", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100
		}
		b, ok := Bollinger(closes, 19, 20, 2)
		require.True(t, ok)
		assert.Equal(t, Bands{Upper: 100, Middle: 100, Lower: 100}, b)
	})

	t.Run("population deviation", func(t *testing.T) {
		closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
		b, ok := Bollinger(closes, 7, 8, 2)
		require.True(t, ok)
		assert.InDelta(t, 5.0, b.Middle, 1e-12)
		assert.InDelta(t, 2.0, b.Sigma, 1e-12)
		assert.InDelta(t, 9.0, b.Upper, 1e-12)
		assert.InDelta(t, 1.0, b.Lower, 1e-12)
	})

	t.Run("not enough data", func(t *testing.T) {
		_, ok := Bollinger([]float64{1, 2}, 1, 3, 2)
		assert.False(t, ok)
	})
}
