package technical

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/skalibog/marketpipe/pkg/models"
)

// Bands значения полос Боллинджера
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
	Sigma  float64
}

// Closes извлекает цены закрытия
func Closes(series []models.MarketBar) []float64 {
	closes := make([]float64, len(series))
	for i, b := range series {
		closes[i] = b.Close
	}
	return closes
}

// SMA возвращает простые скользящие средние за period свечей, заканчивающиеся на end и end-1.
// ok = false, если данных не хватает.
func SMA(closes []float64, end, period int) (current, previous float64, ok bool) {
	if period <= 0 || end < period || end >= len(closes) {
		return 0, 0, false
	}

	// talib.Sma считает скользящее окно, нам нужны две последние точки
	window := closes[end-period : end+1]
	out := talib.Sma(window, period)
	return out[len(out)-1], out[len(out)-2], true
}

// RSI рассчитывает осциллятор по простым средним приростов и потерь за period изменений,
// заканчивающихся на end. Без предыдущей свечи возвращает 50.
// Нулевые средние потери дают 100, полное отсутствие движения даёт 50.
func RSI(closes []float64, end, period int) float64 {
	if period <= 0 || end < period || end >= len(closes) {
		return 50
	}

	var gains, losses float64
	for i := end - period + 1; i <= end; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Bollinger рассчитывает полосы за period свечей, заканчивающихся на end.
// Средняя линия через talib.Sma, σ генеральной совокупности.
func Bollinger(closes []float64, end, period int, k float64) (Bands, bool) {
	if period <= 0 || end < period-1 || end >= len(closes) {
		return Bands{}, false
	}

	window := closes[end-period+1 : end+1]
	sma := talib.Sma(window, period)
	middle := sma[len(sma)-1]

	var variance float64
	for _, c := range window {
		d := c - middle
		variance += d * d
	}
	sigma := math.Sqrt(variance / float64(period))

	return Bands{
		Upper:  middle + k*sigma,
		Middle: middle,
		Lower:  middle - k*sigma,
		Sigma:  sigma,
	}, true
}
