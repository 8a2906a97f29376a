package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/skalibog/marketpipe/internal/analysis/technical"
	"github.com/skalibog/marketpipe/internal/config"
	"github.com/skalibog/marketpipe/pkg/models"
)

// Kind вид стратегии
type Kind int

const (
	KindMACross Kind = iota
	KindRSI
	KindBollinger
)

// String возвращает тег стратегии из конфигурации
func (k Kind) String() string {
	switch k {
	case KindRSI:
		return "rsi"
	case KindBollinger:
		return "bollinger"
	default:
		return "sma"
	}
}

// ParseKind сопоставляет тег конфигурации виду стратегии.
// Неизвестный тег означает пересечение скользящих средних.
func ParseKind(tag string) Kind {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "rsi":
		return KindRSI
	case "bollinger":
		return KindBollinger
	default:
		return KindMACross
	}
}

// MACrossParams пересечение коротких и длинных скользящих средних
type MACrossParams struct {
	ShortPeriod int
	LongPeriod  int
}

// RSIParams пороговый осциллятор
type RSIParams struct {
	Period          int
	OversoldLevel   float64
	OverboughtLevel float64
}

// BollingerParams пробой полос Боллинджера
type BollingerParams struct {
	Period int
	StdDev float64
}

// Params выбранная стратегия и параметры каждого вида
type Params struct {
	Kind      Kind
	MACross   MACrossParams
	RSI       RSIParams
	Bollinger BollingerParams
}

// Доли позиции для сигналов
const (
	maCrossBuyQuantity   = 0.1
	rsiBuyQuantity       = 0.05
	bollingerBuyQuantity = 0.1
	closeAllQuantity     = 1
)

// DefaultParams параметры по умолчанию для всех стратегий
func DefaultParams() Params {
	return Params{
		Kind:      KindMACross,
		MACross:   MACrossParams{ShortPeriod: 10, LongPeriod: 30},
		RSI:       RSIParams{Period: 14, OversoldLevel: 30, OverboughtLevel: 70},
		Bollinger: BollingerParams{Period: 20, StdDev: 2},
	}
}

// FromConfig строит параметры из секции strategy конфигурации
func FromConfig(cfg config.StrategyConfig) Params {
	p := DefaultParams()
	p.Kind = ParseKind(cfg.Type)
	if cfg.SMA.ShortPeriod > 0 {
		p.MACross.ShortPeriod = cfg.SMA.ShortPeriod
	}
	if cfg.SMA.LongPeriod > 0 {
		p.MACross.LongPeriod = cfg.SMA.LongPeriod
	}
	if cfg.RSI.Period > 0 {
		p.RSI.Period = cfg.RSI.Period
	}
	if cfg.RSI.Oversold > 0 {
		p.RSI.OversoldLevel = cfg.RSI.Oversold
	}
	if cfg.RSI.Overbought > 0 {
		p.RSI.OverboughtLevel = cfg.RSI.Overbought
	}
	if cfg.Bollinger.Period > 0 {
		p.Bollinger.Period = cfg.Bollinger.Period
	}
	if cfg.Bollinger.StdDev > 0 {
		p.Bollinger.StdDev = cfg.Bollinger.StdDev
	}
	return p
}

// Lookback минимальный курсор, с которого стратегия выдаёт мнение
func (p Params) Lookback() int {
	switch p.Kind {
	case KindRSI:
		return p.RSI.Period
	case KindBollinger:
		return p.Bollinger.Period
	default:
		return p.MACross.LongPeriod
	}
}

// Evaluate рассчитывает индикатор выбранной стратегии на позиции cursor ряда series
// и возвращает сигналы. bar должен совпадать с series[cursor].
// До окончания периода прогрева сигналов нет.
func Evaluate(bar models.MarketBar, cursor int, series []models.MarketBar, p Params) []models.Signal {
	if cursor < 0 || cursor >= len(series) {
		return nil
	}

	switch p.Kind {
	case KindRSI:
		return evaluateRSI(bar, cursor, series, p.RSI)
	case KindBollinger:
		return evaluateBollinger(bar, cursor, series, p.Bollinger)
	default:
		return evaluateMACross(bar, cursor, series, p.MACross)
	}
}

func evaluateMACross(bar models.MarketBar, cursor int, series []models.MarketBar, p MACrossParams) []models.Signal {
	if p.ShortPeriod <= 0 || p.LongPeriod <= 0 || cursor < p.LongPeriod {
		return nil
	}

	// окно из LongPeriod+1 свечей покрывает текущую и предыдущую позиции
	closes := technical.Closes(series[cursor-p.LongPeriod : cursor+1])
	end := len(closes) - 1
	short, prevShort, ok1 := technical.SMA(closes, end, p.ShortPeriod)
	long, prevLong, ok2 := technical.SMA(closes, end, p.LongPeriod)
	if !ok1 || !ok2 || !finite(short, prevShort, long, prevLong) {
		return nil
	}

	switch {
	case short > long && prevShort <= prevLong:
		return []models.Signal{newSignal(models.SignalBuy, bar, maCrossBuyQuantity, "SMA Golden Cross")}
	case short < long && prevShort >= prevLong:
		return []models.Signal{newSignal(models.SignalSell, bar, closeAllQuantity, "SMA Death Cross")}
	}
	return nil
}

func evaluateRSI(bar models.MarketBar, cursor int, series []models.MarketBar, p RSIParams) []models.Signal {
	if p.Period <= 0 || cursor < p.Period {
		return nil
	}

	closes := technical.Closes(series[cursor-p.Period : cursor+1])
	rsi := technical.RSI(closes, p.Period, p.Period)
	if !finite(rsi) {
		return nil
	}

	switch {
	case rsi < p.OversoldLevel:
		return []models.Signal{newSignal(models.SignalBuy, bar, rsiBuyQuantity, fmt.Sprintf("RSI Oversold (%.2f)", rsi))}
	case rsi > p.OverboughtLevel:
		return []models.Signal{newSignal(models.SignalSell, bar, closeAllQuantity, fmt.Sprintf("RSI Overbought (%.2f)", rsi))}
	}
	return nil
}

func evaluateBollinger(bar models.MarketBar, cursor int, series []models.MarketBar, p BollingerParams) []models.Signal {
	if p.Period <= 0 || cursor < p.Period {
		return nil
	}

	closes := technical.Closes(series[cursor-p.Period+1 : cursor+1])
	bands, ok := technical.Bollinger(closes, p.Period-1, p.Period, p.StdDev)
	if !ok || !finite(bands.Upper, bands.Lower) {
		return nil
	}
	// Полосы нулевой ширины не дают сигнала
	if bands.Sigma == 0 {
		return nil
	}

	switch {
	case bar.Close <= bands.Lower:
		return []models.Signal{newSignal(models.SignalBuy, bar, bollingerBuyQuantity, "Price touched lower Bollinger Band")}
	case bar.Close >= bands.Upper:
		return []models.Signal{newSignal(models.SignalSell, bar, closeAllQuantity, "Price touched upper Bollinger Band")}
	}
	return nil
}

func newSignal(t models.SignalType, bar models.MarketBar, qty float64, reason string) models.Signal {
	return models.Signal{
		ID:        uuid.NewString(),
		Type:      t,
		Symbol:    bar.Symbol,
		Quantity:  qty,
		Price:     bar.Close,
		Reason:    reason,
		Timestamp: bar.Timestamp,
	}
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
