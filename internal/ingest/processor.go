package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/skalibog/marketpipe/internal/validation"
	"github.com/skalibog/marketpipe/pkg/models"
)

const (
	cryptoPrecision = 8
	stockPrecision  = 4
)

var cryptoQuotes = []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "USD"}

// Processor приводит пакет свечей к каноническому виду перед кэшированием
type Processor struct {
	validator validation.Validator
}

// NewProcessor создаёт обработчик с указанным валидатором
func NewProcessor(v validation.Validator) *Processor {
	return &Processor{validator: v}
}

// Process отбрасывает невалидные свечи, сортирует по времени, округляет цены и объём,
// проставляет оценку качества и удаляет дубликаты по symbol:timestamp.
// Входной срез не изменяется.
func (p *Processor) Process(bars []models.MarketBar) []models.MarketBar {
	valid := p.validator.FilterValid(bars)
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Timestamp.Before(valid[j].Timestamp)
	})

	seen := make(map[string]struct{}, len(valid))
	out := make([]models.MarketBar, 0, len(valid))
	for _, bar := range valid {
		bar = p.transform(bar)
		key := dedupeKey(bar)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, bar)
	}
	return out
}

func (p *Processor) transform(bar models.MarketBar) models.MarketBar {
	precision := int32(stockPrecision)
	if isCryptoSymbol(bar.Symbol) {
		precision = cryptoPrecision
	}

	bar.Open = roundTo(bar.Open, precision)
	bar.High = roundTo(bar.High, precision)
	bar.Low = roundTo(bar.Low, precision)
	bar.Close = roundTo(bar.Close, precision)
	bar.Volume = roundTo(bar.Volume, 0)

	if bar.QualityScore == 0 {
		bar.QualityScore = p.validator.Validate(bar).QualityScore
	}
	return bar
}

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func isCryptoSymbol(symbol string) bool {
	s := strings.ToUpper(symbol)
	for _, q := range cryptoQuotes {
		if strings.HasSuffix(s, q) {
			return true
		}
	}
	return false
}

func dedupeKey(bar models.MarketBar) string {
	return fmt.Sprintf("%s:%d", bar.Symbol, bar.Timestamp.UnixMilli())
}
