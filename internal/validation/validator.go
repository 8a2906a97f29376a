package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/skalibog/marketpipe/pkg/models"
)

const (
	priceMin  = 0
	priceMax  = 1_000_000
	volumeMin = 0
	volumeMax = 10_000_000_000

	largeMovePercent = 50
)

var oldestTimestamp = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Validator проверяет целостность рыночных данных и выставляет оценку качества 0..100
type Validator struct {
	Now func() time.Time
}

var defaultValidator = Validator{Now: time.Now}

// Validate проверяет одну свечу текущими часами
func Validate(bar models.MarketBar) models.ValidationResult {
	return defaultValidator.Validate(bar)
}

// ValidateBatch проверяет последовательность свечей
func ValidateBatch(bars []models.MarketBar) []models.ValidationResult {
	return defaultValidator.ValidateBatch(bars)
}

// FilterValid оставляет только корректные свечи
func FilterValid(bars []models.MarketBar) []models.MarketBar {
	return defaultValidator.FilterValid(bars)
}

// Summarize собирает сводку качества по пакету
func Summarize(bars []models.MarketBar) models.QualitySummary {
	return defaultValidator.Summarize(bars)
}

// Validate прогоняет фиксированный список проверок.
// Ошибки делают запись невалидной, предупреждения только снижают оценку.
func (v Validator) Validate(bar models.MarketBar) models.ValidationResult {
	return v.validate(bar, true)
}

// ValidateTick проверяет тик. Тик несёт одну последнюю цену во всех полях OHLC,
// поэтому проверка на одинаковые цены к нему не применяется.
func (v Validator) ValidateTick(tick models.RealTimeTick) models.ValidationResult {
	return v.validate(tick.MarketBar, false)
}

func (v Validator) validate(bar models.MarketBar, flatCheck bool) models.ValidationResult {
	var errs, warns []string
	score := 100

	if strings.TrimSpace(bar.Symbol) == "" {
		errs = append(errs, "Invalid or missing symbol")
		score -= 20
	}

	if bar.Timestamp.IsZero() {
		errs = append(errs, "Invalid or missing timestamp")
		score -= 20
	} else if bar.Timestamp.After(v.now()) {
		warns = append(warns, "Timestamp is in the future")
		score -= 5
	} else if bar.Timestamp.Before(oldestTimestamp) {
		warns = append(warns, "Timestamp is too old")
		score -= 5
	}

	prices := []struct {
		name  string
		value float64
	}{
		{"open", bar.Open},
		{"high", bar.High},
		{"low", bar.Low},
		{"close", bar.Close},
	}
	for _, p := range prices {
		switch {
		case !isFinite(p.value):
			errs = append(errs, fmt.Sprintf("Invalid %s price: %v", p.name, p.value))
			score -= 15
		case p.value < priceMin || p.value > priceMax:
			errs = append(errs, fmt.Sprintf("%s price out of range: %v", p.name, p.value))
			score -= 10
		}
	}

	// Соотношения цен проверяем только если сами цены корректны
	if len(errs) == 0 {
		if bar.High < math.Max(bar.Open, bar.Close) {
			errs = append(errs, "High price is not the maximum price")
			score -= 15
		}
		if bar.Low > math.Min(bar.Open, bar.Close) {
			errs = append(errs, "Low price is not the minimum price")
			score -= 15
		}
		if bar.Open <= 0 || bar.Close <= 0 {
			errs = append(errs, "Open or close price cannot be zero or negative")
			score -= 10
		}
	}

	if !isFinite(bar.Volume) {
		errs = append(errs, "Invalid volume")
		score -= 10
	} else if bar.Volume < volumeMin || bar.Volume > volumeMax {
		warns = append(warns, "Volume seems unusual")
		score -= 5
	}

	if strings.TrimSpace(bar.Source) == "" {
		errs = append(errs, "Invalid or missing source")
		score -= 10
	}

	if flatCheck && bar.Open == bar.High && bar.High == bar.Low && bar.Low == bar.Close {
		warns = append(warns, "All prices are the same - possible data issue")
		score -= 5
	}

	// open > 0 гарантировано отсутствием ошибок
	if len(errs) == 0 {
		change := math.Abs(bar.Close-bar.Open) / bar.Open * 100
		if change > largeMovePercent {
			warns = append(warns, fmt.Sprintf("Large price movement detected: %.2f%%", change))
			score -= 3
		}
	}

	return models.ValidationResult{
		IsValid:      len(errs) == 0,
		Errors:       errs,
		Warnings:     warns,
		QualityScore: clamp(score, 0, 100),
	}
}

// ValidateBatch проверяет каждую свечу по порядку
func (v Validator) ValidateBatch(bars []models.MarketBar) []models.ValidationResult {
	results := make([]models.ValidationResult, len(bars))
	for i, b := range bars {
		results[i] = v.Validate(b)
	}
	return results
}

// FilterValid возвращает новую последовательность только из корректных свечей
func (v Validator) FilterValid(bars []models.MarketBar) []models.MarketBar {
	valid := make([]models.MarketBar, 0, len(bars))
	for _, b := range bars {
		if v.Validate(b).IsValid {
			valid = append(valid, b)
		}
	}
	return valid
}

// Summarize считает количество валидных записей, среднюю оценку и частоты сообщений.
// Для пустого пакета средняя оценка равна 0.
func (v Validator) Summarize(bars []models.MarketBar) models.QualitySummary {
	summary := models.QualitySummary{
		TotalRecords:   len(bars),
		ErrorSummary:   make(map[string]int),
		WarningSummary: make(map[string]int),
	}

	total := 0
	for _, r := range v.ValidateBatch(bars) {
		if r.IsValid {
			summary.ValidRecords++
		}
		total += r.QualityScore
		for _, e := range r.Errors {
			summary.ErrorSummary[e]++
		}
		for _, w := range r.Warnings {
			summary.WarningSummary[w]++
		}
	}
	if len(bars) > 0 {
		summary.AverageQualityScore = float64(total) / float64(len(bars))
	}
	return summary
}

func (v Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
