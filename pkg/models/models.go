package models

import (
	"time"
)

// MarketBar представляет OHLCV-свечу
type MarketBar struct {
	Symbol       string    `json:"symbol"`
	Interval     string    `json:"interval,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	Source       string    `json:"source"`
	QualityScore int       `json:"quality_score,omitempty"`
}

// RealTimeTick представляет последнее наблюдение цены по символу
type RealTimeTick struct {
	MarketBar
	Bid      float64 `json:"bid,omitempty"`
	Ask      float64 `json:"ask,omitempty"`
	LastSize float64 `json:"last_size,omitempty"`
}

// ValidationResult представляет результат проверки одной записи
type ValidationResult struct {
	IsValid      bool
	Errors       []string
	Warnings     []string
	QualityScore int
}

// QualitySummary агрегирует результаты проверки пакета записей
type QualitySummary struct {
	TotalRecords        int
	ValidRecords        int
	AverageQualityScore float64
	ErrorSummary        map[string]int
	WarningSummary      map[string]int
}

// SignalType направление торгового сигнала
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// Signal представляет торговый сигнал стратегии
type Signal struct {
	ID        string
	Type      SignalType
	Symbol    string
	Quantity  float64 // доля позиции, 1 = закрыть позицию целиком
	Price     float64
	Reason    string
	Timestamp time.Time
}
