package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/skalibog/marketpipe/internal/config"
	"github.com/skalibog/marketpipe/internal/storage"
	"github.com/skalibog/marketpipe/internal/validation"
	"github.com/skalibog/marketpipe/pkg/models"
)

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

var testValidator = validation.Validator{Now: func() time.Time { return base.Add(24 * time.Hour) }}

var cacheCfg = config.CacheConfig{Enabled: true, MaxSize: 10, HistoricalTTLSeconds: 3600}

func bar(symbol string, minute int, close float64) models.MarketBar {
	return models.MarketBar{
		Symbol:    symbol,
		Interval:  "1m",
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    10,
		Source:    "binance",
	}
}

type memStorage struct {
	mu      sync.Mutex
	bars    map[string][]models.MarketBar
	signals []models.Signal
	reports map[string]models.QualitySummary
	saveErr error
}

func newMemStorage() *memStorage {
	return &memStorage{
		bars:    make(map[string][]models.MarketBar),
		reports: make(map[string]models.QualitySummary),
	}
}

func (m *memStorage) SaveBars(_ context.Context, bars []models.MarketBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, b := range bars {
		key := b.Symbol + ":" + b.Interval
		m.bars[key] = append(m.bars[key], b)
	}
	return nil
}

func (m *memStorage) GetBars(_ context.Context, symbol, interval string, limit int) ([]models.MarketBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.bars[symbol+":"+interval]
	if len(bars) == 0 {
		return nil, storage.ErrNotFound
	}
	if limit > 0 && limit < len(bars) {
		bars = bars[len(bars)-limit:]
	}
	return append([]models.MarketBar(nil), bars...), nil
}

func (m *memStorage) SaveSignal(_ context.Context, s *models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, *s)
	return nil
}

func (m *memStorage) GetSignalHistory(_ context.Context, symbol string, limit int) ([]models.Signal, error) {
	return nil, nil
}

func (m *memStorage) SaveQualityReport(_ context.Context, symbol, interval string, summary models.QualitySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[symbol+":"+interval] = summary
	return nil
}

func (m *memStorage) Close() {}

type fakeSource struct {
	mu       sync.Mutex
	failures int
	calls    int
	bars     []models.MarketBar
	tick     models.RealTimeTick
}

var errUnavailable = errors.New("exchange unavailable")

func (f *fakeSource) GetKlines(_ context.Context, symbol, interval string, limit int) ([]models.MarketBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errUnavailable
	}
	return append([]models.MarketBar(nil), f.bars...), nil
}

func (f *fakeSource) GetTicker(_ context.Context, symbol string) (models.RealTimeTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return models.RealTimeTick{}, errUnavailable
	}
	return f.tick, nil
}
