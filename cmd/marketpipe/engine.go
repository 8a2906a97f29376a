package main

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/marketpipe/internal/analysis/strategy"
	"github.com/skalibog/marketpipe/internal/metrics"
	"github.com/skalibog/marketpipe/pkg/logger"
	"github.com/skalibog/marketpipe/pkg/models"
)

// signalSink получатель сигналов (хранилище)
type signalSink interface {
	SaveSignal(ctx context.Context, signal *models.Signal) error
}

// liveEngine прогоняет стратегию по новым закрытым свечам каждого символа
type liveEngine struct {
	params   strategy.Params
	interval time.Duration // 0, если интервал не распознан
	sink     signalSink
	publish  func(...models.Signal)
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func newLiveEngine(params strategy.Params, interval string, sink signalSink, publish func(...models.Signal)) *liveEngine {
	d, _ := intervalDuration(interval)
	return &liveEngine{
		params:   params,
		interval: d,
		sink:     sink,
		publish:  publish,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// OnBars вызывается опросчиком после загрузки свечей.
// Оцениваются только закрытые свечи, каждая не более одного раза.
func (e *liveEngine) OnBars(ctx context.Context, symbol string, bars []models.MarketBar) {
	closed := e.closedCount(bars)
	if closed <= 0 {
		return
	}

	e.mu.Lock()
	last, seen := e.last[symbol]
	e.last[symbol] = bars[closed-1].Timestamp
	e.mu.Unlock()

	// при первом проходе оцениваем только последнюю закрытую свечу
	start := closed - 1
	if seen {
		start = closed
		for start > 0 && bars[start-1].Timestamp.After(last) {
			start--
		}
	}

	var signals []models.Signal
	for cursor := start; cursor < closed; cursor++ {
		signals = append(signals, strategy.Evaluate(bars[cursor], cursor, bars, e.params)...)
	}

	for i := range signals {
		sig := &signals[i]
		metrics.ObserveSignal(*sig)
		logger.Info("Сигнал",
			zap.String("symbol", sig.Symbol),
			zap.String("type", string(sig.Type)),
			zap.Float64("price", sig.Price),
			zap.Float64("quantity", sig.Quantity),
			zap.String("reason", sig.Reason))

		if e.sink != nil {
			if err := e.sink.SaveSignal(ctx, sig); err != nil {
				logger.Error("Ошибка сохранения сигнала", zap.String("symbol", sig.Symbol), zap.Error(err))
			}
		}
	}
	if e.publish != nil && len(signals) > 0 {
		e.publish(signals...)
	}
}

// closedCount число закрытых свечей в начале ряда. Свеча закрыта, когда истёк её интервал.
// Невалидная открытая свеча могла быть отброшена обработчиком, поэтому последнюю
// свечу не считаем открытой заранее. Без известного интервала открытой считается последняя.
func (e *liveEngine) closedCount(bars []models.MarketBar) int {
	if e.interval <= 0 {
		return len(bars) - 1
	}
	now := e.now()
	n := len(bars)
	for n > 0 && bars[n-1].Timestamp.Add(e.interval).After(now) {
		n--
	}
	return n
}

// intervalDuration переводит интервал Binance ("1m", "4h", "1d", "1w", "1M") в длительность
func intervalDuration(interval string) (time.Duration, bool) {
	if len(interval) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, false
	}

	var unit time.Duration
	switch interval[len(interval)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	case 'M':
		unit = 30 * 24 * time.Hour
	default:
		return 0, false
	}
	return time.Duration(n) * unit, true
}
