package ingest

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/marketpipe/internal/exchange"
	"github.com/skalibog/marketpipe/pkg/logger"
	"github.com/skalibog/marketpipe/pkg/models"
)

const maxAttempts = 4

// BarsHandler вызывается после успешной загрузки свечей символа
type BarsHandler func(ctx context.Context, symbol string, bars []models.MarketBar)

// Poller периодически опрашивает биржу и прогоняет данные через конвейер
type Poller struct {
	source   exchange.Source
	pipeline *Pipeline
	symbols  []string
	interval string
	limit    int
	onBars   BarsHandler

	// шаблон задержек между повторами
	retry backoff.Backoff
}

// NewPoller создаёт опросчик для набора символов. onBars может быть nil.
func NewPoller(source exchange.Source, pipeline *Pipeline, symbols []string, interval string, limit int, onBars BarsHandler) *Poller {
	return &Poller{
		source:   source,
		pipeline: pipeline,
		symbols:  symbols,
		interval: interval,
		limit:    limit,
		onBars:   onBars,
		retry: backoff.Backoff{
			Min:    500 * time.Millisecond,
			Max:    10 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
}

// RunCandles загружает свечи сразу и затем каждые every до отмены контекста
func (p *Poller) RunCandles(ctx context.Context, every time.Duration) error {
	return p.loop(ctx, every, p.PollCandles)
}

// RunTicker обновляет последние тики каждые every до отмены контекста
func (p *Poller) RunTicker(ctx context.Context, every time.Duration) error {
	return p.loop(ctx, every, p.PollTicker)
}

func (p *Poller) loop(ctx context.Context, every time.Duration, poll func(context.Context)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poll(ctx)
		}
	}
}

// PollCandles один проход по всем символам
func (p *Poller) PollCandles(ctx context.Context) {
	for _, symbol := range p.symbols {
		var bars []models.MarketBar
		err := p.withRetry(ctx, func() error {
			var err error
			bars, err = p.source.GetKlines(ctx, symbol, p.interval, p.limit)
			return err
		})
		if err != nil {
			logger.Error("Ошибка получения свечей", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		processed, err := p.pipeline.IngestHistorical(ctx, symbol, p.interval, bars)
		if err != nil {
			logger.Error("Ошибка обработки свечей", zap.String("symbol", symbol), zap.Error(err))
		}
		if len(processed) > 0 && p.onBars != nil {
			p.onBars(ctx, symbol, processed)
		}
	}
}

// PollTicker один проход по тикам всех символов
func (p *Poller) PollTicker(ctx context.Context) {
	for _, symbol := range p.symbols {
		var tick models.RealTimeTick
		err := p.withRetry(ctx, func() error {
			var err error
			tick, err = p.source.GetTicker(ctx, symbol)
			return err
		})
		if err != nil {
			logger.Error("Ошибка получения тика", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if _, err := p.pipeline.IngestTick(ctx, tick); err != nil {
			logger.Error("Ошибка обработки тика", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func (p *Poller) withRetry(ctx context.Context, fn func() error) error {
	b := p.retry
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if int(b.Attempt())+1 >= maxAttempts {
			return err
		}

		d := b.Duration()
		logger.Debug("Повтор запроса", zap.Duration("delay", d), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}
