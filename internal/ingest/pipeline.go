package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/marketpipe/internal/cache"
	"github.com/skalibog/marketpipe/internal/metrics"
	"github.com/skalibog/marketpipe/internal/storage"
	"github.com/skalibog/marketpipe/internal/validation"
	"github.com/skalibog/marketpipe/pkg/logger"
	"github.com/skalibog/marketpipe/pkg/models"
)

// ErrNoHistory нет ни кэшированных, ни сохранённых свечей
var ErrNoHistory = errors.New("нет исторических данных")

// Pipeline связывает проверку, обработку, кэш и хранилище
type Pipeline struct {
	cache     *cache.Cache
	store     storage.Storage
	validator validation.Validator
	processor *Processor
	ttl       time.Duration

	mu      sync.RWMutex
	reports map[string]models.QualitySummary
}

// NewPipeline создаёт конвейер. store может быть nil, тогда данные живут только в кэше.
func NewPipeline(c *cache.Cache, store storage.Storage, v validation.Validator, ttl time.Duration) *Pipeline {
	return &Pipeline{
		cache:     c,
		store:     store,
		validator: v,
		processor: NewProcessor(v),
		ttl:       ttl,
		reports:   make(map[string]models.QualitySummary),
	}
}

// IngestHistorical обрабатывает пакет свечей, кладёт результат в кэш и хранилище.
// Возвращает обработанные свечи в порядке возрастания времени.
func (p *Pipeline) IngestHistorical(ctx context.Context, symbol, interval string, bars []models.MarketBar) ([]models.MarketBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, r := range p.validator.ValidateBatch(bars) {
		metrics.ObserveValidation(symbol, r)
	}

	summary := p.validator.Summarize(bars)
	p.mu.Lock()
	p.reports[reportKey(symbol, interval)] = summary
	p.mu.Unlock()

	processed := p.processor.Process(bars)
	if dropped := len(bars) - len(processed); dropped > 0 {
		logger.Warn("Часть свечей отброшена",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Int("dropped", dropped),
			zap.Int("total", len(bars)))
	}
	if len(processed) == 0 {
		return nil, nil
	}

	p.cache.SetHistorical(symbol, interval, processed, p.ttl)

	if p.store != nil {
		if err := p.store.SaveBars(ctx, processed); err != nil {
			return processed, fmt.Errorf("сохранение свечей %s %s: %w", symbol, interval, err)
		}
		if err := p.store.SaveQualityReport(ctx, symbol, interval, summary); err != nil {
			logger.Warn("Не удалось сохранить отчёт о качестве", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	logger.Debug("Свечи загружены",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(processed)),
		zap.Float64("avg_quality", summary.AverageQualityScore))
	return processed, nil
}

// IngestTick проверяет тик и при успехе заменяет последний тик символа в кэше
func (p *Pipeline) IngestTick(ctx context.Context, tick models.RealTimeTick) (models.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ValidationResult{}, err
	}

	result := p.validator.ValidateTick(tick)
	metrics.ObserveValidation(tick.Symbol, result)
	if !result.IsValid {
		logger.Debug("Тик отклонён", zap.String("symbol", tick.Symbol), zap.Strings("errors", result.Errors))
		return result, nil
	}

	tick.QualityScore = result.QualityScore
	p.cache.SetRealTime(tick.Symbol, tick)
	return result, nil
}

// LastTick последний тик символа из кэша
func (p *Pipeline) LastTick(symbol string) (models.RealTimeTick, bool) {
	return p.cache.GetRealTime(symbol)
}

// History возвращает последние limit свечей: сначала из кэша, затем из хранилища
// с повторным кэшированием результата
func (p *Pipeline) History(ctx context.Context, symbol, interval string, limit int) ([]models.MarketBar, error) {
	if bars, ok := p.cache.GetHistorical(symbol, interval, limit); ok {
		return bars, nil
	}
	if p.store == nil {
		return nil, fmt.Errorf("%s %s: %w", symbol, interval, ErrNoHistory)
	}

	bars, err := p.store.GetBars(ctx, symbol, interval, limit)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s %s: %w", symbol, interval, ErrNoHistory)
	}
	if err != nil {
		return nil, fmt.Errorf("загрузка свечей %s %s: %w", symbol, interval, err)
	}

	p.cache.SetHistorical(symbol, interval, bars, p.ttl)
	return bars, nil
}

// QualityReport возвращает сводку качества по каждому символу. Если пакет символа
// ещё не проходил через конвейер, сводка считается по доступной истории.
func (p *Pipeline) QualityReport(ctx context.Context, symbols []string, interval string) (map[string]models.QualitySummary, error) {
	var mu sync.Mutex
	out := make(map[string]models.QualitySummary, len(symbols))

	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			p.mu.RLock()
			summary, ok := p.reports[reportKey(symbol, interval)]
			p.mu.RUnlock()

			if !ok {
				bars, err := p.History(ctx, symbol, interval, 0)
				if err != nil && !errors.Is(err, ErrNoHistory) {
					return err
				}
				summary = p.validator.Summarize(bars)
			}

			mu.Lock()
			out[symbol] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func reportKey(symbol, interval string) string {
	return symbol + ":" + interval
}
