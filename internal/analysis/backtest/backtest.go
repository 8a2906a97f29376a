package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/marketpipe/internal/analysis/strategy"
	"github.com/skalibog/marketpipe/pkg/logger"
	"github.com/skalibog/marketpipe/pkg/models"
)

// Result сигналы по одному символу
type Result struct {
	Symbol    string
	Bars      int
	Evaluated int // свечей после периода прогрева
	Signals   []models.Signal
}

// SignalSink принимает сигналы (хранилище, метрики)
type SignalSink interface {
	SaveSignal(ctx context.Context, signal *models.Signal) error
}

// Runner прогоняет стратегию по историческим рядам
type Runner struct {
	params      strategy.Params
	sink        SignalSink
	parallelism int
}

// NewRunner создаёт раннер. sink может быть nil.
func NewRunner(params strategy.Params, sink SignalSink, parallelism int) *Runner {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Runner{params: params, sink: sink, parallelism: parallelism}
}

// Run последовательно вызывает стратегию для каждой свечи ряда с возрастающим курсором
func (r *Runner) Run(ctx context.Context, symbol string, series []models.MarketBar) (*Result, error) {
	result := &Result{Symbol: symbol, Bars: len(series)}
	lookback := r.params.Lookback()

	for cursor, bar := range series {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if cursor >= lookback {
			result.Evaluated++
		}

		for _, sig := range strategy.Evaluate(bar, cursor, series, r.params) {
			sig := sig
			result.Signals = append(result.Signals, sig)
			if r.sink == nil {
				continue
			}
			if err := r.sink.SaveSignal(ctx, &sig); err != nil {
				return result, fmt.Errorf("ошибка сохранения сигнала %s: %w", symbol, err)
			}
		}
	}

	logger.Debug("Бэктест завершен",
		zap.String("symbol", symbol),
		zap.String("strategy", r.params.Kind.String()),
		zap.Int("bars", len(series)),
		zap.Int("signals", len(result.Signals)))

	return result, nil
}

// RunAll прогоняет символы параллельно, каждый ряд последовательно.
// Результаты упорядочены по символу.
func (r *Runner) RunAll(ctx context.Context, data map[string][]models.MarketBar) ([]*Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	var mu sync.Mutex
	results := make([]*Result, 0, len(data))

	for symbol, series := range data {
		symbol, series := symbol, series
		g.Go(func() error {
			res, err := r.Run(ctx, symbol, series)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results, nil
}
