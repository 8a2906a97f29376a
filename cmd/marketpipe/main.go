package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/marketpipe/internal/analysis/backtest"
	"github.com/skalibog/marketpipe/internal/analysis/strategy"
	"github.com/skalibog/marketpipe/internal/cache"
	"github.com/skalibog/marketpipe/internal/config"
	"github.com/skalibog/marketpipe/internal/exchange"
	"github.com/skalibog/marketpipe/internal/ingest"
	"github.com/skalibog/marketpipe/internal/metrics"
	"github.com/skalibog/marketpipe/internal/storage"
	"github.com/skalibog/marketpipe/internal/ui"
	"github.com/skalibog/marketpipe/internal/validation"
	"github.com/skalibog/marketpipe/pkg/logger"
	"github.com/skalibog/marketpipe/pkg/models"
)

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	backtestMode := flag.Bool("backtest", false, "прогнать стратегию по истории и завершиться")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Options{
		Level:    cfg.Log.Level,
		File:     cfg.Log.File,
		JSONFile: cfg.Log.JSONFile,
		Console:  !cfg.UI.Enabled,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.GetLogger().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализируем хранилище
	var store storage.Storage
	if cfg.Storage.Type == "influxdb" {
		influx, err := storage.NewInfluxDBStorage(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
		}
		defer influx.Close()
		store = influx
	}

	dataCache := cache.New(cfg.Cache, cache.WithObserver(metrics.CacheObserver{}))
	defer dataCache.Close()

	client := exchange.NewBinanceClient(cfg.Binance)
	params := strategy.FromConfig(cfg.Strategy)
	ttl := time.Duration(cfg.Cache.HistoricalTTLSeconds) * time.Second
	pipeline := ingest.NewPipeline(dataCache, store, validation.Validator{Now: time.Now}, ttl)

	logger.Info("Конвейер запущен",
		zap.Strings("symbols", cfg.Trading.Symbols),
		zap.String("interval", cfg.Trading.Interval),
		zap.String("strategy", params.Kind.String()),
		zap.Bool("cache", dataCache.Enabled()),
		zap.String("storage", cfg.Storage.Type))

	if *backtestMode {
		if err := runBacktest(ctx, cfg, client, pipeline, params, store); err != nil {
			logger.Fatal("Ошибка бэктеста", zap.Error(err))
		}
		return
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Shutdown(context.Background())
		logger.Info("Метрики доступны", zap.String("addr", cfg.Metrics.Addr))
	}

	if err := runLive(ctx, stop, cfg, client, pipeline, params, store, dataCache); err != nil {
		logger.Error("Работа завершена с ошибкой", zap.Error(err))
	}
	logger.Info("Завершение работы")
}

func runLive(
	ctx context.Context,
	stop context.CancelFunc,
	cfg *config.Config,
	client exchange.Source,
	pipeline *ingest.Pipeline,
	params strategy.Params,
	store storage.Storage,
	dataCache *cache.Cache,
) error {
	var panel *ui.TermUI
	var publish func(...models.Signal)
	if cfg.UI.Enabled {
		panel = ui.NewTermUI(cfg.UI, dataCache, cfg.Log.JSONFile)
		publish = panel.AddSignals
	}

	var sink signalSink
	if store != nil {
		sink = store
	}
	engine := newLiveEngine(params, cfg.Trading.Interval, sink, publish)
	poller := ingest.NewPoller(client, pipeline, cfg.Trading.Symbols, cfg.Trading.Interval, cfg.Trading.HistoryLimit, engine.OnBars)

	candleEvery := time.Duration(cfg.Ingest.CandlePollSeconds) * time.Second
	tickerEvery := time.Duration(cfg.Ingest.TickerPollSeconds) * time.Second

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.RunCandles(gctx, candleEvery) })
	g.Go(func() error { return poller.RunTicker(gctx, tickerEvery) })
	g.Go(func() error {
		ticker := time.NewTicker(candleEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				report, err := pipeline.QualityReport(gctx, cfg.Trading.Symbols, cfg.Trading.Interval)
				if err != nil {
					logger.Warn("Ошибка отчёта о качестве", zap.Error(err))
					continue
				}
				if panel != nil {
					panel.UpdateQuality(report)
				}
				for symbol, s := range report {
					logger.Debug("Качество данных",
						zap.String("symbol", symbol),
						zap.Int("valid", s.ValidRecords),
						zap.Int("total", s.TotalRecords),
						zap.Float64("avg_score", s.AverageQualityScore))
				}
			}
		}
	})

	// UI занимает основной поток, выход из него останавливает остальное
	if panel != nil {
		if err := panel.Run(gctx); err != nil {
			logger.Error("Ошибка UI", zap.Error(err))
		}
		stop()
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runBacktest(
	ctx context.Context,
	cfg *config.Config,
	client exchange.Source,
	pipeline *ingest.Pipeline,
	params strategy.Params,
	store storage.Storage,
) error {
	data := make(map[string][]models.MarketBar, len(cfg.Trading.Symbols))
	for _, symbol := range cfg.Trading.Symbols {
		raw, err := client.GetKlines(ctx, symbol, cfg.Trading.Interval, cfg.Trading.HistoryLimit)
		if err != nil {
			return fmt.Errorf("загрузка истории %s: %w", symbol, err)
		}
		bars, err := pipeline.IngestHistorical(ctx, symbol, cfg.Trading.Interval, raw)
		if err != nil {
			logger.Warn("История не сохранена", zap.String("symbol", symbol), zap.Error(err))
		}
		data[symbol] = bars
	}

	var sink backtest.SignalSink
	if store != nil {
		sink = store
	}
	results, err := backtest.NewRunner(params, sink, 0).RunAll(ctx, data)
	if err != nil {
		return err
	}

	for _, r := range results {
		buys, sells := 0, 0
		for _, s := range r.Signals {
			metrics.ObserveSignal(s)
			if s.Type == models.SignalBuy {
				buys++
			} else {
				sells++
			}
		}
		logger.Info("Результат бэктеста",
			zap.String("symbol", r.Symbol),
			zap.String("strategy", params.Kind.String()),
			zap.Int("bars", r.Bars),
			zap.Int("evaluated", r.Evaluated),
			zap.Int("buy", buys),
			zap.Int("sell", sells))
		fmt.Printf("%-10s %-10s свечей: %4d  покупок: %3d  продаж: %3d\n",
			r.Symbol, params.Kind.String(), r.Bars, buys, sells)
	}
	return nil
}
