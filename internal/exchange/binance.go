package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/skalibog/marketpipe/internal/config"
	"github.com/skalibog/marketpipe/pkg/models"
)

// SourceName метка источника данных в свечах
const SourceName = "binance"

// Source поставщик рыночных данных для конвейера
type Source interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.MarketBar, error)
	GetTicker(ctx context.Context, symbol string) (models.RealTimeTick, error)
}

// BinanceClient клиент для взаимодействия с Binance Futures
type BinanceClient struct {
	futures *futures.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) *BinanceClient {
	futures.UseTestnet = cfg.Testnet
	return &BinanceClient{
		futures: futures.NewClient(cfg.APIKey, cfg.APISecret),
	}
}

// GetKlines получает исторические свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.MarketBar, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	bars := make([]models.MarketBar, 0, len(klines))
	for _, k := range klines {
		bar, err := klineToBar(symbol, interval, k)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// GetTicker получает последнюю цену и лучшие bid/ask
func (c *BinanceClient) GetTicker(ctx context.Context, symbol string) (models.RealTimeTick, error) {
	prices, err := c.futures.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.RealTimeTick{}, fmt.Errorf("ошибка получения цены: %w", err)
	}
	if len(prices) == 0 {
		return models.RealTimeTick{}, fmt.Errorf("нет цены для %s", symbol)
	}

	books, err := c.futures.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.RealTimeTick{}, fmt.Errorf("ошибка получения книги заявок: %w", err)
	}

	var bid, ask, bidQty string
	if len(books) > 0 {
		bid, ask, bidQty = books[0].BidPrice, books[0].AskPrice, books[0].BidQuantity
	}
	return buildTick(symbol, prices[0].Price, bid, ask, bidQty, time.Now())
}

func klineToBar(symbol, interval string, k *futures.Kline) (models.MarketBar, error) {
	values, err := parseFloats(k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return models.MarketBar{}, fmt.Errorf("ошибка разбора свечи %s: %w", symbol, err)
	}
	return models.MarketBar{
		Symbol:    symbol,
		Interval:  interval,
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Source:    SourceName,
	}, nil
}

func buildTick(symbol, price, bid, ask, size string, ts time.Time) (models.RealTimeTick, error) {
	values, err := parseFloats(price)
	if err != nil {
		return models.RealTimeTick{}, fmt.Errorf("ошибка разбора цены %s: %w", symbol, err)
	}
	p := values[0]

	tick := models.RealTimeTick{
		MarketBar: models.MarketBar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			Source:    SourceName,
		},
	}
	// книга заявок необязательна
	if book, err := parseFloats(bid, ask, size); err == nil {
		tick.Bid, tick.Ask, tick.LastSize = book[0], book[1], book[2]
	}
	return tick, nil
}

func parseFloats(values ...string) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
