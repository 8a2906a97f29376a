// internal/storage/influxdb.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/skalibog/marketpipe/internal/config"
	"github.com/skalibog/marketpipe/pkg/models"
)

// ErrNotFound данных нет
var ErrNotFound = errors.New("данные не найдены")

const maxQueryRows = 50000

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Методы для свечей
	SaveBars(ctx context.Context, bars []models.MarketBar) error
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]models.MarketBar, error)

	// Методы для сигналов
	SaveSignal(ctx context.Context, signal *models.Signal) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]models.Signal, error)

	// Отчёты о качестве данных
	SaveQualityReport(ctx context.Context, symbol, interval string, summary models.QualitySummary) error

	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPIBlocking
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(ctx context.Context, cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPIBlocking(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.client.Close()
}

// SaveBars сохраняет свечи одним пакетом
func (s *InfluxDBStorage) SaveBars(ctx context.Context, bars []models.MarketBar) error {
	if len(bars) == 0 {
		return nil
	}
	points := make([]*write.Point, len(bars))
	for i, b := range bars {
		points[i] = barPoint(b)
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("ошибка записи свечей: %w", err)
	}
	return nil
}

// GetBars получает последние limit свечей в порядке возрастания времени.
// limit <= 0 означает все свечи за период хранения.
func (s *InfluxDBStorage) GetBars(ctx context.Context, symbol, interval string, limit int) ([]models.MarketBar, error) {
	if limit <= 0 {
		limit = maxQueryRows
	}
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "bars")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, interval, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}
	defer result.Close()

	var bars []models.MarketBar
	for result.Next() {
		record := result.Record()

		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		closePrice, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)
		source, _ := record.ValueByKey("source").(string)
		quality, _ := record.ValueByKey("quality").(int64)

		bars = append(bars, models.MarketBar{
			Symbol:       symbol,
			Interval:     interval,
			Timestamp:    record.Time(),
			Open:         open,
			High:         high,
			Low:          low,
			Close:        closePrice,
			Volume:       volume,
			Source:       source,
			QualityScore: int(quality),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("свечи %s %s: %w", symbol, interval, ErrNotFound)
	}

	reverseBars(bars)
	return bars, nil
}

// SaveSignal сохраняет сигнал
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.Signal) error {
	if err := s.writeAPI.WritePoint(ctx, signalPoint(signal)); err != nil {
		return fmt.Errorf("ошибка записи сигнала: %w", err)
	}
	return nil
}

// GetSignalHistory получает историю сигналов, новые первыми
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]models.Signal, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории сигналов: %w", err)
	}
	defer result.Close()

	var signals []models.Signal
	for result.Next() {
		record := result.Record()

		id, _ := record.ValueByKey("id").(string)
		side, _ := record.ValueByKey("type").(string)
		quantity, _ := record.ValueByKey("quantity").(float64)
		price, _ := record.ValueByKey("price").(float64)
		reason, _ := record.ValueByKey("reason").(string)

		signals = append(signals, models.Signal{
			ID:        id,
			Type:      models.SignalType(side),
			Symbol:    symbol,
			Quantity:  quantity,
			Price:     price,
			Reason:    reason,
			Timestamp: record.Time(),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}
	return signals, nil
}

// SaveQualityReport сохраняет сводку качества пакета данных
func (s *InfluxDBStorage) SaveQualityReport(ctx context.Context, symbol, interval string, summary models.QualitySummary) error {
	if err := s.writeAPI.WritePoint(ctx, qualityPoint(symbol, interval, summary, time.Now())); err != nil {
		return fmt.Errorf("ошибка записи отчёта о качестве: %w", err)
	}
	return nil
}

func barPoint(b models.MarketBar) *write.Point {
	return influxdb2.NewPoint(
		"bars",
		map[string]string{
			"symbol":   b.Symbol,
			"interval": b.Interval,
		},
		map[string]interface{}{
			"open":    b.Open,
			"high":    b.High,
			"low":     b.Low,
			"close":   b.Close,
			"volume":  b.Volume,
			"source":  b.Source,
			"quality": int64(b.QualityScore),
		},
		b.Timestamp,
	)
}

func signalPoint(signal *models.Signal) *write.Point {
	return influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol": signal.Symbol,
		},
		map[string]interface{}{
			"id":       signal.ID,
			"type":     string(signal.Type),
			"quantity": signal.Quantity,
			"price":    signal.Price,
			"reason":   signal.Reason,
		},
		signal.Timestamp,
	)
}

func qualityPoint(symbol, interval string, summary models.QualitySummary, ts time.Time) *write.Point {
	return influxdb2.NewPoint(
		"quality",
		map[string]string{
			"symbol":   symbol,
			"interval": interval,
		},
		map[string]interface{}{
			"total":         int64(summary.TotalRecords),
			"valid":         int64(summary.ValidRecords),
			"average_score": summary.AverageQualityScore,
			"errors":        int64(len(summary.ErrorSummary)),
			"warnings":      int64(len(summary.WarningSummary)),
		},
		ts,
	)
}

func reverseBars(bars []models.MarketBar) {
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
}
