package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Cache    CacheConfig    `yaml:"cache"`
	Strategy StrategyConfig `yaml:"strategy"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	UI       UIConfig       `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит список символов и интервал свечей
type TradingConfig struct {
	Symbols      []string `yaml:"symbols"`
	Interval     string   `yaml:"interval"`
	HistoryLimit int      `yaml:"history_limit"`
}

// IngestConfig периодичность опроса биржи
type IngestConfig struct {
	CandlePollSeconds int `yaml:"candle_poll_seconds"`
	TickerPollSeconds int `yaml:"ticker_poll_seconds"`
}

// CacheConfig настройки кэша рыночных данных
type CacheConfig struct {
	Enabled              bool `yaml:"enabled"`
	MaxSize              int  `yaml:"max_size"`
	HistoricalTTLSeconds int  `yaml:"historical_ttl_seconds"`
}

// StrategyConfig выбор стратегии и её параметры
type StrategyConfig struct {
	Type      string          `yaml:"type"`
	SMA       SMAConfig       `yaml:"sma"`
	RSI       RSIConfig       `yaml:"rsi"`
	Bollinger BollingerConfig `yaml:"bollinger"`
}

// SMAConfig пересечение скользящих средних
type SMAConfig struct {
	ShortPeriod int `yaml:"short_period"`
	LongPeriod  int `yaml:"long_period"`
}

// RSIConfig пороговый осциллятор
type RSIConfig struct {
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

// BollingerConfig полосы Боллинджера
type BollingerConfig struct {
	Period int     `yaml:"period"`
	StdDev float64 `yaml:"std_dev"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// MetricsConfig адрес HTTP-эндпоинта Prometheus
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
	JSONFile string `yaml:"json_file"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Enabled     bool `yaml:"enabled"`
	RefreshRate int  `yaml:"refresh_rate_ms"`
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbols:      []string{"BTCUSDT"},
			Interval:     "1m",
			HistoryLimit: 500,
		},
		Ingest: IngestConfig{
			CandlePollSeconds: 60,
			TickerPollSeconds: 5,
		},
		Cache: CacheConfig{
			Enabled:              true,
			MaxSize:              100,
			HistoricalTTLSeconds: 3600,
		},
		Strategy: StrategyConfig{
			Type:      "sma",
			SMA:       SMAConfig{ShortPeriod: 10, LongPeriod: 30},
			RSI:       RSIConfig{Period: 14, Oversold: 30, Overbought: 70},
			Bollinger: BollingerConfig{Period: 20, StdDev: 2},
		},
		Storage: StorageConfig{Type: "none"},
		Log: LogConfig{
			Level:    "info",
			File:     "app.log",
			JSONFile: "app.json.log",
		},
		UI: UIConfig{RefreshRate: 1000},
	}
}

// Load загружает конфигурацию из файла поверх значений по умолчанию
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate проверяет диапазоны значений и возвращает все найденные ошибки разом
func (c *Config) Validate() error {
	var err error

	if len(c.Trading.Symbols) == 0 {
		err = multierr.Append(err, fmt.Errorf("trading.symbols: список пуст"))
	}
	for _, s := range c.Trading.Symbols {
		if strings.TrimSpace(s) == "" {
			err = multierr.Append(err, fmt.Errorf("trading.symbols: пустой символ"))
		}
	}
	if c.Trading.Interval == "" {
		err = multierr.Append(err, fmt.Errorf("trading.interval: не задан"))
	}
	if c.Trading.HistoryLimit <= 0 {
		err = multierr.Append(err, fmt.Errorf("trading.history_limit: должен быть > 0, получено %d", c.Trading.HistoryLimit))
	}
	if c.Ingest.CandlePollSeconds <= 0 || c.Ingest.TickerPollSeconds <= 0 {
		err = multierr.Append(err, fmt.Errorf("ingest: интервалы опроса должны быть > 0"))
	}

	if c.Cache.Enabled && c.Cache.MaxSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("cache.max_size: должен быть > 0, получено %d", c.Cache.MaxSize))
	}
	if c.Cache.HistoricalTTLSeconds < 0 {
		err = multierr.Append(err, fmt.Errorf("cache.historical_ttl_seconds: отрицательное значение"))
	}

	switch c.Strategy.Type {
	case "", "sma", "rsi", "bollinger":
	default:
		err = multierr.Append(err, fmt.Errorf("strategy.type: неизвестная стратегия %q", c.Strategy.Type))
	}
	sma := c.Strategy.SMA
	if sma.ShortPeriod <= 0 || sma.LongPeriod <= 0 || sma.ShortPeriod >= sma.LongPeriod {
		err = multierr.Append(err, fmt.Errorf("strategy.sma: требуется 0 < short_period < long_period, получено %d/%d", sma.ShortPeriod, sma.LongPeriod))
	}
	rsi := c.Strategy.RSI
	if rsi.Period <= 0 {
		err = multierr.Append(err, fmt.Errorf("strategy.rsi.period: должен быть > 0"))
	}
	if rsi.Oversold < 0 || rsi.Overbought > 100 || rsi.Oversold >= rsi.Overbought {
		err = multierr.Append(err, fmt.Errorf("strategy.rsi: требуется 0 <= oversold < overbought <= 100"))
	}
	bb := c.Strategy.Bollinger
	if bb.Period <= 0 || bb.StdDev <= 0 {
		err = multierr.Append(err, fmt.Errorf("strategy.bollinger: period и std_dev должны быть > 0"))
	}

	switch c.Storage.Type {
	case "", "none":
	case "influxdb":
		if c.Storage.URL == "" || c.Storage.Bucket == "" {
			err = multierr.Append(err, fmt.Errorf("storage: для influxdb нужны url и bucket"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("storage.type: неизвестный тип %q", c.Storage.Type))
	}

	return err
}
