package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
trading:
  symbols: [BTCUSDT, ETHUSDT]
  interval: 5m
cache:
  enabled: false
  max_size: 10
strategy:
  type: rsi
  rsi:
    period: 7
    oversold: 25
    overbought: 75
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, "5m", cfg.Trading.Interval)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 10, cfg.Cache.MaxSize)
	assert.Equal(t, 3600, cfg.Cache.HistoricalTTLSeconds)
	assert.Equal(t, "rsi", cfg.Strategy.Type)
	assert.Equal(t, 7, cfg.Strategy.RSI.Period)
	assert.Equal(t, 30, cfg.Strategy.SMA.LongPeriod)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Trading.Symbols = nil
	cfg.Cache.MaxSize = 0
	cfg.Strategy.Type = "macd"
	cfg.Strategy.SMA = SMAConfig{ShortPeriod: 30, LongPeriod: 10}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}

func TestValidateInfluxRequiresURL(t *testing.T) {
	cfg := Default()
	cfg.Storage = StorageConfig{Type: "influxdb"}
	assert.Error(t, cfg.Validate())

	cfg.Storage.URL = "http://localhost:8086"
	cfg.Storage.Bucket = "market"
	assert.NoError(t, cfg.Validate())
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}
