package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetLoggerBeforeInitIsNoop(t *testing.T) {
	Set(nil)
	assert.NotPanics(t, func() {
		Info("сообщение до инициализации", zap.String("symbol", "BTCUSDT"))
	})
}

func TestSetRoutesHelpers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	Warn("кэш переполнен", zap.Int("size", 3))
	Debug("отладка")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "кэш переполнен", entry.Message)
	assert.Equal(t, int64(3), entry.ContextMap()["size"])
}

func TestInitWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "app.json.log")

	require.NoError(t, Init(Options{Level: "debug", JSONFile: jsonPath}))
	t.Cleanup(func() { Set(nil) })

	Info("запуск", zap.String("component", "test"))
	require.NoError(t, GetLogger().Sync())

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestInitClosesOpenedFileOnError(t *testing.T) {
	var opened []*os.File
	orig := openLogFile
	openLogFile = func(path string) (*os.File, error) {
		f, err := orig(path)
		if err == nil {
			opened = append(opened, f)
		}
		return f, err
	}
	t.Cleanup(func() { openLogFile = orig })

	dir := t.TempDir()
	err := Init(Options{
		File:     filepath.Join(dir, "app.log"),
		JSONFile: filepath.Join(dir, "missing", "app.json.log"),
	})
	require.Error(t, err)
	require.Len(t, opened, 1)
	assert.ErrorIs(t, opened[0].Close(), os.ErrClosed)
}
