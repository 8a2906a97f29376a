package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/marketpipe/internal/cache"
	"github.com/skalibog/marketpipe/internal/config"
	"github.com/skalibog/marketpipe/pkg/models"
)

type staticStats cache.Stats

func (s staticStats) Stats() cache.Stats { return cache.Stats(s) }

func TestRender(t *testing.T) {
	ui := NewTermUI(config.UIConfig{}, staticStats{HistoricalEntries: 3, RealTimeEntries: 2, Hits: 9, Misses: 1, HitRate: 0.9}, "")
	ui.UpdateQuality(map[string]models.QualitySummary{
		"BTCUSDT": {TotalRecords: 10, ValidRecords: 9, AverageQualityScore: 95},
	})
	ui.AddSignals(models.Signal{
		Type: models.SignalBuy, Symbol: "BTCUSDT", Quantity: 0.1, Price: 67000,
		Reason: "SMA Golden Cross", Timestamp: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	out := ui.Render()
	assert.Contains(t, out, "Исторических: 3")
	assert.Contains(t, out, "Hit rate: 90.0%")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "валидных 9/10")
	assert.Contains(t, out, "SMA Golden Cross")
	assert.Contains(t, out, "ПОКУПКА")
}

func TestRenderEmpty(t *testing.T) {
	out := NewTermUI(config.UIConfig{}, nil, "").Render()
	assert.Contains(t, out, "Ожидание данных")
	assert.Contains(t, out, "Сигналов пока нет")
}

func TestAddSignalsKeepsTail(t *testing.T) {
	ui := NewTermUI(config.UIConfig{}, nil, "")
	for i := 0; i < maxSignals+5; i++ {
		ui.AddSignals(models.Signal{Symbol: "BTCUSDT", Price: float64(i)})
	}
	require.Len(t, ui.signals, maxSignals)
	assert.Equal(t, float64(maxSignals+4), ui.signals[maxSignals-1].Price)
}

func TestFormatLogLine(t *testing.T) {
	line := `{"level":"warn","ts":"01.06.2024 - 12:30:45.000000000Z","caller":"x.go:1","msg":"Тик отклонён","symbol":"ETHUSDT"}`
	assert.Equal(t, "[12:30:45] [WARN] Тик отклонён (symbol: ETHUSDT)", formatLogLine(line))
	assert.Equal(t, "not json", formatLogLine("not json"))
}

func TestLoadLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json.log")
	var lines []string
	for i := 0; i < maxLogs+10; i++ {
		lines = append(lines, `{"level":"info","msg":"строка"}`)
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))

	ui := NewTermUI(config.UIConfig{}, nil, path)
	require.NoError(t, ui.loadLogs())
	assert.Len(t, ui.logs, maxLogs)
	assert.Equal(t, "[] [INFO] строка", ui.logs[0])

	missing := NewTermUI(config.UIConfig{}, nil, filepath.Join(t.TempDir(), "nope.log"))
	assert.NoError(t, missing.loadLogs())
}

func TestUpdateKeys(t *testing.T) {
	ui := NewTermUI(config.UIConfig{RefreshRate: 10}, nil, "")
	ui.UpdateQuality(map[string]models.QualitySummary{"A": {}, "B": {}})
	m := bubbleModel{ui: ui}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, ui.selectedIndex)

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, ui.selectedIndex)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	assert.Equal(t, 10*time.Millisecond, ui.refreshInterval())
}
