package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/skalibog/marketpipe/internal/cache"
	"github.com/skalibog/marketpipe/internal/config"
	"github.com/skalibog/marketpipe/pkg/models"
)

const (
	maxSignals = 15
	maxLogs    = 50
)

// Стили UI
var (
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")

	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StatsSource источник статистики кэша
type StatsSource interface {
	Stats() cache.Stats
}

// TermUI терминальная панель состояния конвейера
type TermUI struct {
	cfg     config.UIConfig
	stats   StatsSource
	logFile string

	mu            sync.RWMutex
	quality       map[string]models.QualitySummary
	signals       []models.Signal
	logs          []string
	selectedIndex int
	width         int
	height        int
}

type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создаёт панель. logFile - JSON-лог, хвост которого показывается внизу.
func NewTermUI(cfg config.UIConfig, stats StatsSource, logFile string) *TermUI {
	return &TermUI{
		cfg:     cfg,
		stats:   stats,
		logFile: logFile,
		quality: make(map[string]models.QualitySummary),
		logs:    []string{"marketpipe запущен. Ожидание данных..."},
		width:   120,
		height:  40,
	}
}

// Run показывает панель до нажатия q или отмены контекста
func (ui *TermUI) Run(ctx context.Context) error {
	program := tea.NewProgram(bubbleModel{ui: ui}, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("ошибка работы UI: %w", err)
	}
	return nil
}

// UpdateQuality заменяет сводки качества по символам.
// Экран перерисовывается по таймеру refresh_rate_ms.
func (ui *TermUI) UpdateQuality(report map[string]models.QualitySummary) {
	ui.mu.Lock()
	for symbol, s := range report {
		ui.quality[symbol] = s
	}
	ui.mu.Unlock()
}

// AddSignals добавляет сигналы в ленту последних сигналов
func (ui *TermUI) AddSignals(signals ...models.Signal) {
	if len(signals) == 0 {
		return
	}
	ui.mu.Lock()
	ui.signals = append(ui.signals, signals...)
	if len(ui.signals) > maxSignals {
		ui.signals = ui.signals[len(ui.signals)-maxSignals:]
	}
	ui.mu.Unlock()
}

func (ui *TermUI) refreshInterval() time.Duration {
	if ui.cfg.RefreshRate <= 0 {
		return time.Second
	}
	return time.Duration(ui.cfg.RefreshRate) * time.Millisecond
}

// loadLogs перечитывает хвост JSON-лога
func (ui *TermUI) loadLogs() error {
	if ui.logFile == "" {
		return nil
	}
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var logs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		logs = append(logs, formatLogLine(scanner.Text()))
		if len(logs) > maxLogs {
			logs = logs[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(logs) > 0 {
		ui.mu.Lock()
		ui.logs = logs
		ui.mu.Unlock()
	}
	return nil
}

// formatLogLine превращает JSON-запись zap в строку "[15:04:05] [INFO] сообщение (ключ: значение)"
func formatLogLine(line string) string {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}

	level, _ := entry["level"].(string)
	ts, _ := entry["ts"].(string)
	msg, _ := entry["msg"].(string)
	level = strings.ToUpper(ansiRegex.ReplaceAllString(level, ""))

	timestamp := ""
	if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
		timestamp = t.Format("15:04:05")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", timestamp, level, msg)

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "level", "ts", "msg", "caller":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " (%s: %v)", k, entry[k])
	}
	return b.String()
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return m.tick()
}

func (m bubbleModel) tick() tea.Cmd {
	return tea.Tick(m.ui.refreshInterval(), func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			m.ui.mu.Lock()
			m.ui.selectedIndex = max(0, m.ui.selectedIndex-1)
			m.ui.mu.Unlock()
		case "down":
			m.ui.mu.Lock()
			m.ui.selectedIndex = max(0, min(len(m.ui.quality)-1, m.ui.selectedIndex+1))
			m.ui.mu.Unlock()
		case "r":
			_ = m.ui.loadLogs()
		}

	case tea.WindowSizeMsg:
		m.ui.mu.Lock()
		m.ui.width = msg.Width
		m.ui.height = msg.Height
		m.ui.mu.Unlock()

	case refreshMsg:
		_ = m.ui.loadLogs()
		return m, m.tick()
	}

	return m, nil
}

func (m bubbleModel) View() string {
	return m.ui.Render()
}

// Render собирает весь экран
func (ui *TermUI) Render() string {
	var stats cache.Stats
	if ui.stats != nil {
		stats = ui.stats.Stats()
	}

	ui.mu.RLock()
	defer ui.mu.RUnlock()

	title := titleStyle.Render("marketpipe - валидация, кэш и сигналы")
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, R - перезагрузить логи, Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			renderCacheSection(stats),
			renderQualitySection(ui.quality, ui.selectedIndex),
			renderSignalsSection(ui.signals),
			renderLogsSection(ui.logs),
			footer,
		),
	)
}

func renderCacheSection(s cache.Stats) string {
	line := fmt.Sprintf("  Исторических: %d  Тиков: %d  Попаданий: %d  Промахов: %d  Hit rate: %.1f%%",
		s.HistoricalEntries, s.RealTimeEntries, s.Hits, s.Misses, s.HitRate*100)
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("КЭШ"), line))
}

func renderQualitySection(quality map[string]models.QualitySummary, selectedIndex int) string {
	var content strings.Builder

	symbols := make([]string, 0, len(quality))
	for symbol := range quality {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	if len(symbols) == 0 {
		content.WriteString("  Ожидание данных...\n")
	}
	for i, symbol := range symbols {
		q := quality[symbol]
		line := fmt.Sprintf("  %s: %s  валидных %d/%d  ошибок %d  предупреждений %d",
			symbol, formatScore(q.AverageQualityScore), q.ValidRecords, q.TotalRecords,
			len(q.ErrorSummary), len(q.WarningSummary))
		if i == selectedIndex {
			line = "> " + line[2:]
			line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render(line)
		}
		content.WriteString(line + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("КАЧЕСТВО ДАННЫХ"), content.String()))
}

func renderSignalsSection(signals []models.Signal) string {
	var content strings.Builder
	if len(signals) == 0 {
		content.WriteString("  Сигналов пока нет\n")
	}
	// новые сверху
	for i := len(signals) - 1; i >= 0; i-- {
		s := signals[i]
		fmt.Fprintf(&content, "  %s %s %s x%.4g @ %.2f  %s\n",
			s.Timestamp.Format("02.01 15:04"), s.Symbol, formatSignalType(s.Type), s.Quantity, s.Price, s.Reason)
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("СИГНАЛЫ"), content.String()))
}

func renderLogsSection(logs []string) string {
	var content strings.Builder

	start := 0
	if len(logs) > 8 {
		start = len(logs) - 8
	}
	for _, log := range logs[start:] {
		switch {
		case strings.Contains(log, "[ERROR]"):
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		case strings.Contains(log, "[WARN]"):
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		case strings.Contains(log, "[INFO]"):
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		case strings.Contains(log, "[DEBUG]"):
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}
		content.WriteString("  " + log + "\n")
	}

	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render("ЛОГИ"), content.String()))
}

func formatSignalType(t models.SignalType) string {
	switch t {
	case models.SignalBuy:
		return lipgloss.NewStyle().Foreground(successColor).Bold(true).Render("ПОКУПКА")
	case models.SignalSell:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("ПРОДАЖА")
	default:
		return string(t)
	}
}

func formatScore(score float64) string {
	style := lipgloss.NewStyle().Foreground(successColor)
	switch {
	case score < 70:
		style = lipgloss.NewStyle().Foreground(errorColor)
	case score < 90:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}
	return style.Render(fmt.Sprintf("%.1f", score))
}
