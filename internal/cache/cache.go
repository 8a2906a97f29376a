package cache

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/marketpipe/internal/config"
	"github.com/skalibog/marketpipe/pkg/logger"
	"github.com/skalibog/marketpipe/pkg/models"
)

const (
	// DefaultHistoricalTTL срок жизни исторических данных по умолчанию
	DefaultHistoricalTTL = 3600 * time.Second
	// RealTimeTTL фиксированный срок жизни последнего тика
	RealTimeTTL = 30 * time.Second
	// SweepInterval период фоновой очистки
	SweepInterval = 60 * time.Second
)

// ErrNotInitialized обращение к кэшу, который не был создан
var ErrNotInitialized = errors.New("кэш данных не инициализирован")

// Observer получает события кэша (метрики)
type Observer interface {
	Hit(store string)
	Miss(store string)
	Evicted(store string, n int)
	Size(store string, n int)
}

// Stats текущее состояние кэша
type Stats struct {
	HistoricalEntries int
	RealTimeEntries   int
	Hits              uint64
	Misses            uint64
	HitRate           float64
}

// Option настраивает кэш при создании
type Option func(*Cache)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver подключает наблюдателя событий
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithoutSweeper отключает фоновую очистку (удобно в тестах с подменёнными часами)
func WithoutSweeper() Option {
	return func(c *Cache) { c.noSweep = true }
}

type entry[T any] struct {
	data     T
	inserted time.Time
	seq      uint64 // порядок вставки при равном времени
	ttl      time.Duration
}

func (e *entry[T]) expired(now time.Time) bool {
	return now.Sub(e.inserted) > e.ttl
}

// Cache хранит исторические свечи по ключу symbol:interval и последний тик по символу.
// Записи копируются при записи и при чтении. Для процесса создаётся один экземпляр,
// который передаётся потребителям явно.
type Cache struct {
	cfg      config.CacheConfig
	now      func() time.Time
	observer Observer
	noSweep  bool

	histMu     sync.RWMutex
	historical map[string]*entry[[]models.MarketBar]
	histSeq    uint64

	rtMu     sync.RWMutex
	realTime map[string]*entry[models.RealTimeTick]

	hits   atomic.Uint64
	misses atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New создаёт кэш и, если он включён, запускает фоновую очистку
func New(cfg config.CacheConfig, opts ...Option) *Cache {
	c := &Cache{
		cfg:        cfg,
		now:        time.Now,
		historical: make(map[string]*entry[[]models.MarketBar]),
		realTime:   make(map[string]*entry[models.RealTimeTick]),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cfg.Enabled && !c.noSweep {
		c.wg.Add(1)
		go c.sweepLoop()
	}
	return c
}

// Close останавливает фоновую очистку
func (c *Cache) Close() {
	c.mustInit()
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// Enabled сообщает, работает ли кэш
func (c *Cache) Enabled() bool {
	c.mustInit()
	return c.cfg.Enabled
}

// GetHistorical возвращает копию свечей или false, если кэш выключен, ключа нет
// или запись устарела (устаревшая запись удаляется). limit > 0 оставляет последние limit свечей.
func (c *Cache) GetHistorical(symbol, interval string, limit int) ([]models.MarketBar, bool) {
	c.mustInit()
	if !c.cfg.Enabled {
		return nil, false
	}

	key := historicalKey(symbol, interval)
	now := c.now()

	c.histMu.RLock()
	e, ok := c.historical[key]
	fresh := ok && !e.expired(now)
	var out []models.MarketBar
	if fresh {
		data := e.data
		if limit > 0 && limit < len(data) {
			data = data[len(data)-limit:]
		}
		out = copyBars(data)
	}
	c.histMu.RUnlock()

	if fresh {
		c.recordHit("historical")
		return out, true
	}

	if ok {
		c.histMu.Lock()
		// запись могли заменить между блокировками
		if cur, still := c.historical[key]; still && cur.expired(now) {
			delete(c.historical, key)
			c.notifyEvicted("historical", 1)
		}
		c.histMu.Unlock()
	}
	c.recordMiss("historical")
	return nil, false
}

// SetHistorical сохраняет копию свечей. ttl <= 0 означает DefaultHistoricalTTL.
// Если новый ключ превышает MaxSize, сначала вытесняется самая старая по времени вставки запись.
func (c *Cache) SetHistorical(symbol, interval string, bars []models.MarketBar, ttl time.Duration) {
	c.mustInit()
	if !c.cfg.Enabled {
		return
	}
	if ttl <= 0 {
		ttl = DefaultHistoricalTTL
	}

	key := historicalKey(symbol, interval)
	e := &entry[[]models.MarketBar]{data: copyBars(bars), inserted: c.now(), ttl: ttl}

	c.histMu.Lock()
	c.histSeq++
	e.seq = c.histSeq
	if _, exists := c.historical[key]; !exists && c.cfg.MaxSize > 0 && len(c.historical) >= c.cfg.MaxSize {
		if oldest, ok := c.oldestHistoricalLocked(); ok {
			delete(c.historical, oldest)
			c.notifyEvicted("historical", 1)
			logger.Debug("Вытеснена самая старая запись кэша", zap.String("key", oldest))
		}
	}
	c.historical[key] = e
	size := len(c.historical)
	c.histMu.Unlock()

	c.notifySize("historical", size)
}

// GetRealTime возвращает копию последнего тика по символу
func (c *Cache) GetRealTime(symbol string) (models.RealTimeTick, bool) {
	c.mustInit()
	if !c.cfg.Enabled {
		return models.RealTimeTick{}, false
	}

	now := c.now()

	c.rtMu.RLock()
	e, ok := c.realTime[symbol]
	fresh := ok && !e.expired(now)
	var out models.RealTimeTick
	if fresh {
		out = e.data
	}
	c.rtMu.RUnlock()

	if fresh {
		c.recordHit("realtime")
		return out, true
	}

	if ok {
		c.rtMu.Lock()
		if cur, still := c.realTime[symbol]; still && cur.expired(now) {
			delete(c.realTime, symbol)
			c.notifyEvicted("realtime", 1)
		}
		c.rtMu.Unlock()
	}
	c.recordMiss("realtime")
	return models.RealTimeTick{}, false
}

// SetRealTime заменяет последний тик по символу
func (c *Cache) SetRealTime(symbol string, tick models.RealTimeTick) {
	c.mustInit()
	if !c.cfg.Enabled {
		return
	}

	c.rtMu.Lock()
	c.realTime[symbol] = &entry[models.RealTimeTick]{data: tick, inserted: c.now(), ttl: RealTimeTTL}
	size := len(c.realTime)
	c.rtMu.Unlock()

	c.notifySize("realtime", size)
}

// Clear удаляет все записи из обоих хранилищ
func (c *Cache) Clear() {
	c.ClearHistorical("", "")
	c.ClearRealTime("")
}

// ClearHistorical удаляет пару symbol+interval, все интервалы символа (interval пуст)
// или всё историческое хранилище (оба аргумента пусты)
func (c *Cache) ClearHistorical(symbol, interval string) {
	c.mustInit()

	c.histMu.Lock()
	switch {
	case symbol != "" && interval != "":
		delete(c.historical, historicalKey(symbol, interval))
	case symbol != "":
		prefix := symbol + ":"
		for key := range c.historical {
			if strings.HasPrefix(key, prefix) {
				delete(c.historical, key)
			}
		}
	default:
		c.historical = make(map[string]*entry[[]models.MarketBar])
	}
	size := len(c.historical)
	c.histMu.Unlock()

	c.notifySize("historical", size)
}

// ClearRealTime удаляет тик по символу или все тики (symbol пуст)
func (c *Cache) ClearRealTime(symbol string) {
	c.mustInit()

	c.rtMu.Lock()
	if symbol != "" {
		delete(c.realTime, symbol)
	} else {
		c.realTime = make(map[string]*entry[models.RealTimeTick])
	}
	size := len(c.realTime)
	c.rtMu.Unlock()

	c.notifySize("realtime", size)
}

// Stats возвращает размеры хранилищ и долю попаданий
func (c *Cache) Stats() Stats {
	c.mustInit()

	c.histMu.RLock()
	hist := len(c.historical)
	c.histMu.RUnlock()

	c.rtMu.RLock()
	rt := len(c.realTime)
	c.rtMu.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	return Stats{
		HistoricalEntries: hist,
		RealTimeEntries:   rt,
		Hits:              hits,
		Misses:            misses,
		HitRate:           rate,
	}
}

// Sweep удаляет все устаревшие записи из обоих хранилищ и возвращает их количество
func (c *Cache) Sweep() int {
	c.mustInit()
	now := c.now()

	c.histMu.Lock()
	histRemoved := 0
	for key, e := range c.historical {
		if e.expired(now) {
			delete(c.historical, key)
			histRemoved++
		}
	}
	histSize := len(c.historical)
	c.histMu.Unlock()

	c.rtMu.Lock()
	rtRemoved := 0
	for key, e := range c.realTime {
		if e.expired(now) {
			delete(c.realTime, key)
			rtRemoved++
		}
	}
	rtSize := len(c.realTime)
	c.rtMu.Unlock()

	if histRemoved > 0 {
		c.notifyEvicted("historical", histRemoved)
	}
	if rtRemoved > 0 {
		c.notifyEvicted("realtime", rtRemoved)
	}
	c.notifySize("historical", histSize)
	c.notifySize("realtime", rtSize)

	return histRemoved + rtRemoved
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				logger.Debug("Очистка кэша", zap.Int("removed", n))
			}
		case <-c.stop:
			return
		}
	}
}

// oldestHistoricalLocked ищет ключ с самым ранним временем вставки,
// при равном времени побеждает более ранняя вставка. Вызывается под histMu.
func (c *Cache) oldestHistoricalLocked() (string, bool) {
	var (
		oldestKey string
		oldest    *entry[[]models.MarketBar]
	)
	for key, e := range c.historical {
		if oldest == nil || e.inserted.Before(oldest.inserted) ||
			(e.inserted.Equal(oldest.inserted) && e.seq < oldest.seq) {
			oldestKey, oldest = key, e
		}
	}
	return oldestKey, oldest != nil
}

func (c *Cache) mustInit() {
	if c == nil {
		panic(ErrNotInitialized)
	}
}

func (c *Cache) recordHit(store string) {
	c.hits.Add(1)
	if c.observer != nil {
		c.observer.Hit(store)
	}
}

func (c *Cache) recordMiss(store string) {
	c.misses.Add(1)
	if c.observer != nil {
		c.observer.Miss(store)
	}
}

func (c *Cache) notifyEvicted(store string, n int) {
	if c.observer != nil {
		c.observer.Evicted(store, n)
	}
}

func (c *Cache) notifySize(store string, n int) {
	if c.observer != nil {
		c.observer.Size(store, n)
	}
}

func historicalKey(symbol, interval string) string {
	return symbol + ":" + interval
}

func copyBars(bars []models.MarketBar) []models.MarketBar {
	if bars == nil {
		return nil
	}
	out := make([]models.MarketBar, len(bars))
	copy(out, bars)
	return out
}
