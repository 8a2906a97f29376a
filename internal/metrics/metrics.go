package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skalibog/marketpipe/pkg/models"
)

var (
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "marketpipe_cache_requests_total", Help: "Cache lookups by store and result"},
		[]string{"store", "result"},
	)
	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "marketpipe_cache_evictions_total", Help: "Entries removed by expiry or capacity"},
		[]string{"store"},
	)
	CacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "marketpipe_cache_entries", Help: "Current entries per store"},
		[]string{"store"},
	)
	RecordsValidated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "marketpipe_records_validated_total", Help: "Validated records by verdict"},
		[]string{"symbol", "verdict"},
	)
	QualityScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpipe_quality_score",
			Help:    "Quality score of validated records",
			Buckets: []float64{50, 70, 80, 90, 95, 100},
		},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "marketpipe_signals_total", Help: "Trade signals emitted"},
		[]string{"symbol", "type"},
	)
)

func init() {
	prometheus.MustRegister(CacheRequests, CacheEvictions, CacheEntries, RecordsValidated, QualityScore, SignalsTotal)
}

// Serve поднимает /metrics на addr
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// CacheObserver передаёт события кэша в Prometheus
type CacheObserver struct{}

func (CacheObserver) Hit(store string) { CacheRequests.WithLabelValues(store, "hit").Inc() }
func (CacheObserver) Miss(store string) { CacheRequests.WithLabelValues(store, "miss").Inc() }

func (CacheObserver) Evicted(store string, n int) {
	CacheEvictions.WithLabelValues(store).Add(float64(n))
}

func (CacheObserver) Size(store string, n int) {
	CacheEntries.WithLabelValues(store).Set(float64(n))
}

// ObserveValidation учитывает результат проверки записи
func ObserveValidation(symbol string, r models.ValidationResult) {
	verdict := "valid"
	if !r.IsValid {
		verdict = "invalid"
	}
	RecordsValidated.WithLabelValues(symbol, verdict).Inc()
	QualityScore.WithLabelValues(symbol).Observe(float64(r.QualityScore))
}

// ObserveSignal учитывает выданный сигнал
func ObserveSignal(s models.Signal) {
	SignalsTotal.WithLabelValues(s.Symbol, string(s.Type)).Inc()
}
