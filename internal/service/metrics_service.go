package service

import (
	"math"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for
// generation runs and provides lightweight snapshots.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	runDuration       *prometheus.HistogramVec
	runsTotal         *prometheus.CounterVec
	conflictsDetected prometheus.Counter
	conflictsResolved prometheus.Counter
	sessionsPlaced    prometheus.Counter
	scoreGauge        prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	httpDuration      *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec

	runCount         uint64
	runDurationTotal uint64
	conflictCount    uint64
	resolvedCount    uint64
	cacheHitCount    uint64
	cacheMissCount   uint64
	lastScoreBits    uint64
}

// NewMetricsService registers the generation collectors on a private
// registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_run_duration_seconds",
		Help:    "Duration of timetable generation runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"outcome"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_runs_total",
		Help: "Total number of generation runs",
	}, []string{"outcome"})

	conflictsDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "generation_conflicts_detected_total",
		Help: "Total conflicts found across runs",
	})

	conflictsResolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "generation_conflicts_resolved_total",
		Help: "Total conflicts resolved across runs",
	})

	sessionsPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "generation_sessions_placed_total",
		Help: "Total sessions placed across runs",
	})

	scoreGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "generation_last_score",
		Help: "Optimization score of the most recent run",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(runDuration, runsTotal, conflictsDetected, conflictsResolved, sessionsPlaced, scoreGauge, cacheHits, cacheMisses, httpDuration, httpRequests, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		runDuration:       runDuration,
		runsTotal:         runsTotal,
		conflictsDetected: conflictsDetected,
		conflictsResolved: conflictsResolved,
		sessionsPlaced:    sessionsPlaced,
		scoreGauge:        scoreGauge,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		httpDuration:      httpDuration,
		httpRequests:      httpRequests,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveRun records the outcome of a finished generation run.
func (m *MetricsService) ObserveRun(outcome string, duration time.Duration, stats models.GenerationStatistics) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.conflictsDetected.Add(float64(stats.ConflictsDetected))
	m.conflictsResolved.Add(float64(stats.ConflictsResolved))
	m.sessionsPlaced.Add(float64(stats.TotalSessions))
	m.scoreGauge.Set(stats.OptimizationScore)

	atomic.AddUint64(&m.runCount, 1)
	atomic.AddUint64(&m.runDurationTotal, uint64(duration.Nanoseconds()))
	atomic.AddUint64(&m.conflictCount, uint64(stats.ConflictsDetected))
	atomic.AddUint64(&m.resolvedCount, uint64(stats.ConflictsResolved))
	atomic.StoreUint64(&m.lastScoreBits, scoreBits(stats.OptimizationScore))
}

// RegisterQueueDepth exposes a gauge tracking the async run queue
// backlog via the provided callback.
func (m *MetricsService) RegisterQueueDepth(depth func() int) {
	if m == nil || depth == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "generation_queue_depth",
		Help: "Jobs waiting in the generation run queue",
	}, func() float64 {
		return float64(depth())
	}))
}

// ObserveHTTPRequest records one finished HTTP request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(method, path, code).Inc()
}

// RecordCacheOperation records cache hit/miss counters.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
		return
	}
	m.cacheMisses.Inc()
	atomic.AddUint64(&m.cacheMissCount, 1)
}

// EngineMetricsSnapshot aggregates counters for API consumption.
type EngineMetricsSnapshot struct {
	RunsTotal            uint64    `json:"runs_total"`
	AverageRunDurationMS float64   `json:"average_run_duration_ms"`
	ConflictsDetected    uint64    `json:"conflicts_detected"`
	ConflictsResolved    uint64    `json:"conflicts_resolved"`
	LastScore            float64   `json:"last_score"`
	CacheHits            uint64    `json:"cache_hits"`
	CacheMisses          uint64    `json:"cache_misses"`
	Goroutines           int       `json:"goroutines"`
	GeneratedAt          time.Time `json:"generated_at"`
}

func scoreBits(score float64) uint64 {
	return math.Float64bits(score)
}

func scoreFromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}

// Snapshot returns aggregated metrics.
func (m *MetricsService) Snapshot() EngineMetricsSnapshot {
	if m == nil {
		return EngineMetricsSnapshot{}
	}

	runs := atomic.LoadUint64(&m.runCount)
	durations := atomic.LoadUint64(&m.runDurationTotal)

	var avgMS float64
	if runs > 0 {
		avgMS = float64(durations) / float64(runs) / float64(time.Millisecond)
	}

	return EngineMetricsSnapshot{
		RunsTotal:            runs,
		AverageRunDurationMS: avgMS,
		ConflictsDetected:    atomic.LoadUint64(&m.conflictCount),
		ConflictsResolved:    atomic.LoadUint64(&m.resolvedCount),
		LastScore:            scoreFromBits(atomic.LoadUint64(&m.lastScoreBits)),
		CacheHits:            atomic.LoadUint64(&m.cacheHitCount),
		CacheMisses:          atomic.LoadUint64(&m.cacheMissCount),
		Goroutines:           runtime.NumGoroutine(),
		GeneratedAt:          time.Now().UTC(),
	}
}
