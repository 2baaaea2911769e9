package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator service.
type Metrics struct {
	// Compute
	ComputeDur   *prometheus.HistogramVec // labels: indicator
	CycleDur     prometheus.Histogram
	ResultsTotal *prometheus.CounterVec // labels: indicator, status
	SkippedTotal prometheus.Counter     // unchanged candle fingerprint

	// Result cache
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Stores
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	CandleReadDur   prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Live push
	WSClients prometheus.Gauge
	WSDrops   prometheus.Counter

	// Config reloads
	ConfigReloads *prometheus.CounterVec // labels: source=http|file|pubsub, result=ok|rejected
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indengine_compute_duration_seconds",
			Help:    "Full-series indicator compute latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"indicator"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_cycle_duration_seconds",
			Help:    "Duration of one recompute cycle over all instruments and TFs",
			Buckets: prometheus.DefBuckets,
		}),
		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_results_total",
			Help: "Series results produced, by indicator and status",
		}, []string{"indicator", "status"}),
		SkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_skipped_total",
			Help: "Instrument/TF recomputes skipped because candles were unchanged",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_cache_hits_total",
			Help: "Series lookups served from the result cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_cache_misses_total",
			Help: "Series lookups that missed the result cache",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_redis_write_duration_seconds",
			Help:    "Redis series batch write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_sqlite_commit_duration_seconds",
			Help:    "SQLite series batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		CandleReadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_candle_read_duration_seconds",
			Help:    "Candle source read latency per instrument and TF",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_redis_buffered_writes_total",
			Help: "Series writes buffered locally while the Redis circuit breaker is open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_ws_drops_total",
			Help: "Messages dropped for slow websocket clients",
		}),

		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_config_reloads_total",
			Help: "Indicator config reload attempts, by source and result",
		}, []string{"source", "result"}),
	}

	reg.MustRegister(
		m.ComputeDur,
		m.CycleDur,
		m.ResultsTotal,
		m.SkippedTotal,
		m.CacheHits,
		m.CacheMisses,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.CandleReadDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSClients,
		m.WSDrops,
		m.ConfigReloads,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	CandleSourceOK bool      `json:"candle_source_ok"`
	LastCycleAt    time.Time `json:"last_cycle_at"`
	Indicators     int       `json:"indicators"`
	EnabledTFs     []int     `json:"enabled_tfs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetCandleSourceOK(v bool) {
	h.mu.Lock()
	h.CandleSourceOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCycle(t time.Time) {
	h.mu.Lock()
	h.LastCycleAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetIndicators(n int) {
	h.mu.Lock()
	h.Indicators = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the series database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies
// are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Redis and SQLite are outputs; computing still works without them.
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
	}
	if !h.CandleSourceOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	cycleAge := ""
	if !h.LastCycleAt.IsZero() {
		cycleAge = time.Since(h.LastCycleAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		CandleSourceOK  bool    `json:"candle_source_ok"`
		LastCycleAt     string  `json:"last_cycle_at"`
		CycleAge        string  `json:"cycle_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Indicators      int     `json:"indicators"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		CandleSourceOK:  h.CandleSourceOK,
		LastCycleAt:     h.LastCycleAt.Format(time.RFC3339),
		CycleAge:        cycleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Indicators:      h.Indicators,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz on its own port.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. gatherer may be nil to
// expose the default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler returns the Prometheus scrape handler for gatherer, or for the
// default registry when gatherer is nil.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
