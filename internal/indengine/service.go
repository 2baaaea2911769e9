// Package indengine runs the indicator service: it periodically recomputes
// every configured indicator over the latest candles of each instrument and
// timeframe, then publishes the series to Redis, persists them to SQLite and
// pushes them to websocket clients.
package indengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"ohlc-indicators/internal/gateway"
	"ohlc-indicators/internal/indicator"
	"ohlc-indicators/internal/logger"
	"ohlc-indicators/internal/markethours"
	"ohlc-indicators/internal/metrics"
	"ohlc-indicators/internal/model"
	"ohlc-indicators/internal/notification"
	"ohlc-indicators/internal/store/postgres"
	redisstore "ohlc-indicators/internal/store/redis"
	sqlitestore "ohlc-indicators/internal/store/sqlite"
)

// persistQueue bounds results waiting for the SQLite batch writer.
const persistQueue = 5000

// Deps are the external collaborators of a Service. Only Source is
// required; a nil output is skipped.
type Deps struct {
	Source model.CandleReader

	Publisher   model.SeriesWriter    // Redis, normally a BufferedWriter
	RedisClient *goredis.Client       // health probe
	ConfigSub   *redisstore.Reader    // config:indicators subscriber, latest-series reads
	Store       *sqlitestore.Writer   // series persistence
	Series      *sqlitestore.Reader   // GET /v1/series fallback
	Notifier    notification.Notifier // indicator alerts

	Registerer prometheus.Registerer // nil: prometheus default
	Gatherer   prometheus.Gatherer   // nil: prometheus default
}

// Service is the top-level orchestrator for the indicator engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg  Config
	deps Deps

	engine *indicator.Engine
	cache  *seriesCache
	hub    *gateway.Hub
	prom   *metrics.Metrics
	health *metrics.HealthStatus
	alerts *alerter // nil: alerts disabled

	session *markethours.Session // nil: recompute on every tick
	wasOpen bool

	persistCh chan model.SeriesResult
	kick      chan struct{} // requests an immediate cycle
	cycleMu   sync.Mutex
	closers   []func() error
}

// CycleStats summarises one recompute cycle.
type CycleStats struct {
	Jobs     int // instrument + TF pairs
	Computed int // pairs recomputed
	Skipped  int // pairs with an unchanged candle window
	Failed   int // pairs whose candles could not be read
	Results  int // series published
}

// New creates a Service from cfg, connecting to the candle source, Redis
// and SQLite. Redis is optional: when it is unreachable series are still
// persisted and pushed over websocket.
func New(ctx context.Context, cfg Config) (*Service, error) {
	deps := Deps{Notifier: cfg.notifier()}
	var closers []func() error
	fail := func(err error) (*Service, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	// ---- Candle source ----
	if cfg.CandleSource == SourcePostgres {
		r, err := postgres.NewReader(ctx, cfg.Postgres, cfg.PostgresExchange)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, r.Close)
		deps.Source = r
	}

	// ---- Series persistence ----
	// The writer creates the schema, so it is opened before any reader.
	if err := os.MkdirAll(filepath.Dir(cfg.seriesDB()), 0o755); err != nil {
		return fail(fmt.Errorf("create series dir: %w", err))
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.seriesDB()})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, w.Close)
	deps.Store = w

	sr, err := sqlitestore.NewReader(cfg.seriesDB())
	if err != nil {
		return fail(err)
	}
	closers = append(closers, sr.Close)
	deps.Series = sr

	if deps.Source == nil {
		if cfg.SQLitePath == cfg.seriesDB() {
			deps.Source = sr
		} else {
			cr, err := sqlitestore.NewReader(cfg.SQLitePath)
			if err != nil {
				return fail(err)
			}
			closers = append(closers, cr.Close)
			deps.Source = cr
		}
	}

	// ---- Redis ----
	rw, err := redisstore.New(redisstore.WriterConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		LatestTTL: cfg.SeriesTTL,
	})
	if err != nil {
		slog.Warn("redis unavailable, series will not be published", slog.Any("error", err))
	} else {
		deps.RedisClient = rw.Client()
		deps.Publisher = redisstore.NewBufferedWriter(ctx, rw, redisstore.NewCircuitBreaker(5, 10*time.Second), 0)
		closers = append(closers, deps.Publisher.Close)

		sub, err := redisstore.NewReader(redisstore.ReaderConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err != nil {
			slog.Warn("redis config subscriber unavailable", slog.Any("error", err))
		} else {
			deps.ConfigSub = sub
			closers = append(closers, sub.Close)
		}
	}

	svc, err := NewWithDeps(cfg, deps)
	if err != nil {
		return fail(err)
	}
	svc.closers = closers
	return svc, nil
}

// NewWithDeps builds a Service around already-open dependencies.
// The caller keeps ownership of deps.
func NewWithDeps(cfg Config, deps Deps) (*Service, error) {
	if deps.Source == nil {
		return nil, errors.New("indengine: candle source is required")
	}

	specs, err := cfg.IndicatorSpecs()
	if err != nil {
		return nil, err
	}
	reg := indicator.DefaultRegistry()
	if err := indicator.ValidateConfigs(reg, specs); err != nil {
		return nil, err
	}

	cache, err := newSeriesCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	session, err := cfg.session()
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:       cfg,
		deps:      deps,
		engine:    indicator.NewEngine(reg, specs),
		cache:     cache,
		hub:       gateway.NewHub(),
		prom:      metrics.NewMetrics(deps.Registerer),
		health:    metrics.NewHealthStatus(),
		persistCh: make(chan model.SeriesResult, persistQueue),
		kick:      make(chan struct{}, 1),
		session:   session,
	}
	if deps.Notifier != nil {
		svc.alerts = newAlerter(deps.Notifier, cfg.AlertRSIHigh, cfg.AlertRSILow)
	}
	svc.wireMetrics()
	svc.health.SetIndicators(len(specs))
	svc.health.SetEnabledTFs(cfg.TFs())
	svc.health.SetCandleSourceOK(true)
	svc.health.SetRedisConnected(deps.RedisClient != nil)
	svc.health.SetSQLiteOK(deps.Store != nil)

	slog.Info("indicator engine configured",
		slog.Int("indicators", len(specs)),
		slog.Any("tfs", cfg.TFs()),
		slog.String("candle_source", cfg.CandleSource))
	return svc, nil
}

// wireMetrics connects component callbacks to Prometheus.
func (svc *Service) wireMetrics() {
	svc.hub.OnClientsChange = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	svc.hub.OnDrop = func() { svc.prom.WSDrops.Inc() }

	bw, ok := svc.deps.Publisher.(*redisstore.BufferedWriter)
	if !ok {
		return
	}
	bw.OnBuffer = func(n int) { svc.prom.RedisBufferedWrites.Add(float64(n)) }
	bw.OnFlush = func(n int) {
		slog.Info("flushed buffered redis writes", slog.Int("results", n))
	}
	bw.Breaker().OnStateChange = chainStateChange(bw.Breaker().OnStateChange, func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		slog.Warn("redis circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
	})
}

func chainStateChange(prev, next func(from, to redisstore.State)) func(from, to redisstore.State) {
	return func(from, to redisstore.State) {
		if prev != nil {
			prev(from, to)
		}
		next(from, to)
	}
}

// Engine returns the indicator engine.
func (svc *Service) Engine() *indicator.Engine { return svc.engine }

// Hub returns the websocket hub.
func (svc *Service) Hub() *gateway.Hub { return svc.hub }

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	slog.Info("starting indicator engine",
		slog.String("http", svc.cfg.HTTPAddr),
		slog.Duration("interval", svc.cfg.RecomputeInterval),
		slog.Int("lookback", svc.cfg.LookbackCandles))

	// ---- Persistence ----
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		svc.runPersist()
	}()

	// ---- Health, HTTP, reload sources ----
	var sqlDB *sql.DB
	if svc.deps.Store != nil {
		sqlDB = svc.deps.Store.DB()
	}
	svc.health.StartLivenessChecker(ctx, svc.deps.RedisClient, sqlDB, 10*time.Second)

	srv := &http.Server{Addr: svc.cfg.HTTPAddr, Handler: svc.Handler()}
	go func() {
		slog.Info("http server listening", slog.String("addr", svc.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", slog.Any("error", err))
		}
	}()

	var metricsSrv *metrics.Server
	if svc.cfg.MetricsAddr != "" {
		metricsSrv = metrics.NewServer(svc.cfg.MetricsAddr, svc.health, svc.deps.Gatherer)
		metricsSrv.Start()
	}

	svc.startConfigSubscriber(ctx)
	if svc.cfg.IndicatorConfigFile != "" {
		if err := svc.watchConfigFile(ctx, svc.cfg.IndicatorConfigFile); err != nil {
			slog.Warn("indicator file watch disabled", slog.Any("error", err))
		}
	}

	// ---- Compute loop ----
	svc.cycle(ctx)
	ticker := time.NewTicker(svc.cfg.RecomputeInterval)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-ticker.C:
			if svc.inSession(now) {
				svc.cycle(ctx)
			}
		case <-svc.kick:
			svc.cycle(ctx)
		}
	}
	ticker.Stop()

	// ---- Graceful shutdown ----
	slog.Info("shutdown signal received")
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
	if metricsSrv != nil {
		metricsSrv.Stop(shutCtx)
	}

	close(svc.persistCh)
	<-persistDone
	svc.Close()
	slog.Info("shutdown complete")
	return nil
}

// Close releases the dependencies opened by New.
func (svc *Service) Close() {
	for i := len(svc.closers) - 1; i >= 0; i-- {
		if err := svc.closers[i](); err != nil {
			slog.Warn("close failed", slog.Any("error", err))
		}
	}
	svc.closers = nil
}

func (svc *Service) runPersist() {
	if svc.deps.Store == nil {
		for range svc.persistCh {
		}
		return
	}
	svc.deps.Store.Run(context.Background(), svc.persistCh, func(n int, d time.Duration) {
		svc.prom.SQLiteCommitDur.Observe(d.Seconds())
	})
}

// inSession reports whether a scheduled cycle should run at now. One more
// cycle runs after the session closes to pick up the final candle.
func (svc *Service) inSession(now time.Time) bool {
	if svc.session == nil {
		return true
	}
	open := svc.session.IsOpen(now)
	run := open || svc.wasOpen
	if open != svc.wasOpen {
		slog.Info("trading session changed", slog.String("status", svc.session.Status(now)))
	}
	svc.wasOpen = open
	return run
}

// requestCycle asks Run for an immediate recompute.
func (svc *Service) requestCycle() {
	select {
	case svc.kick <- struct{}{}:
	default:
	}
}

func (svc *Service) cycle(ctx context.Context) {
	stats, err := svc.RunCycle(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("compute cycle failed", slog.Any("error", err))
		return
	}
	slog.Debug("compute cycle done",
		slog.Int("jobs", stats.Jobs),
		slog.Int("computed", stats.Computed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed))
}

type job struct {
	inst model.Instrument
	tf   int
}

// RunCycle recomputes every instrument + TF once. Results are published to
// Redis, queued for SQLite and pushed to websocket clients.
func (svc *Service) RunCycle(ctx context.Context) (CycleStats, error) {
	svc.cycleMu.Lock()
	defer svc.cycleMu.Unlock()

	start := time.Now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("cycle", start))

	jobs, err := svc.jobs(ctx)
	if err != nil {
		svc.health.SetCandleSourceOK(false)
		return CycleStats{}, err
	}
	stats := CycleStats{Jobs: len(jobs)}

	// ---- Worker pool ----
	var (
		mu      sync.Mutex
		changed []model.SeriesResult
		wg      sync.WaitGroup
	)
	workers := svc.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	in := make(chan job)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range in {
				results, outcome := svc.computeJob(ctx, j)
				mu.Lock()
				switch outcome {
				case jobComputed:
					stats.Computed++
					changed = append(changed, results...)
				case jobSkipped:
					stats.Skipped++
				case jobFailed:
					stats.Failed++
				}
				mu.Unlock()
			}
		}()
	}
feed:
	for _, j := range jobs {
		select {
		case in <- j:
		case <-ctx.Done():
			break feed
		}
	}
	close(in)
	wg.Wait()

	svc.health.SetCandleSourceOK(stats.Jobs == 0 || stats.Failed < stats.Jobs)
	stats.Results = len(changed)
	svc.publish(ctx, changed)

	svc.prom.CycleDur.Observe(time.Since(start).Seconds())
	svc.health.SetLastCycle(time.Now())
	if stats.Computed > 0 {
		slog.Info("indicators recomputed", append(logger.LogWithTrace(ctx),
			slog.Int("pairs", stats.Computed),
			slog.Int("results", stats.Results),
			slog.Duration("took", time.Since(start)))...)
	}
	return stats, ctx.Err()
}

// jobs lists the instrument + TF pairs to recompute.
func (svc *Service) jobs(ctx context.Context) ([]job, error) {
	configured, err := svc.cfg.Instruments()
	if err != nil {
		return nil, err
	}
	var out []job
	for _, tf := range svc.cfg.TFs() {
		insts := configured
		if len(insts) == 0 {
			insts, err = svc.deps.Source.ListInstruments(ctx, tf)
			if err != nil {
				return nil, fmt.Errorf("list instruments tf=%d: %w", tf, err)
			}
		}
		for _, inst := range insts {
			out = append(out, job{inst: inst, tf: tf})
		}
	}
	return out, nil
}

type jobOutcome int

const (
	jobComputed jobOutcome = iota
	jobSkipped
	jobFailed
)

func (svc *Service) computeJob(ctx context.Context, j job) ([]model.SeriesResult, jobOutcome) {
	readStart := time.Now()
	candles, err := svc.deps.Source.ReadLastTFCandles(ctx, j.inst.Exchange, j.inst.Token, j.tf, svc.cfg.LookbackCandles)
	svc.prom.CandleReadDur.Observe(time.Since(readStart).Seconds())
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("candle read failed", append(logger.LogWithTrace(ctx),
				slog.String("instrument", j.inst.Key()),
				slog.Int("tf", j.tf),
				slog.Any("error", err))...)
		}
		return nil, jobFailed
	}

	fp := fingerprintOf(candles)
	if _, ok := svc.cache.lookup(j.inst, j.tf, fp); ok {
		svc.prom.CacheHits.Inc()
		svc.prom.SkippedTotal.Inc()
		return nil, jobSkipped
	}
	svc.prom.CacheMisses.Inc()

	gen := svc.cache.generation()
	outs := svc.engine.Compute(indicator.FromCandles(candles))
	for _, o := range outs {
		svc.prom.ComputeDur.WithLabelValues(o.Config.Type).Observe(o.Elapsed.Seconds())
		svc.prom.ResultsTotal.WithLabelValues(o.Config.Type, o.Status()).Inc()
	}
	results := indicator.Results(j.inst, j.tf, len(candles), outs)
	if !svc.cache.store(j.inst, j.tf, fp, gen, results) {
		slog.Debug("indicator set changed during compute, result not cached", append(logger.LogWithTrace(ctx),
			slog.String("instrument", j.inst.Key()), slog.Int("tf", j.tf))...)
	}
	return results, jobComputed
}

// publish fans results out to Redis, SQLite and websocket clients.
func (svc *Service) publish(ctx context.Context, results []model.SeriesResult) {
	if len(results) == 0 {
		return
	}

	if svc.deps.Publisher != nil {
		start := time.Now()
		if err := svc.deps.Publisher.WriteSeriesBatch(ctx, results); err != nil {
			slog.Warn("redis publish failed", append(logger.LogWithTrace(ctx),
				slog.Int("results", len(results)), slog.Any("error", err))...)
		}
		svc.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
	}

	for _, r := range results {
		select {
		case svc.persistCh <- r:
		case <-ctx.Done():
			return
		}
	}

	svc.hub.Publish(results)

	if svc.alerts != nil {
		svc.alerts.dispatch(ctx, svc.alerts.evaluate(results))
	}
}

// Reload validates and applies a new indicator set. source labels the
// reload in metrics and logs: "http", "file" or "pubsub".
func (svc *Service) Reload(source string, configs []indicator.IndicatorConfig) (kept, added int, err error) {
	kept, added, err = svc.engine.ReloadConfigs(configs)
	if err != nil {
		svc.prom.ConfigReloads.WithLabelValues(source, "rejected").Inc()
		slog.Warn("indicator reload rejected", slog.String("source", source), slog.Any("error", err))
		return 0, 0, err
	}
	svc.prom.ConfigReloads.WithLabelValues(source, "ok").Inc()
	svc.health.SetIndicators(len(configs))

	// Cached windows were computed with the old set. The purge follows the
	// swap, so a cycle computing with the old set cannot cache its results.
	svc.cache.purge()
	svc.requestCycle()
	slog.Info("indicator set reloaded", slog.String("source", source),
		slog.Int("kept", kept), slog.Int("added", added))
	return kept, added, nil
}
