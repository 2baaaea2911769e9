package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ohlc-indicators/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// defaultLatestTTL bounds how long a series stays readable after the
// service stops recomputing it.
const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	LatestTTL time.Duration // 0 means defaultLatestTTL
}

// Writer publishes computed indicator series to Redis.
type Writer struct {
	client *goredis.Client
	ttl    time.Duration
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis writer connected", slog.String("addr", cfg.Addr))
	return newWriter(client, cfg.LatestTTL), nil
}

func newWriter(client *goredis.Client, ttl time.Duration) *Writer {
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	return &Writer{client: client, ttl: ttl}
}

// WriteSeriesBatch writes multiple series results in a single Redis pipeline:
// SET of the latest series plus a PUBLISH for live subscribers, per result.
func (w *Writer) WriteSeriesBatch(ctx context.Context, results []model.SeriesResult) error {
	if len(results) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range results {
		r := &results[i]
		data := r.JSON()
		pipe.Set(ctx, r.LatestKey(), data, w.ttl)
		pipe.Publish(ctx, r.PubSubChannel(), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis series pipeline (%d results): %w", len(results), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
