package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ohlc-indicators/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ConfigChannel carries indicator config updates for hot reload.
const ConfigChannel = "config:indicators"

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads published series and manages Pub/Sub subscriptions.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	slog.Info("redis reader connected", slog.String("addr", cfg.Addr))
	return &Reader{client: client}, nil
}

// ReadLatestSeries loads the series stored under key (see
// model.SeriesResult.LatestKey). Returns model.ErrNotFound if absent or expired.
func (r *Reader) ReadLatestSeries(ctx context.Context, key string) (*model.SeriesResult, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("redis %s: %w", key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var res model.SeriesResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal series %s: %w", key, err)
	}
	return &res, nil
}

// SubscribeChannel subscribes to a Redis Pub/Sub channel.
// Returns the PubSub handle so the caller can listen on .Channel(), or nil
// when the subscription could not be confirmed.
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) *goredis.PubSub {
	pubsub := r.client.Subscribe(ctx, channel)
	// Wait for confirmation
	_, err := pubsub.Receive(ctx)
	if err != nil {
		slog.Warn("redis subscribe failed", slog.String("channel", channel), slog.Any("error", err))
		pubsub.Close()
		return nil
	}
	return pubsub
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
