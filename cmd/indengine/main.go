// cmd/indengine runs the indicator service: periodic RSI / ZigZag
// recomputation over stored candles, published to Redis, SQLite and
// websocket clients.
//
// Usage:
//
//	go run ./cmd/indengine
//
// Configuration comes from the environment (and .env); see indengine.Config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ohlc-indicators/config"
	"ohlc-indicators/internal/indengine"
	"ohlc-indicators/internal/logger"
)

func main() {
	cfg, err := indengine.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "indengine: %v\n", err)
		os.Exit(1)
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "indengine: %v\n", err)
		os.Exit(1)
	}
	logger.InitWithOptions("indengine", logger.Options{Level: level, File: cfg.Log.File})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := indengine.New(ctx, cfg)
	if err != nil {
		slog.Error("init failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil {
		slog.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}
