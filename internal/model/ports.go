package model

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a requested series or instrument
// has no stored data.
var ErrNotFound = errors.New("not found")

// ── Storage Port Interfaces ──
// These interfaces decouple the indicator service from concrete storage
// implementations (SQLite, Postgres, Redis).

// CandleReader reads TF candles for indicator recomputation.
type CandleReader interface {
	// ReadTFCandles reads candles for one instrument and TF with ts > afterTS,
	// ordered by timestamp ascending.
	ReadTFCandles(ctx context.Context, exchange, token string, tf int, afterTS int64) ([]TFCandle, error)

	// ReadLastTFCandles reads the most recent limit candles, ordered ascending.
	ReadLastTFCandles(ctx context.Context, exchange, token string, tf int, limit int) ([]TFCandle, error)

	// ListInstruments returns every instrument that has candles for tf.
	ListInstruments(ctx context.Context, tf int) ([]Instrument, error)

	// Close releases underlying resources.
	Close() error
}

// SeriesWriter publishes computed indicator series.
type SeriesWriter interface {
	// WriteSeriesBatch writes multiple series results in a single batch.
	WriteSeriesBatch(ctx context.Context, results []SeriesResult) error

	// Close releases underlying resources.
	Close() error
}
