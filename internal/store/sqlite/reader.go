package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ohlc-indicators/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite candles and stored series.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("sqlite reader opened", slog.String("path", dbPath))
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

const candleColumns = `token, exchange, tf, ts, open, high, low, close, volume, count`

// ReadTFCandles reads TF candles from the candles_tf table for a given exchange:token and TF.
// Results are ordered by timestamp ascending.
func (r *Reader) ReadTFCandles(ctx context.Context, exchange, token string, tf int, afterTS int64) ([]model.TFCandle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+candleColumns+`
		FROM candles_tf
		WHERE exchange = ? AND token = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, token, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_tf: %w", err)
	}
	return scanCandles(rows)
}

// ReadLastTFCandles reads the newest limit candles, returned in ascending order.
func (r *Reader) ReadLastTFCandles(ctx context.Context, exchange, token string, tf int, limit int) ([]model.TFCandle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+candleColumns+` FROM (
			SELECT `+candleColumns+`
			FROM candles_tf
			WHERE exchange = ? AND token = ? AND tf = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, exchange, token, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query last candles_tf: %w", err)
	}
	return scanCandles(rows)
}

// ListInstruments returns every exchange:token with candles for tf.
func (r *Reader) ListInstruments(ctx context.Context, tf int) ([]model.Instrument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT exchange, token FROM candles_tf WHERE tf = ? ORDER BY exchange, token
	`, tf)
	if err != nil {
		return nil, fmt.Errorf("sqlite list instruments: %w", err)
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var inst model.Instrument
		if err := rows.Scan(&inst.Exchange, &inst.Token); err != nil {
			return nil, fmt.Errorf("sqlite scan instrument: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func scanCandles(rows *sql.Rows) ([]model.TFCandle, error) {
	defer rows.Close()

	var candles []model.TFCandle
	for rows.Next() {
		var c model.TFCandle
		var tsUnix int64
		var volume, count sql.NullInt64
		if err := rows.Scan(&c.Token, &c.Exchange, &c.TF, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &volume, &count); err != nil {
			return nil, fmt.Errorf("sqlite scan candles_tf: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		c.Volume = volume.Int64
		c.Count = int(count.Int64)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadLatestSeries loads the stored series for an instrument, TF and
// indicator. An empty paramsKey selects the most recently computed params set.
// Returns model.ErrNotFound when nothing is stored.
func (r *Reader) ReadLatestSeries(ctx context.Context, exchange, token string, tf int, indicator, paramsKey string) (*model.SeriesResult, error) {
	query := `
		SELECT exchange, token, tf, indicator, params, label, status, candles, data, computed_at
		FROM indicator_series
		WHERE exchange = ? AND token = ? AND tf = ? AND indicator = ?`
	args := []any{exchange, token, tf, indicator}
	if paramsKey != "" {
		query += ` AND params = ?`
		args = append(args, paramsKey)
	}
	query += ` ORDER BY computed_at DESC LIMIT 1`

	var (
		res        model.SeriesResult
		data       string
		computedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&res.Exchange, &res.Token, &res.TF,
		&res.Indicator, &res.ParamsKey, &res.Label, &res.Status, &res.Candles, &data, &computedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("series %s:%s:%d:%s: %w", exchange, token, tf, indicator, model.ErrNotFound)
		}
		return nil, fmt.Errorf("sqlite read series: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &res.Series); err != nil {
		return nil, fmt.Errorf("unmarshal series: %w", err)
	}
	res.ComputedAt = time.UnixMilli(computedAt).UTC()
	return &res, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
