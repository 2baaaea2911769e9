// Package postgres reads minute bars from a Postgres/Timescale bar store.
//
// Bars live in one table per timeframe, bars_{N}m(symbol, ts, o, h, l, c,
// vol, n_trades), with prices in rupees. The reader maps them to TFCandles
// in paise so they feed the indicator engine like SQLite candles do.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ohlc-indicators/config"
	"ohlc-indicators/internal/model"
)

// Reader implements model.CandleReader over a pgx connection pool.
type Reader struct {
	pool     *pgxpool.Pool
	exchange string // bar tables carry no exchange column
}

// NewReader connects to Postgres and verifies the connection.
func NewReader(ctx context.Context, cfg config.PostgresConfig, exchange string) (*Reader, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	slog.Info("postgres candle source connected",
		slog.String("host", cfg.Host), slog.String("db", cfg.Database))
	return &Reader{pool: pool, exchange: exchange}, nil
}

// Ping checks the pool for the health endpoint.
func (r *Reader) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// tableFor maps a TF in seconds to its bar table.
func tableFor(tf int) (string, error) {
	if tf <= 0 || tf%60 != 0 {
		return "", fmt.Errorf("postgres: tf %ds is not a whole number of minutes", tf)
	}
	return pgx.Identifier{fmt.Sprintf("bars_%dm", tf/60)}.Sanitize(), nil
}

// ReadTFCandles reads bars with ts after afterTS (unix seconds), ascending.
func (r *Reader) ReadTFCandles(ctx context.Context, exchange, token string, tf int, afterTS int64) ([]model.TFCandle, error) {
	if exchange != r.exchange {
		return nil, nil
	}
	table, err := tableFor(tf)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT ts, o, h, l, c, vol, n_trades
		FROM `+table+`
		WHERE symbol = $1 AND ts > $2
		ORDER BY ts ASC`, token, time.Unix(afterTS, 0).UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres query %s: %w", table, err)
	}
	return r.scan(rows, token, tf)
}

// ReadLastTFCandles reads the newest limit bars, returned ascending.
func (r *Reader) ReadLastTFCandles(ctx context.Context, exchange, token string, tf int, limit int) ([]model.TFCandle, error) {
	if exchange != r.exchange {
		return nil, nil
	}
	table, err := tableFor(tf)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT ts, o, h, l, c, vol, n_trades FROM (
			SELECT ts, o, h, l, c, vol, n_trades
			FROM `+table+`
			WHERE symbol = $1
			ORDER BY ts DESC
			LIMIT $2
		) last ORDER BY ts ASC`, token, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres query %s: %w", table, err)
	}
	return r.scan(rows, token, tf)
}

// ListInstruments returns every symbol with bars for tf.
func (r *Reader) ListInstruments(ctx context.Context, tf int) ([]model.Instrument, error) {
	table, err := tableFor(tf)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT symbol FROM `+table+` ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres list symbols: %w", err)
	}
	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres scan symbols: %w", err)
	}
	out := make([]model.Instrument, len(symbols))
	for i, s := range symbols {
		out[i] = model.Instrument{Exchange: r.exchange, Token: s}
	}
	return out, nil
}

func (r *Reader) scan(rows pgx.Rows, token string, tf int) ([]model.TFCandle, error) {
	defer rows.Close()

	var candles []model.TFCandle
	for rows.Next() {
		var (
			ts         time.Time
			o, h, l, c float64
			vol        int64
			trades     int
		)
		if err := rows.Scan(&ts, &o, &h, &l, &c, &vol, &trades); err != nil {
			return nil, fmt.Errorf("postgres scan bar: %w", err)
		}
		candles = append(candles, model.TFCandle{
			Token:    token,
			Exchange: r.exchange,
			TF:       tf,
			TS:       ts.UTC(),
			Open:     model.Paise(o),
			High:     model.Paise(h),
			Low:      model.Paise(l),
			Close:    model.Paise(c),
			Volume:   vol,
			Count:    trades,
		})
	}
	return candles, rows.Err()
}

// Close closes the pool.
func (r *Reader) Close() error {
	r.pool.Close()
	return nil
}
