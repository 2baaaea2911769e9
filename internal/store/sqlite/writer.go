package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ohlc-indicators/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// dsn adds the pragmas shared by every connection.
func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Writer is a single-connection SQLite writer with transaction batching.
// It stores imported candles and computed indicator series.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite database opened", slog.String("path", cfg.DBPath))
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles_tf (
			token      TEXT    NOT NULL,
			exchange   TEXT    NOT NULL,
			tf         INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			open       INTEGER NOT NULL,
			high       INTEGER NOT NULL,
			low        INTEGER NOT NULL,
			close      INTEGER NOT NULL,
			volume     INTEGER,
			count      INTEGER,
			PRIMARY KEY (exchange, token, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_series (
			exchange    TEXT    NOT NULL,
			token       TEXT    NOT NULL,
			tf          INTEGER NOT NULL,
			indicator   TEXT    NOT NULL,
			params      TEXT    NOT NULL,
			label       TEXT    NOT NULL,
			status      TEXT    NOT NULL,
			candles     INTEGER NOT NULL,
			data        TEXT    NOT NULL,
			computed_at INTEGER NOT NULL,
			PRIMARY KEY (exchange, token, tf, indicator, params)
		);
	`)
	return err
}

// InsertTFCandles upserts candles in a single transaction.
func (w *Writer) InsertTFCandles(ctx context.Context, candles []model.TFCandle) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles_tf (token, exchange, tf, ts, open, high, low, close, volume, count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, c.Token, c.Exchange, c.TF, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume, c.Count)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle %s@%d: %w", c.Key(), c.TS.Unix(), err)
		}
	}

	return tx.Commit()
}

// WriteSeriesBatch upserts the latest series for each result in a single
// transaction. Only the newest series per instrument/TF/indicator/params is kept.
func (w *Writer) WriteSeriesBatch(ctx context.Context, results []model.SeriesResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO indicator_series
			(exchange, token, tf, indicator, params, label, status, candles, data, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range results {
		r := &results[i]
		data, err := json.Marshal(r.Series)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal series %s: %w", r.Key(), err)
		}
		_, err = stmt.ExecContext(ctx, r.Exchange, r.Token, r.TF, r.Indicator, r.ParamsKey,
			r.Label, r.Status, r.Candles, string(data), r.ComputedAt.UnixMilli())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert series %s: %w", r.Key(), err)
		}
	}

	return tx.Commit()
}

// Run reads results from resultCh and persists them in batched transactions.
// Flushes every batchSize results OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or resultCh is closed.
func (w *Writer) Run(ctx context.Context, resultCh <-chan model.SeriesResult, onCommit func(n int, d time.Duration)) {
	batch := make([]model.SeriesResult, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// The batch is written even after ctx is cancelled.
		if err := w.WriteSeriesBatch(context.Background(), batch); err != nil {
			slog.Error("sqlite series batch insert failed", slog.Int("results", len(batch)), slog.Any("error", err))
		} else if onCommit != nil {
			onCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case r, ok := <-resultCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
