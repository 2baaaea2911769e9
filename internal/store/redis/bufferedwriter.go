package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"ohlc-indicators/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// While the circuit is open, results are buffered locally and written when
// the circuit closes again. Only the newest result per Redis key is kept:
// a later series for the same key supersedes the buffered one.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	order  []string // keys in first-buffered order
	buffer map[string]model.SeriesResult
	maxBuf int // max buffered keys before dropping the oldest (default: 10000)

	// Callbacks
	OnBuffer func(n int)     // called with the number of results buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
// ctx is used for writes replayed after the circuit closes.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make(map[string]model.SeriesResult),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteSeriesBatch writes results through the circuit breaker.
// If the circuit is open, the results are buffered and nil is returned.
func (bw *BufferedWriter) WriteSeriesBatch(ctx context.Context, results []model.SeriesResult) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteSeriesBatch(ctx, results)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferWrite(results)
		return nil // buffered, not lost
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(results []model.SeriesResult) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	for _, r := range results {
		key := r.LatestKey()
		if _, ok := bw.buffer[key]; !ok {
			if len(bw.order) >= bw.maxBuf {
				// Buffer full: drop oldest
				delete(bw.buffer, bw.order[0])
				bw.order = bw.order[1:]
			}
			bw.order = append(bw.order, key)
		}
		bw.buffer[key] = r
	}

	if bw.OnBuffer != nil {
		bw.OnBuffer(len(results))
	}
}

// flush writes all buffered results through the underlying writer.
// On failure the results are buffered again unless newer ones arrived.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.order) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := make([]model.SeriesResult, 0, len(bw.order))
	for _, key := range bw.order {
		toFlush = append(toFlush, bw.buffer[key])
	}
	bw.order = nil
	bw.buffer = make(map[string]model.SeriesResult)
	bw.mu.Unlock()

	if err := bw.writer.WriteSeriesBatch(bw.ctx, toFlush); err != nil {
		slog.Warn("buffered series flush failed, re-buffering",
			slog.Int("results", len(toFlush)), slog.Any("error", err))
		bw.rebuffer(toFlush)
		return
	}

	slog.Info("flushed buffered series writes", slog.Int("results", len(toFlush)))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// rebuffer puts results back without overwriting anything buffered since.
func (bw *BufferedWriter) rebuffer(results []model.SeriesResult) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	for _, r := range results {
		key := r.LatestKey()
		if _, ok := bw.buffer[key]; ok || len(bw.order) >= bw.maxBuf {
			continue
		}
		bw.order = append(bw.order, key)
		bw.buffer[key] = r
	}
}

// PendingCount returns the number of buffered results waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.order)
}

// Breaker returns the circuit breaker guarding the writer.
func (bw *BufferedWriter) Breaker() *CircuitBreaker {
	return bw.cb
}

// Close flushes what it can and closes the underlying writer.
func (bw *BufferedWriter) Close() error {
	if bw.cb.CurrentState() == StateClosed {
		bw.flush()
	}
	return bw.writer.Close()
}
