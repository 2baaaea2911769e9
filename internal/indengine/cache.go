package indengine

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"ohlc-indicators/internal/model"
)

// fingerprint identifies a candle window cheaply. Two windows with the same
// fingerprint produce the same indicator output, so recomputation is skipped.
// The last candle's prices are included because it may still be forming.
type fingerprint struct {
	count   int
	firstTS int64
	lastTS  int64
	last    [4]int64 // open, high, low, close of the last candle
}

func fingerprintOf(candles []model.TFCandle) fingerprint {
	fp := fingerprint{count: len(candles)}
	if len(candles) == 0 {
		return fp
	}
	first, last := candles[0], candles[len(candles)-1]
	fp.firstTS = first.TS.UnixMilli()
	fp.lastTS = last.TS.UnixMilli()
	fp.last = [4]int64{last.Open, last.High, last.Low, last.Close}
	return fp
}

type cacheEntry struct {
	fp      fingerprint
	results []model.SeriesResult
}

// seriesCache holds the latest results per instrument + TF. Every purge
// starts a new generation; results computed under an older generation are
// not stored.
type seriesCache struct {
	lru *lru.Cache[string, cacheEntry]

	mu  sync.Mutex
	gen uint64
}

func newSeriesCache(size int) (*seriesCache, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("series cache: %w", err)
	}
	return &seriesCache{lru: c}, nil
}

func cacheKey(inst model.Instrument, tf int) string {
	return inst.Key() + ":" + model.Itoa(tf)
}

// lookup returns cached results when fp matches the cached window.
func (c *seriesCache) lookup(inst model.Instrument, tf int, fp fingerprint) ([]model.SeriesResult, bool) {
	e, ok := c.lru.Get(cacheKey(inst, tf))
	if !ok || e.fp != fp {
		return nil, false
	}
	return e.results, true
}

// generation returns the current generation. Read it before taking the
// indicator config snapshot the results will be computed with.
func (c *seriesCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// store caches results computed under gen. Reports false when a purge has
// happened since.
func (c *seriesCache) store(inst model.Instrument, tf int, fp fingerprint, gen uint64, results []model.SeriesResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.lru.Add(cacheKey(inst, tf), cacheEntry{fp: fp, results: results})
	return true
}

// latest returns the most recent results regardless of fingerprint.
func (c *seriesCache) latest(inst model.Instrument, tf int) ([]model.SeriesResult, bool) {
	e, ok := c.lru.Peek(cacheKey(inst, tf))
	return e.results, ok
}

// purge drops everything; used after the indicator set changes.
func (c *seriesCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Purge()
}

func (c *seriesCache) len() int { return c.lru.Len() }
