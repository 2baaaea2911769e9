package indengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlc-indicators/internal/model"
)

func TestFingerprint(t *testing.T) {
	candles := makeCandles(1000, 1100, 1200)
	fp := fingerprintOf(candles)
	assert.Equal(t, fp, fingerprintOf(makeCandles(1000, 1100, 1200)))

	formed := makeCandles(1000, 1100, 1250)
	assert.NotEqual(t, fp, fingerprintOf(formed), "last close changed")

	slid := makeCandles(1000, 1100, 1200)
	for i := range slid {
		slid[i].TS = slid[i].TS.Add(time.Minute)
	}
	assert.NotEqual(t, fp, fingerprintOf(slid), "window moved")

	assert.Equal(t, fingerprint{}, fingerprintOf(nil))
}

func TestSeriesCache(t *testing.T) {
	c, err := newSeriesCache(2)
	require.NoError(t, err)

	inst := model.Instrument{Exchange: "NSE", Token: "2885"}
	fp := fingerprintOf(makeCandles(1000, 1100))
	results := []model.SeriesResult{{Indicator: "rsi"}}
	require.True(t, c.store(inst, 60, fp, c.generation(), results))

	got, ok := c.lookup(inst, 60, fp)
	require.True(t, ok)
	assert.Equal(t, results, got)

	_, ok = c.lookup(inst, 60, fingerprintOf(makeCandles(1000, 1200)))
	assert.False(t, ok, "fingerprint mismatch")
	_, ok = c.lookup(inst, 300, fp)
	assert.False(t, ok, "other tf")

	got, ok = c.latest(inst, 60)
	require.True(t, ok)
	assert.Equal(t, results, got)

	c.purge()
	assert.Equal(t, 0, c.len())
}

func TestSeriesCache_Evicts(t *testing.T) {
	c, err := newSeriesCache(2)
	require.NoError(t, err)

	for _, tok := range []string{"1", "2", "3"} {
		c.store(model.Instrument{Exchange: "NSE", Token: tok}, 60, fingerprint{}, 0, nil)
	}
	assert.Equal(t, 2, c.len())
	_, ok := c.latest(model.Instrument{Exchange: "NSE", Token: "1"}, 60)
	assert.False(t, ok)
}

func TestSeriesCache_StaleGenerationNotStored(t *testing.T) {
	c, err := newSeriesCache(4)
	require.NoError(t, err)

	inst := model.Instrument{Exchange: "NSE", Token: "2885"}
	fp := fingerprintOf(makeCandles(1000, 1100))
	gen := c.generation()

	c.purge()
	assert.False(t, c.store(inst, 60, fp, gen, []model.SeriesResult{{Indicator: "rsi"}}))
	_, ok := c.lookup(inst, 60, fp)
	assert.False(t, ok)

	assert.True(t, c.store(inst, 60, fp, c.generation(), nil))
}
