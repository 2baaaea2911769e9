package indengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlc-indicators/internal/indicator"
)

func TestParseIndicatorSpecs(t *testing.T) {
	got, err := ParseIndicatorSpecs("RSI:period=14:decimals=2, rsi:period=21 ,zigzag:deviation=2.5")
	require.NoError(t, err)
	assert.Equal(t, []indicator.IndicatorConfig{
		{Type: "rsi", Params: indicator.Params{"period": 14, "decimals": 2}},
		{Type: "rsi", Params: indicator.Params{"period": 21}},
		{Type: "zigzag", Params: indicator.Params{"deviation": 2.5}},
	}, got)
}

func TestParseIndicatorSpecs_Defaults(t *testing.T) {
	for _, in := range []string{"", "  ", ",,"} {
		got, err := ParseIndicatorSpecs(in)
		require.NoError(t, err, in)
		assert.Equal(t, DefaultIndicatorConfigs(), got, in)
	}
}

func TestParseIndicatorSpecs_Errors(t *testing.T) {
	for _, in := range []string{
		"rsi:period",
		"rsi:period=abc",
		":period=14",
	} {
		_, err := ParseIndicatorSpecs(in)
		assert.Error(t, err, in)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadIndicatorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	writeFile(t, path, `
indicators:
  - type: RSI
    params: {period: 21}
  - type: zigzag
    params:
      deviation: 0.5
`)

	got, err := LoadIndicatorFile(path)
	require.NoError(t, err)
	assert.Equal(t, []indicator.IndicatorConfig{
		{Type: "rsi", Params: indicator.Params{"period": 21}},
		{Type: "zigzag", Params: indicator.Params{"deviation": 0.5}},
	}, got)
}

func TestLoadIndicatorFile_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	writeFile(t, path, "indicator:\n  - type: rsi\n")

	_, err := LoadIndicatorFile(path)
	assert.Error(t, err)
}

func TestDecodeSpecs(t *testing.T) {
	got, err := decodeSpecs([]byte(` [{"type":"rsi","params":{"period":9}}]`))
	require.NoError(t, err)
	assert.Equal(t, []indicator.IndicatorConfig{{Type: "rsi", Params: indicator.Params{"period": 9}}}, got)

	got, err = decodeSpecs([]byte("zigzag:deviation=3"))
	require.NoError(t, err)
	assert.Equal(t, []indicator.IndicatorConfig{{Type: "zigzag", Params: indicator.Params{"deviation": 3}}}, got)

	_, err = decodeSpecs([]byte("[{"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	base := Config{
		CandleSource:      SourceSQLite,
		EnabledTFs:        "60,300",
		LookbackCandles:   500,
		RecomputeInterval: time.Second,
	}
	require.NoError(t, base.validate())
	assert.Equal(t, []int{60, 300}, base.TFs())

	bad := base
	bad.CandleSource = "mysql"
	assert.Error(t, bad.validate())

	bad = base
	bad.EnabledTFs = "x,-1"
	assert.Error(t, bad.validate())

	bad = base
	bad.LookbackCandles = 0
	assert.Error(t, bad.validate())
}

func TestConfig_SeriesDB(t *testing.T) {
	c := Config{SQLitePath: "data/candles.db"}
	assert.Equal(t, "data/candles.db", c.seriesDB())
	c.SeriesDBPath = "data/series.db"
	assert.Equal(t, "data/series.db", c.seriesDB())
}

func TestConfig_IndicatorSpecsPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	writeFile(t, path, "indicators:\n  - type: zigzag\n")

	c := Config{IndicatorConfigs: "rsi:period=9", IndicatorConfigFile: path}
	got, err := c.IndicatorSpecs()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "zigzag", got[0].Type)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("ENABLED_TFS", "120")
	t.Setenv("SUBSCRIBE_TOKENS", "nse:2885")
	t.Setenv("RECOMPUTE_INTERVAL", "2s")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []int{120}, cfg.TFs())
	assert.Equal(t, 2*time.Second, cfg.RecomputeInterval)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, SourceSQLite, cfg.CandleSource)

	insts, err := cfg.Instruments()
	require.NoError(t, err)
	require.Len(t, insts, 1)
	assert.Equal(t, "NSE:2885", insts[0].Key())
}

func TestLoadConfig_RejectsSource(t *testing.T) {
	t.Setenv("CANDLE_SOURCE", "mysql")
	_, err := LoadConfig()
	assert.Error(t, err)
}
