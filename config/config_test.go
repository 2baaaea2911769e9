package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ohlc-indicators/internal/model"
)

type testConfig struct {
	Redis    RedisConfig
	Postgres PostgresConfig
	TFs      string `envconfig:"ENABLED_TFS" default:"60,300"`
}

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "") // restores the original value on cleanup
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "REDIS_ADDR", "POSTGRES_PORT", "ENABLED_TFS")
	cfg, err := Load[testConfig]("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 5432, cfg.Postgres.Port)
	require.Equal(t, []int{60, 300}, ParseTFs(cfg.TFs))
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("POSTGRES_HOST=db.internal\nENABLED_TFS=900\n"), 0o644))
	unsetEnv(t, "POSTGRES_HOST")
	t.Setenv("ENABLED_TFS", "60")

	cfg, err := Load[testConfig]("", path)
	require.NoError(t, err)
	require.Equal(t, "db.internal", cfg.Postgres.Host)
	require.Equal(t, "60", cfg.TFs)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "h", Port: 5433, Database: "d", User: "u", Password: "p", PoolMax: 4}
	require.Equal(t, "postgres://u:p@h:5433/d?pool_max_conns=4", p.DSN())
}

func TestParseTFs_SkipsInvalid(t *testing.T) {
	require.Equal(t, []int{60, 900}, ParseTFs(" 60, abc,-5,,900"))
}

func TestParseInstruments(t *testing.T) {
	got, err := ParseInstruments("nse:2885, BSE:500325")
	require.NoError(t, err)
	require.Equal(t, []model.Instrument{
		{Exchange: "NSE", Token: "2885"},
		{Exchange: "BSE", Token: "500325"},
	}, got)

	_, err = ParseInstruments("NSE")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}
