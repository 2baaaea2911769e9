// Package config loads service configuration from environment variables.
// A .env file in the working directory is read first when present; values
// already set in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"ohlc-indicators/internal/model"
)

// RedisConfig holds the Redis connection details.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
}

// PostgresConfig holds DB connection details for the postgres candle source.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	Database string `envconfig:"POSTGRES_DB" default:"trading"`
	User     string `envconfig:"POSTGRES_USER" default:"trader"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"trader"`
	PoolMax  int    `envconfig:"PG_POOL_MAX" default:"8"`
}

// DSN returns a pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?pool_max_conns=%d",
		p.User, p.Password, p.Host, p.Port, p.Database, p.PoolMax)
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE"` // empty: stdout only
}

// Load reads an optional .env file and fills T from the environment.
func Load[T any](prefix string, dotenv ...string) (T, error) {
	var cfg T
	if err := LoadDotEnv(dotenv...); err != nil {
		return cfg, err
	}
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads the given env files (".env" when none are given).
// Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// ParseTFs parses a comma-separated list of timeframe durations in seconds,
// e.g. "60,300,900". Invalid entries are skipped.
func ParseTFs(s string) []int {
	parts := strings.Split(s, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			slog.Warn("skipping invalid TF value", slog.String("value", p))
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

// ParseInstruments parses "exchange:token,..." into instruments.
func ParseInstruments(s string) ([]model.Instrument, error) {
	var out []model.Instrument
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		inst, err := model.ParseInstrument(part)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}
