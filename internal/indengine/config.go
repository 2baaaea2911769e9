package indengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"ohlc-indicators/config"
	"ohlc-indicators/internal/indicator"
	"ohlc-indicators/internal/markethours"
	"ohlc-indicators/internal/model"
	"ohlc-indicators/internal/notification"
)

// Candle sources.
const (
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Config holds all env-parsed configuration for the indicator engine service.
type Config struct {
	Redis    config.RedisConfig
	Postgres config.PostgresConfig
	Log      config.LogConfig

	CandleSource     string `envconfig:"CANDLE_SOURCE" default:"sqlite"`
	PostgresExchange string `envconfig:"POSTGRES_EXCHANGE" default:"NSE"` // bars_Nm tables carry no exchange
	SQLitePath       string `envconfig:"SQLITE_PATH" default:"data/candles.db"`
	SeriesDBPath     string `envconfig:"SERIES_DB_PATH"` // empty: same file as SQLITE_PATH

	EnabledTFs        string        `envconfig:"ENABLED_TFS" default:"60,300"`
	SubscribeTokens   string        `envconfig:"SUBSCRIBE_TOKENS"` // "NSE:2885,NSE:1594"; empty: every stored instrument
	RecomputeInterval time.Duration `envconfig:"RECOMPUTE_INTERVAL" default:"15s"`
	LookbackCandles   int           `envconfig:"LOOKBACK_CANDLES" default:"500"`
	Workers           int           `envconfig:"WORKERS" default:"4"`
	CacheSize         int           `envconfig:"CACHE_SIZE" default:"4096"`
	SeriesTTL         time.Duration `envconfig:"SERIES_TTL" default:"30m"`

	IndicatorConfigs    string `envconfig:"INDICATOR_CONFIGS"`     // "rsi:period=14,zigzag:deviation=1"
	IndicatorConfigFile string `envconfig:"INDICATOR_CONFIG_FILE"` // YAML; wins over INDICATOR_CONFIGS

	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":9095"`
	MetricsAddr string `envconfig:"METRICS_ADDR"` // optional separate /metrics + /healthz listener

	RecomputeSession string `envconfig:"RECOMPUTE_SESSION"` // empty: always; "nse": NSE hours only
	SessionHolidays  string `envconfig:"SESSION_HOLIDAYS"`  // "2026-01-26,2026-03-14"

	AlertWebhookURL    string  `envconfig:"ALERT_WEBHOOK_URL"`
	AlertTelegramToken string  `envconfig:"ALERT_TELEGRAM_TOKEN"`
	AlertTelegramChat  string  `envconfig:"ALERT_TELEGRAM_CHAT"`
	AlertLog           bool    `envconfig:"ALERT_LOG"`
	AlertRSIHigh       float64 `envconfig:"ALERT_RSI_HIGH" default:"70"`
	AlertRSILow        float64 `envconfig:"ALERT_RSI_LOW" default:"30"`
}

// LoadConfig reads .env and the environment. Variables may carry an
// INDENGINE_ prefix.
func LoadConfig() (Config, error) {
	cfg, err := config.Load[Config]("indengine")
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.CandleSource {
	case SourceSQLite, SourcePostgres:
	default:
		return fmt.Errorf("config: CANDLE_SOURCE must be %q or %q, got %q", SourceSQLite, SourcePostgres, c.CandleSource)
	}
	if len(c.TFs()) == 0 {
		return fmt.Errorf("config: ENABLED_TFS has no valid timeframe: %q", c.EnabledTFs)
	}
	if c.LookbackCandles <= 0 {
		return fmt.Errorf("config: LOOKBACK_CANDLES must be positive, got %d", c.LookbackCandles)
	}
	if c.RecomputeInterval <= 0 {
		return fmt.Errorf("config: RECOMPUTE_INTERVAL must be positive, got %s", c.RecomputeInterval)
	}
	if c.notifier() != nil && c.AlertRSILow >= c.AlertRSIHigh {
		return fmt.Errorf("config: ALERT_RSI_LOW (%g) must be below ALERT_RSI_HIGH (%g)", c.AlertRSILow, c.AlertRSIHigh)
	}
	_, err := c.session()
	return err
}

// session returns the trading session gating recomputation; nil means
// recompute on every tick.
func (c Config) session() (*markethours.Session, error) {
	switch strings.ToLower(c.RecomputeSession) {
	case "", "always":
		return nil, nil
	case "nse":
		return markethours.NSE(strings.Split(c.SessionHolidays, ",")...)
	default:
		return nil, fmt.Errorf("config: unknown RECOMPUTE_SESSION %q", c.RecomputeSession)
	}
}

// notifier builds the alert backends; nil when none is configured.
func (c Config) notifier() notification.Notifier {
	var m notification.Multi
	if c.AlertLog {
		m = append(m, notification.NewLogNotifier())
	}
	if c.AlertWebhookURL != "" {
		m = append(m, notification.NewWebhookNotifier(c.AlertWebhookURL))
	}
	if c.AlertTelegramToken != "" && c.AlertTelegramChat != "" {
		m = append(m, notification.NewTelegramNotifier(c.AlertTelegramToken, c.AlertTelegramChat))
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// TFs returns the enabled timeframes in seconds.
func (c Config) TFs() []int { return config.ParseTFs(c.EnabledTFs) }

// Instruments returns the configured instruments; nil means discover them
// from the candle source.
func (c Config) Instruments() ([]model.Instrument, error) {
	return config.ParseInstruments(c.SubscribeTokens)
}

// seriesDB returns the sqlite file that persists computed series.
func (c Config) seriesDB() string {
	if c.SeriesDBPath != "" {
		return c.SeriesDBPath
	}
	return c.SQLitePath
}

// IndicatorSpecs returns the startup indicator set, from the YAML file
// when one is configured.
func (c Config) IndicatorSpecs() ([]indicator.IndicatorConfig, error) {
	if c.IndicatorConfigFile != "" {
		return LoadIndicatorFile(c.IndicatorConfigFile)
	}
	return ParseIndicatorSpecs(c.IndicatorConfigs)
}

// DefaultIndicatorConfigs is used when nothing is configured.
func DefaultIndicatorConfigs() []indicator.IndicatorConfig {
	return []indicator.IndicatorConfig{
		{Type: "rsi", Params: indicator.Params{}},
		{Type: "zigzag", Params: indicator.Params{}},
	}
}

// ParseIndicatorSpecs parses "TYPE[:name=value...],..." into configs.
// Example: "rsi:period=14:decimals=4,rsi:period=21,zigzag:deviation=1".
// Returns the defaults if s is empty. Values are checked later by
// indicator.ValidateConfigs; only the syntax is checked here.
func ParseIndicatorSpecs(s string) ([]indicator.IndicatorConfig, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultIndicatorConfigs(), nil
	}

	var configs []indicator.IndicatorConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.Split(part, ":")
		cfg := indicator.IndicatorConfig{
			Type:   strings.ToLower(strings.TrimSpace(tokens[0])),
			Params: indicator.Params{},
		}
		if cfg.Type == "" {
			return nil, fmt.Errorf("indicator spec %q: missing type", part)
		}
		for _, kv := range tokens[1:] {
			name, raw, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, fmt.Errorf("indicator spec %q: want name=value, got %q", part, kv)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("indicator spec %q: param %s: %w", part, name, err)
			}
			cfg.Params[strings.TrimSpace(name)] = v
		}
		configs = append(configs, cfg)
	}
	if len(configs) == 0 {
		slog.Warn("no indicator specs parsed, using defaults", slog.String("input", s))
		return DefaultIndicatorConfigs(), nil
	}
	return configs, nil
}

// indicatorFile is the YAML layout of INDICATOR_CONFIG_FILE:
//
//	indicators:
//	  - type: rsi
//	    params: {period: 14, decimals: 4}
//	  - type: zigzag
//	    params: {deviation: 1}
type indicatorFile struct {
	Indicators []indicator.IndicatorConfig `yaml:"indicators"`
}

// LoadIndicatorFile reads indicator configs from a YAML file.
func LoadIndicatorFile(path string) ([]indicator.IndicatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read indicator file: %w", err)
	}
	var f indicatorFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse indicator file %s: %w", path, err)
	}
	for i := range f.Indicators {
		f.Indicators[i].Type = strings.ToLower(f.Indicators[i].Type)
	}
	return f.Indicators, nil
}

// decodeSpecs accepts either a JSON array of configs or the
// INDICATOR_CONFIGS string form, as published on the config channel.
func decodeSpecs(payload []byte) ([]indicator.IndicatorConfig, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '[' {
		var configs []indicator.IndicatorConfig
		if err := json.Unmarshal(payload, &configs); err != nil {
			return nil, fmt.Errorf("decode config payload: %w", err)
		}
		return configs, nil
	}
	return ParseIndicatorSpecs(string(payload))
}
