// cmd/indcalc computes one indicator offline, from a CSV file or from the
// candles stored in SQLite, and prints the series as JSON.
//
// Usage:
//
//	indcalc -csv bars.csv -indicator rsi -param period=14
//	indcalc -db data/candles.db -instrument NSE:2885 -tf 60 -indicator zigzag -param deviation=0.5
//	indcalc -csv bars.csv -import -db data/candles.db -instrument NSE:2885 -tf 60
//	indcalc -csv bars.csv -tf 60 -resample 900 -indicator rsi
//
// CSV rows are ts,open,high,low,close[,volume]; ts is unix seconds, unix
// milliseconds or RFC 3339.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"ohlc-indicators/config"
	"ohlc-indicators/internal/indicator"
	"ohlc-indicators/internal/logger"
	"ohlc-indicators/internal/model"
	"ohlc-indicators/internal/resample"
	sqlitestore "ohlc-indicators/internal/store/sqlite"
)

// paramFlags collects repeated -param name=value flags.
type paramFlags indicator.Params

func (p paramFlags) String() string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (p paramFlags) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("param %s: %w", name, err)
	}
	p[name] = v
	return nil
}

type options struct {
	csvPath    string
	encoding   string
	dbPath     string
	instrument string
	tf         int
	limit      int
	resample   int
	name       string
	params     paramFlags
	doImport   bool
	pretty     bool
}

func main() {
	opts := options{params: paramFlags{}}
	flag.StringVar(&opts.csvPath, "csv", "", "CSV file of ts,open,high,low,close[,volume] rows (- for stdin)")
	flag.StringVar(&opts.encoding, "encoding", "utf-8", "CSV charset: utf-8, utf-16, latin1, windows-1252")
	flag.StringVar(&opts.dbPath, "db", "data/candles.db", "Path to SQLite database")
	flag.StringVar(&opts.instrument, "instrument", "", "exchange:token for -db reads and -import")
	flag.IntVar(&opts.tf, "tf", 60, "Timeframe in seconds for -db reads and -import")
	flag.IntVar(&opts.limit, "limit", 500, "Latest candles to read from -db")
	flag.IntVar(&opts.resample, "resample", 0, "Roll input up to this timeframe in seconds before computing (multiple of -tf)")
	flag.StringVar(&opts.name, "indicator", "rsi", "Indicator name")
	flag.Var(opts.params, "param", "Indicator param name=value (repeatable)")
	flag.BoolVar(&opts.doImport, "import", false, "Load -csv into the -db candles_tf table instead of computing")
	flag.BoolVar(&opts.pretty, "pretty", false, "Indent JSON output")
	level := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	lvl, err := config.ParseLevel(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "indcalc: %v\n", err)
		os.Exit(2)
	}
	logger.InitWithOptions("indcalc", logger.Options{Level: lvl, Stdout: os.Stderr})

	if err := run(context.Background(), opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "indcalc: %v\n", err)
		os.Exit(1)
	}
}

// output is the JSON document written to stdout.
type output struct {
	Indicator string           `json:"indicator"`
	Label     string           `json:"label"`
	Params    indicator.Params `json:"params"`
	Status    string           `json:"status"`
	Rows      int              `json:"rows"`
	Series    model.Series     `json:"series"`
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	p := message.NewPrinter(language.English)

	if opts.doImport {
		n, err := importCSV(ctx, opts)
		if err != nil {
			return err
		}
		p.Fprintf(stderr, "imported %d candles into %s\n", n, opts.dbPath)
		return nil
	}

	in, err := loadInput(ctx, opts)
	if err != nil {
		return err
	}

	reg := indicator.DefaultRegistry()
	cfg := indicator.IndicatorConfig{Type: strings.ToLower(opts.name), Params: indicator.Params(opts.params)}
	if err := indicator.ValidateConfigs(reg, []indicator.IndicatorConfig{cfg}); err != nil {
		return err
	}
	ind, merged, err := reg.Resolve(cfg.Type, cfg.Params)
	if err != nil {
		return err
	}

	start := time.Now()
	s, ok := ind.Compute(in, merged)
	elapsed := time.Since(start)
	if !ok {
		s = model.NewSeries(0)
	}

	enc := json.NewEncoder(stdout)
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(output{
		Indicator: cfg.Type,
		Label:     ind.Label(merged),
		Params:    merged,
		Status:    model.SeriesStatus(s, ok),
		Rows:      in.Len(),
		Series:    s,
	}); err != nil {
		return err
	}

	p.Fprintf(stderr, "%s: %s, %d points from %d rows in %v\n",
		ind.Label(merged), model.SeriesStatus(s, ok), s.Len(), in.Len(), elapsed.Round(time.Microsecond))
	return nil
}

// loadInput reads the input rows from -csv or, without it, from -db.
func loadInput(ctx context.Context, opts options) (indicator.Input, error) {
	if opts.csvPath != "" {
		bars, err := readCSVFile(opts)
		if err != nil {
			return indicator.Input{}, err
		}
		if opts.resample <= 0 {
			return toInput(bars), nil
		}
		return resampled(toCandles(bars, model.Instrument{}, opts.tf), opts.resample)
	}

	inst, err := model.ParseInstrument(opts.instrument)
	if err != nil {
		return indicator.Input{}, fmt.Errorf("-instrument: %w", err)
	}
	reader, err := sqlitestore.NewReader(opts.dbPath)
	if err != nil {
		return indicator.Input{}, err
	}
	defer reader.Close()

	candles, err := reader.ReadLastTFCandles(ctx, inst.Exchange, inst.Token, opts.tf, opts.limit)
	if err != nil {
		return indicator.Input{}, err
	}
	slog.Info("candles loaded", slog.String("instrument", inst.Key()), slog.Int("tf", opts.tf), slog.Int("candles", len(candles)))
	if opts.resample > 0 {
		return resampled(candles, opts.resample)
	}
	return indicator.FromCandles(candles), nil
}

func resampled(candles []model.TFCandle, tf int) (indicator.Input, error) {
	out, err := resample.Candles(candles, tf)
	if err != nil {
		return indicator.Input{}, fmt.Errorf("-resample: %w", err)
	}
	slog.Info("candles resampled", slog.Int("tf", tf), slog.Int("in", len(candles)), slog.Int("out", len(out)))
	return indicator.FromCandles(out), nil
}

func readCSVFile(opts options) ([]bar, error) {
	enc, err := decoderFor(opts.encoding)
	if err != nil {
		return nil, err
	}
	var r io.Reader = os.Stdin
	if opts.csvPath != "-" {
		f, err := os.Open(opts.csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return readBars(r, enc)
}

func importCSV(ctx context.Context, opts options) (int, error) {
	if opts.csvPath == "" {
		return 0, errors.New("-import needs -csv")
	}
	inst, err := model.ParseInstrument(opts.instrument)
	if err != nil {
		return 0, fmt.Errorf("-instrument: %w", err)
	}
	if opts.tf <= 0 {
		return 0, fmt.Errorf("-tf must be positive, got %d", opts.tf)
	}
	bars, err := readCSVFile(opts)
	if err != nil {
		return 0, err
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: opts.dbPath})
	if err != nil {
		return 0, err
	}
	defer w.Close()
	if err := w.InsertTFCandles(ctx, toCandles(bars, inst, opts.tf)); err != nil {
		return 0, err
	}
	return len(bars), nil
}
