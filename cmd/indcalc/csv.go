package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"ohlc-indicators/internal/indicator"
	"ohlc-indicators/internal/model"
)

// bar is one CSV row: ts,open,high,low,close[,volume].
type bar struct {
	TS                     time.Time
	Open, High, Low, Close float64
	Volume                 int64
}

// decoderFor returns the charset decoder for -encoding.
func decoderFor(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// readBars parses OHLC bars from r. A header row is skipped when its first
// field is not a timestamp. Rows must be in increasing time order.
func readBars(r io.Reader, enc encoding.Encoding) ([]bar, error) {
	cr := csv.NewReader(transform.NewReader(r, enc.NewDecoder()))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var bars []bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("csv line %d: want ts,open,high,low,close, got %d fields", line, len(rec))
		}

		ts, err := parseTS(rec[0])
		if err != nil {
			if line == 1 && len(bars) == 0 {
				continue // header
			}
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		b := bar{TS: ts}
		for i, dst := range []*float64{&b.Open, &b.High, &b.Low, &b.Close} {
			if *dst, err = strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64); err != nil {
				return nil, fmt.Errorf("csv line %d field %d: %w", line, i+2, err)
			}
		}
		if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
			if b.Volume, err = strconv.ParseInt(strings.TrimSpace(rec[5]), 10, 64); err != nil {
				return nil, fmt.Errorf("csv line %d volume: %w", line, err)
			}
		}
		if n := len(bars); n > 0 && !b.TS.After(bars[n-1].TS) {
			return nil, fmt.Errorf("csv line %d: timestamp %s is not after %s", line, b.TS, bars[n-1].TS)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// parseTS accepts unix seconds, unix milliseconds or RFC 3339.
func parseTS(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: want unix seconds, unix ms or RFC 3339", s)
	}
	return t.UTC(), nil
}

// toInput converts bars to an indicator input with X in unix milliseconds.
func toInput(bars []bar) indicator.Input {
	in := indicator.Input{X: make([]int64, len(bars)), Y: make([][]float64, len(bars))}
	for i, b := range bars {
		in.X[i] = b.TS.UnixMilli()
		in.Y[i] = []float64{b.Open, b.High, b.Low, b.Close}
	}
	return in
}

// toCandles converts bars to stored candles for one instrument + TF.
func toCandles(bars []bar, inst model.Instrument, tf int) []model.TFCandle {
	out := make([]model.TFCandle, len(bars))
	for i, b := range bars {
		out[i] = model.TFCandle{
			Token:    inst.Token,
			Exchange: inst.Exchange,
			TF:       tf,
			TS:       b.TS,
			Open:     model.Paise(b.Open),
			High:     model.Paise(b.High),
			Low:      model.Paise(b.Low),
			Close:    model.Paise(b.Close),
			Volume:   b.Volume,
			Count:    1,
		}
	}
	return out
}
