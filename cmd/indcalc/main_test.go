package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"ohlc-indicators/internal/model"
)

const sampleCSV = `ts,open,high,low,close,volume
1700000000,10,10,10,10,100
1700000060,11,11,11,11,100
1700000120,12,12,12,12,100
1700000180,11,11,11,11,100
1700000240,13,13,13,13,100
1700000300,12,12,12,12,100
1700000360,14,14,14,14,100
1700000420,13,13,13,13,100
1700000480,15,15,15,15,100
`

func TestReadBars(t *testing.T) {
	enc, err := decoderFor("utf-8")
	require.NoError(t, err)

	bars, err := readBars(strings.NewReader("\ufeff"+sampleCSV), enc)
	require.NoError(t, err)
	require.Len(t, bars, 9)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), bars[0].TS)
	assert.Equal(t, 15.0, bars[8].Close)
	assert.Equal(t, int64(100), bars[8].Volume)

	in := toInput(bars)
	assert.Equal(t, int64(1700000000000), in.X[0])
	assert.Equal(t, []float64{15, 15, 15, 15}, in.Y[8])
}

func TestReadBars_TimestampForms(t *testing.T) {
	enc, _ := decoderFor("")
	bars, err := readBars(strings.NewReader(
		"1700000000000,1,2,0.5,1.5\n2023-11-14T22:14:20Z,1,2,0.5,1.5\n"), enc)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(1700000000000), bars[0].TS.UnixMilli())
	assert.Equal(t, int64(1700000060000), bars[1].TS.UnixMilli())
}

func TestReadBars_Latin1(t *testing.T) {
	raw, err := charmap.ISO8859_1.NewEncoder().String("# prix: £ é\n1700000000,1,2,0.5,1.5\n")
	require.NoError(t, err)

	enc, err := decoderFor("latin1")
	require.NoError(t, err)
	bars, err := readBars(strings.NewReader(raw), enc)
	require.NoError(t, err)
	assert.Len(t, bars, 1)
}

func TestReadBars_Errors(t *testing.T) {
	enc, _ := decoderFor("utf-8")
	for name, in := range map[string]string{
		"short row":      "1700000000,1,2,0.5\n",
		"bad price":      "1700000000,1,x,0.5,1\n",
		"bad timestamp":  "1700000000,1,2,0.5,1\nyesterday,1,2,0.5,1\n",
		"not increasing": "1700000060,1,2,0.5,1\n1700000000,1,2,0.5,1\n",
	} {
		_, err := readBars(strings.NewReader(in), enc)
		assert.Error(t, err, name)
	}

	_, err := decoderFor("ebcdic")
	assert.Error(t, err)
}

func TestParamFlags(t *testing.T) {
	p := paramFlags{}
	require.NoError(t, p.Set("period=21"))
	require.NoError(t, p.Set("decimals=2"))
	assert.Equal(t, "decimals=2,period=21", p.String())
	assert.Error(t, p.Set("period"))
	assert.Error(t, p.Set("period=x"))
}

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	return path
}

func TestRun_CSV(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), options{
		csvPath: writeCSV(t),
		name:    "RSI",
		params:  paramFlags{"period": 3},
	}, &stdout, &stderr)
	require.NoError(t, err)

	var got output
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "rsi", got.Indicator)
	assert.Equal(t, "RSI (3)", got.Label)
	assert.Equal(t, model.StatusOK, got.Status)
	assert.Equal(t, 9, got.Rows)
	require.Len(t, got.Series.YData, 6)
	assert.InDelta(t, 83.3346, got.Series.YData[1], 1e-9)
	assert.Contains(t, stderr.String(), "6 points from 9 rows")
}

func TestRun_InvalidParam(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), options{
		csvPath: writeCSV(t),
		name:    "zigzag",
		params:  paramFlags{"deviation": -1},
	}, &stdout, &stderr)
	assert.Error(t, err)
	assert.Empty(t, stdout.String())
}

func TestRun_ImportThenReadFromDB(t *testing.T) {
	db := filepath.Join(t.TempDir(), "candles.db")
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), options{
		csvPath:    writeCSV(t),
		doImport:   true,
		dbPath:     db,
		instrument: "nse:2885",
		tf:         60,
	}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "imported 9 candles")

	stdout.Reset()
	err = run(context.Background(), options{
		dbPath:     db,
		instrument: "NSE:2885",
		tf:         60,
		limit:      500,
		name:       "rsi",
		params:     paramFlags{"period": 3},
	}, &stdout, &stderr)
	require.NoError(t, err)

	var got output
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, 9, got.Rows)
	assert.InDelta(t, 83.3346, got.Series.YData[1], 1e-9)
}

func TestRun_Resample(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), options{
		csvPath:  writeCSV(t),
		tf:       60,
		resample: 120,
		name:     "rsi",
		params:   paramFlags{"period": 3},
	}, &stdout, &stderr)
	require.NoError(t, err)

	// 1700000000 is 80s into its 120s bucket, so the first bar stands alone.
	var got output
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, 5, got.Rows)
	assert.Len(t, got.Series.YData, 2)

	stdout.Reset()
	err = run(context.Background(), options{
		csvPath:  writeCSV(t),
		tf:       60,
		resample: 90,
		name:     "rsi",
	}, &stdout, &stderr)
	assert.ErrorContains(t, err, "-resample")
}
