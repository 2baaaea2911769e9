package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlert() Alert {
	return Alert{
		Level:     AlertWarning,
		Kind:      "rsi_overbought",
		Title:     "RSI (14) above 70",
		Message:   "RSI 72.5",
		Exchange:  "NSE",
		Token:     "2885",
		TF:        60,
		Indicator: "rsi",
		X:         1_700_000_000_000,
		Y:         72.5,
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookNotifier(srv.URL).Send(context.Background(), sampleAlert()))
	assert.Equal(t, "rsi_overbought", got.Kind)
	assert.Equal(t, 72.5, got.Y)
	assert.False(t, got.TS.IsZero(), "timestamp filled in")
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), sampleAlert())
	assert.ErrorContains(t, err, "502")
}

func TestTelegramNotifier(t *testing.T) {
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), sampleAlert()))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "MarkdownV2", body["parse_mode"])
	text := body["text"].(string)
	assert.Contains(t, text, " *RSI \\(14\\) above 70*\n")
	assert.Contains(t, text, "NSE:2885 60s rsi")
	assert.Contains(t, text, "RSI 72\\.5")
}

type failingNotifier struct{ err error }

func (f failingNotifier) Send(context.Context, Alert) error { return f.err }

type countingNotifier struct{ n int }

func (c *countingNotifier) Send(context.Context, Alert) error {
	c.n++
	return nil
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	counter := &countingNotifier{}
	m := Multi{failingNotifier{boom}, counter, NewLogNotifier()}

	err := m.Send(context.Background(), sampleAlert())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, counter.n, "later backends still receive the alert")

	assert.NoError(t, Multi{counter}.Send(context.Background(), sampleAlert()))
}
