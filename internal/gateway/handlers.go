package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// WSHandler upgrades /ws requests. An optional since query parameter
// (RFC 3339) limits the initial state to newer envelopes.
func WSHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since time.Time
		if s := r.URL.Query().Get("since"); s != "" {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				http.Error(w, "since: want RFC 3339 time", http.StatusBadRequest)
				return
			}
			since = t
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws upgrade failed", slog.Any("error", err))
			return
		}
		hub.Register(conn, since)
	}
}

// MissedHandler serves GET /v1/missed?channel=&from=&to= for gap backfill.
// The response is a JSON array of envelopes; to defaults to the current seq.
// 410 Gone means from is older than anything still buffered.
func MissedHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		from, err := strconv.ParseInt(q.Get("from"), 10, 64)
		if channel == "" || err != nil {
			http.Error(w, "channel and from are required", http.StatusBadRequest)
			return
		}
		to := hub.ChannelSeq(channel)
		if s := q.Get("to"); s != "" {
			if to, err = strconv.ParseInt(s, 10, 64); err != nil {
				http.Error(w, "to: "+err.Error(), http.StatusBadRequest)
				return
			}
		}

		// The gap reaches past the buffer; the client must refetch the series.
		if oldest, ok := hub.ReplayOldest(channel); ok && from < oldest {
			http.Error(w, "requested range is no longer buffered", http.StatusGone)
			return
		}

		envelopes := hub.ReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			out[i] = e
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
