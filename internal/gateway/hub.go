// Package gateway pushes recomputed indicator series to websocket clients.
//
// Every series is delivered on its Redis PubSub channel name
// ("pub:ind:{indicator}:{tf}s:{exchange}:{token}") wrapped in an envelope
// carrying a per-channel sequence number, so clients can detect gaps and
// backfill them from the replay buffer.
package gateway

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ohlc-indicators/internal/model"
)

const (
	sendBuffer    = 256 // queued envelopes per client
	replayPerChan = 500 // envelopes kept per channel for backfill
)

// Hub manages websocket clients and fans out series updates.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	// Callbacks (optional, for metrics)
	OnClientsChange func(n int)
	OnDrop          func()
}

type latestEntry struct {
	Envelope []byte
	TS       time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
}

// Publish broadcasts each result on its PubSub channel.
func (h *Hub) Publish(results []model.SeriesResult) {
	for i := range results {
		h.Broadcast(results[i].PubSubChannel(), results[i].JSON())
	}
}

// Broadcast sends data on a channel to every client subscribed to it.
// The envelope is {"channel":...,"data":...,"ts":...,"seq":N,"channel_seq":M}.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.seq++
	seq := h.seq

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	h.latest[channel] = latestEntry{Envelope: buf, TS: now}

	rb, exists := h.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(replayPerChan)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()
	rb.Push(channelSeq, buf)

	// Fan out to subscribed clients
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// buildEnvelope hand-crafts the envelope JSON; data is already JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	quoted, _ := json.Marshal(channel)
	buf := make([]byte, 0, len(quoted)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = append(buf, quoted...)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// Register adds a websocket connection as a client and starts its pumps.
// Clients receive the latest envelope of every channel newer than since.
func (h *Hub) Register(conn *websocket.Conn, since time.Time) *Client {
	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client connected", slog.Int("clients", count))
	if h.OnClientsChange != nil {
		h.OnClientsChange(count)
	}

	client.sendInitialState(since)
	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClientsChange != nil {
		h.OnClientsChange(count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// ReplayOldest returns the oldest sequence number still buffered for a channel.
func (h *Hub) ReplayOldest(channel string) (int64, bool) {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return 0, false
	}
	return rb.Oldest()
}
