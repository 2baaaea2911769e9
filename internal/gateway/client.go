package gateway

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ohlc-indicators/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client represents a single websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed channels; empty means every channel.
	subMu    sync.RWMutex
	channels map[string]bool
}

// SubscribeMsg selects channels, either by name or by instrument, TF and
// indicator names.
//
//	{"type":"SUBSCRIBE","channels":["pub:ind:rsi:60s:NSE:2885"]}
//	{"type":"SUBSCRIBE","exchange":"NSE","token":"2885","tf":60,"indicators":["rsi","zigzag"]}
type SubscribeMsg struct {
	Type       string   `json:"type"` // SUBSCRIBE or UNSUBSCRIBE
	Channels   []string `json:"channels,omitempty"`
	Exchange   string   `json:"exchange,omitempty"`
	Token      string   `json:"token,omitempty"`
	TF         int      `json:"tf,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
	Ping       int64    `json:"ping,omitempty"`
}

// channelNames expands the message into PubSub channel names.
func (m SubscribeMsg) channelNames() []string {
	names := append([]string(nil), m.Channels...)
	if m.Token == "" || m.TF <= 0 {
		return names
	}
	for _, ind := range m.Indicators {
		r := model.SeriesResult{Indicator: ind, TF: m.TF, Exchange: strings.ToUpper(m.Exchange), Token: m.Token}
		names = append(names, r.PubSubChannel())
	}
	return names
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		hub:      h,
		channels: make(map[string]bool),
	}
}

func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.channels) == 0 || c.channels[channel]
}

func (c *Client) subscribe(names []string) {
	c.subMu.Lock()
	for _, n := range names {
		c.channels[n] = true
	}
	c.subMu.Unlock()
}

func (c *Client) unsubscribe(names []string) {
	c.subMu.Lock()
	for _, n := range names {
		delete(c.channels, n)
	}
	c.subMu.Unlock()
}

// sendInitialState queues the latest envelope of every matching channel.
func (c *Client) sendInitialState(since time.Time) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, entry := range c.hub.latest {
		if !since.IsZero() && !entry.TS.After(since) {
			continue
		}
		if !c.matchesChannel(channel) {
			continue
		}
		select {
		case c.send <- entry.Envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg SubscribeMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.subscribe(msg.channelNames())
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.channelNames())
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}
