package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"chanstruct/internal/markethours"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// ActiveConfig holds the current indicator display configuration.
type ActiveConfig struct {
	Entries []IndicatorEntry `json:"entries"`
}

// IndicatorEntry represents a single indicator in the active config.
type IndicatorEntry struct {
	Name  string `json:"name"`
	TF    int    `json:"tf"`
	Color string `json:"color,omitempty"`
}

// Hub manages WebSocket clients and Redis PubSub fan-out.
type Hub struct {
	Rdb        *goredis.Client
	TFs        []int
	Tokens     []string
	Indicators []string

	// Latency tracks end-to-end publish-to-broadcast latency, populated by
	// Broadcaster when set. Nil disables tracking.
	Latency *LatencyTracker

	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	activeConfig ActiveConfig
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a new Hub for managing WS clients and PubSub.
func NewHub(rdb *goredis.Client, tfs []int, tokens, indicators []string) *Hub {
	// Build default entries: each indicator for each TF
	var defaultEntries []IndicatorEntry
	for _, tf := range tfs {
		for _, ind := range indicators {
			defaultEntries = append(defaultEntries, IndicatorEntry{Name: ind, TF: tf})
		}
	}
	return &Hub{
		Rdb:         rdb,
		TFs:         tfs,
		Tokens:      tokens,
		Indicators:  indicators,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		activeConfig: ActiveConfig{
			Entries: defaultEntries,
		},
	}
}

// GetReplayRange returns buffered envelopes for a channel with seq in
// [fromSeq, toSeq], used to backfill gaps after a client reconnects.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replayBufs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// GetChannelSeq returns the current per-channel sequence number.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// GetActiveConfig returns the current indicator display config.
func (h *Hub) GetActiveConfig() ActiveConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeConfig
}

// SetActiveConfig updates the active config and broadcasts to all clients.
func (h *Hub) SetActiveConfig(cfg ActiveConfig) {
	h.mu.Lock()
	h.activeConfig = cfg
	h.mu.Unlock()

	envelope, _ := json.Marshal(map[string]interface{}{
		"type":    "config_update",
		"entries": cfg.Entries,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
		}
	}
}

func (h *Hub) buildChannels() []string {
	var channels []string
	for _, ind := range h.Indicators {
		for _, tf := range h.TFs {
			for _, tok := range h.Tokens {
				ch := fmt.Sprintf("pub:ind:%s:%ds:%s", ind, tf, tok)
				channels = append(channels, ch)
			}
		}
	}
	for _, tf := range h.TFs {
		for _, tok := range h.Tokens {
			ch := fmt.Sprintf("pub:candle:%ds:%s", tf, tok)
			channels = append(channels, ch)
		}
	}
	for _, tok := range h.Tokens {
		ch := fmt.Sprintf("pub:candle:1s:%s", tok)
		channels = append(channels, ch)
	}
	for _, kind := range []string{"fractal", "pen", "segment"} {
		for _, tf := range h.TFs {
			for _, tok := range h.Tokens {
				ch := fmt.Sprintf("pub:struct:%s:%ds:%s", kind, tf, tok)
				channels = append(channels, ch)
			}
		}
	}
	return channels
}

// HandleWSRequest handles WebSocket upgrade from standard http types.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]*ClientSubscription),
		filters: ClientFilters{
			TFs:    h.TFs,
			Tokens: h.Tokens,
		},
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	log.Printf("[api_gateway] ws client connected (%d total)", len(h.clients))

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// GetLatestAll returns snapshot of all latest channel data.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartMetricsBroadcast sends system metrics to all WS clients every 2s.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			m := CollectMetrics(start)
			if v, ok := ReadIndicatorLatency(ctx, h.Rdb); ok {
				m.IndicatorMs = v
			}
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":         "metrics",
				"metrics":      m,
				"marketOpen":   markethours.IsMarketOpen(now),
				"marketStatus": markethours.StatusString(now),
			})
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
