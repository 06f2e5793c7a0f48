package gateway

import (
	"strconv"
	"time"

	"encoding/json"
)

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends data on a channel to all subscribed clients.
// Uses hand-crafted JSON envelope for performance (~1μs vs ~25μs for json.Marshal).
// Includes per-channel seq for client-side gap detection.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	// Record e2e latency if LatencyTracker is available
	if b.hub.Latency != nil {
		if srcTS := extractTS(data); !srcTS.IsZero() {
			latencyMs := float64(now.Sub(srcTS).Microseconds()) / 1000.0
			if latencyMs >= 0 {
				b.hub.Latency.Record(latencyMs)
			}
		}
	}

	b.hub.mu.Lock()
	b.hub.latest[channel] = latestEntry{Data: data, TS: now}

	// Per-channel seq for gap detection
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}

	// Global seq (backwards compatible)
	b.hub.seq++
	seq := b.hub.seq
	b.hub.mu.Unlock()

	// Hand-craft envelope JSON
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')

	// Store in replay buffer for gap backfill
	b.hub.mu.Lock()
	rb, exists := b.hub.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(500) // 500 envelopes per channel
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()
	rb.Push(channelSeq, buf)

	// Fan out to subscribed clients
	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// extractTS attempts to extract a "ts" field from a JSON payload for e2e latency.
// Decodes the payload with json.Unmarshal into a struct holding only "ts";
// returns the zero time if decoding fails or the field is absent.
func extractTS(data []byte) time.Time {
	var partial struct {
		TS time.Time `json:"ts"`
	}
	if err := json.Unmarshal(data, &partial); err == nil && !partial.TS.IsZero() {
		return partial.TS
	}
	return time.Time{}
}
