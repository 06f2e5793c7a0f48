package model

import (
	"encoding/json"
	"time"
)

// StructureKind identifies which Chan-theory structure a StructureEvent
// reports.
type StructureKind string

const (
	StructureFractal StructureKind = "fractal"
	StructurePen     StructureKind = "pen"
	StructureSegment StructureKind = "segment"
)

// StructureEvent is the wire/storage representation of a single structure
// detector event — a fractal confirmation, a pen endpoint update, or a
// segment transition — for one instrument at one timeframe.
type StructureEvent struct {
	Kind     StructureKind `json:"kind"`
	Sub      string        `json:"sub"` // "top"/"bottom"; "first"/"new"/"update_to"; "new"
	Token    string        `json:"token"`
	Exchange string        `json:"exchange"`
	TF       int           `json:"tf"`

	Time  int64   `json:"time"`
	Price float64 `json:"price"`

	FromTime  int64   `json:"from_time,omitempty"`
	FromPrice float64 `json:"from_price,omitempty"`
	ToTime    int64   `json:"to_time,omitempty"`
	ToPrice   float64 `json:"to_price,omitempty"`

	Direction string    `json:"direction,omitempty"` // "up"/"down", segments only
	TS        time.Time `json:"ts"`
}

// Key returns "exchange:token".
func (e *StructureEvent) Key() string {
	return e.Exchange + ":" + e.Token
}

// StreamKey returns the Redis stream key: "struct:{kind}:{TF}s:{exchange}:{token}".
func (e *StructureEvent) StreamKey() string {
	return "struct:" + string(e.Kind) + ":" + itoa(e.TF) + "s:" + e.Exchange + ":" + e.Token
}

// PubSubChannel returns the Redis PubSub channel for live subscribers.
func (e *StructureEvent) PubSubChannel() string {
	return "pub:" + e.StreamKey()
}

// JSON returns the JSON-encoded structure event.
func (e *StructureEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
