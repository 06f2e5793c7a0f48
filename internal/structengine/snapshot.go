package structengine

import (
	"encoding/json"
	"fmt"
	"log"

	"chanstruct/internal/detect"
)

// TokenSnapshot holds the replay window for a single (token,TF) pair.
// Chan detector state is not itself serialized — on restore, the bars are
// replayed through a fresh Analyzer, which is deterministic (see
// TestAnalyzer_DeterministicReplay in internal/detect) and therefore reproduces the same
// in-flight pen/segment state.
type TokenSnapshot struct {
	Token    string       `json:"token"`
	Exchange string       `json:"exchange"`
	TF       int          `json:"tf"`
	Bars     []detect.Bar `json:"bars"`
}

// EngineSnapshot holds the full replay state of a structure Engine.
type EngineSnapshot struct {
	StreamID string          `json:"stream_id"`
	Tokens   []TokenSnapshot `json:"tokens"`
	Version  int             `json:"version"`
}

// MarshalJSON serializes the engine snapshot to JSON.
func (es *EngineSnapshot) MarshalJSON() ([]byte, error) {
	type Alias EngineSnapshot
	return json.Marshal((*Alias)(es))
}

// UnmarshalJSON deserializes the engine snapshot from JSON.
func (es *EngineSnapshot) UnmarshalJSON(data []byte) error {
	type Alias EngineSnapshot
	return json.Unmarshal(data, (*Alias)(es))
}

// SnapshotEngine captures the full replay state of a structure Engine.
func SnapshotEngine(e *Engine, streamID string) (*EngineSnapshot, error) {
	snap := &EngineSnapshot{StreamID: streamID, Version: 1}

	for tfIdx, tf := range e.tfs {
		for tokenKey, st := range e.state[tfIdx] {
			ts := TokenSnapshot{TF: tf, Bars: append([]detect.Bar(nil), st.bars...)}
			for i := range tokenKey {
				if tokenKey[i] == ':' {
					ts.Exchange = tokenKey[:i]
					ts.Token = tokenKey[i+1:]
					break
				}
			}
			if ts.Exchange == "" {
				ts.Token = tokenKey
			}
			snap.Tokens = append(snap.Tokens, ts)
		}
	}
	return snap, nil
}

// RestoreEngine rebuilds a structure Engine from a snapshot by replaying
// each token's buffered bars through a fresh Analyzer. Tolerant of TF
// config changes — tokens whose TF is no longer enabled are skipped.
func RestoreEngine(tfs []int, snap *EngineSnapshot) (*Engine, error) {
	e := NewEngine(tfs)

	for _, ts := range snap.Tokens {
		tfIdx := e.tfIndex(ts.TF)
		if tfIdx == -1 {
			continue
		}
		key := ts.Token
		if ts.Exchange != "" {
			key = ts.Exchange + ":" + ts.Token
		}
		analyzer := detect.NewAnalyzer()
		for _, bar := range ts.Bars {
			analyzer.OnNewBar(bar)
		}
		e.state[tfIdx][key] = &tfState{analyzer: analyzer, bars: append([]detect.Bar(nil), ts.Bars...)}
		log.Printf("[structengine] restored %s TF=%d from %d replayed bars", key, ts.TF, len(ts.Bars))
	}
	return e, nil
}

// Restorer rebuilds a structure Engine on startup from a snapshot the caller
// has already loaded (see RestoreFromSnap); it reads no store itself.
type Restorer struct {
	tfs []int
}

// NewRestorer creates a Restorer for the given enabled timeframes.
func NewRestorer(tfs []int) *Restorer {
	return &Restorer{tfs: tfs}
}

// RestoreFromSnap attempts to restore an engine from a snapshot. A nil
// snapshot cold-starts a fresh engine.
func (r *Restorer) RestoreFromSnap(snap *EngineSnapshot) (*Engine, error) {
	if snap == nil {
		log.Println("[structengine] no snapshot found — cold starting")
		return NewEngine(r.tfs), nil
	}
	log.Printf("[structengine] restoring from snapshot (version=%d, streamID=%s, tokens=%d)",
		snap.Version, snap.StreamID, len(snap.Tokens))

	engine, err := RestoreEngine(r.tfs, snap)
	if err != nil {
		return nil, fmt.Errorf("restore structure engine: %w", err)
	}
	return engine, nil
}
