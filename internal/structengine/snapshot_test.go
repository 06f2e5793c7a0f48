package structengine

import (
	"testing"

	"chanstruct/internal/model"
)

func TestSnapshot_EngineRoundTrip(t *testing.T) {
	tfs := []int{60}
	e := NewEngine(tfs)

	bars := randomWalkTFCandles("SBIN", 60, 200)
	for _, b := range bars {
		e.Process(b)
	}

	snap, err := SnapshotEngine(e, "test-stream-id")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.StreamID != "test-stream-id" {
		t.Errorf("stream ID mismatch: got %s", snap.StreamID)
	}
	if len(snap.Tokens) != 1 {
		t.Fatalf("expected 1 tracked token, got %d", len(snap.Tokens))
	}
	if snap.Tokens[0].Token != "SBIN" || snap.Tokens[0].Exchange != "NSE" || snap.Tokens[0].TF != 60 {
		t.Errorf("snapshot token identity mismatch: %+v", snap.Tokens[0])
	}

	restored, err := RestoreEngine(tfs, snap)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	more := randomWalkTFCandles("SBIN", 60, 50)
	// Feed a further batch through both engines identically. The batch is
	// regenerated with the same arguments, so it repeats the original walk's
	// candles rather than continuing it.
	var evOrig, evRestored []model.StructureEvent
	for _, b := range more {
		evOrig = append(evOrig, e.Process(b)...)
		evRestored = append(evRestored, restored.Process(b)...)
	}

	if len(evOrig) != len(evRestored) {
		t.Fatalf("post-restore event count diverged: %d vs %d", len(evOrig), len(evRestored))
	}
	for i := range evOrig {
		if evOrig[i].Kind != evRestored[i].Kind || evOrig[i].Time != evRestored[i].Time {
			t.Errorf("event %d diverged after restore: %+v vs %+v", i, evOrig[i], evRestored[i])
		}
	}
}

func TestSnapshot_DropsTokensForDisabledTF(t *testing.T) {
	e := NewEngine([]int{60, 300})
	e.Process(makeTFCandle("SBIN", 60, 1, 6, 8, 6, 8))
	e.Process(makeTFCandle("SBIN", 300, 1, 6, 8, 6, 8))

	snap, err := SnapshotEngine(e, "s1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(snap.Tokens) != 2 {
		t.Fatalf("expected 2 tracked (token,TF) pairs, got %d", len(snap.Tokens))
	}

	// Restore with only TF=60 enabled — the TF=300 entry must be skipped.
	restored, err := RestoreEngine([]int{60}, snap)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if len(restored.tfs) != 1 {
		t.Fatalf("expected 1 enabled TF after restore, got %d", len(restored.tfs))
	}
	if _, exists := restored.state[0]["NSE:SBIN"]; !exists {
		t.Fatalf("expected SBIN TF=60 state to be restored")
	}
}

func TestRestorer_NilSnapshotColdStarts(t *testing.T) {
	r := NewRestorer([]int{60})
	e, err := r.RestoreFromSnap(nil)
	if err != nil {
		t.Fatalf("cold start failed: %v", err)
	}
	if e == nil {
		t.Fatal("expected non-nil engine on cold start")
	}
	if len(e.state) != 1 {
		t.Fatalf("expected fresh engine with 1 TF bucket, got %d", len(e.state))
	}
}
