package structengine

import (
	"testing"
	"time"

	"chanstruct/internal/model"
)

func makeTFCandle(token string, tf int, ts int64, open, high, low, close float64) model.TFCandle {
	const paise = 100.0
	return model.TFCandle{
		Token:    token,
		Exchange: "NSE",
		TF:       tf,
		TS:       time.Unix(ts, 0).UTC(),
		Open:     int64(open * paise),
		High:     int64(high * paise),
		Low:      int64(low * paise),
		Close:    int64(close * paise),
		Volume:   1000,
		Count:    60,
		Forming:  false,
	}
}

func TestEngine_SkipsFormingCandles(t *testing.T) {
	e := NewEngine([]int{60})
	c := makeTFCandle("SBIN", 60, 1, 6, 8, 6, 8)
	c.Forming = true
	if ev := e.Process(c); ev != nil {
		t.Fatalf("expected nil events for forming candle, got %d", len(ev))
	}
}

func TestEngine_SkipsUnconfiguredTF(t *testing.T) {
	e := NewEngine([]int{60})
	c := makeTFCandle("SBIN", 300, 1, 6, 8, 6, 8)
	if ev := e.Process(c); ev != nil {
		t.Fatalf("expected nil events for unconfigured TF, got %d", len(ev))
	}
}

func TestEngine_FiveBarTopFractalEmitsStructureEvent(t *testing.T) {
	e := NewEngine([]int{60})
	bars := []model.TFCandle{
		makeTFCandle("SBIN", 60, 1, 6, 8, 6, 8),
		makeTFCandle("SBIN", 60, 2, 9, 9, 7, 7),
		makeTFCandle("SBIN", 60, 3, 7, 7, 6, 6),
		makeTFCandle("SBIN", 60, 4, 6, 9, 6, 9),
		makeTFCandle("SBIN", 60, 5, 8, 11, 8, 11),
	}

	var all []model.StructureEvent
	for _, b := range bars {
		all = append(all, e.Process(b)...)
	}

	var fractals int
	for _, ev := range all {
		if ev.Kind != model.StructureFractal {
			continue
		}
		fractals++
		if ev.Token != "SBIN" || ev.Exchange != "NSE" || ev.TF != 60 {
			t.Errorf("fractal event has wrong identity: %+v", ev)
		}
	}
	if fractals != 1 {
		t.Fatalf("expected 1 fractal event, got %d", fractals)
	}
}

// Tokens and TFs are tracked independently: feeding one key must not affect
// another key's detector state.
func TestEngine_MultiTokenIsolation(t *testing.T) {
	e := NewEngine([]int{60, 300})
	bars := randomWalkTFCandles("SBIN", 60, 200)
	other := randomWalkTFCandles("TCS", 300, 50)

	var sbinEvents, tcsEvents []model.StructureEvent
	for _, b := range bars {
		sbinEvents = append(sbinEvents, e.Process(b)...)
	}
	for _, b := range other {
		tcsEvents = append(tcsEvents, e.Process(b)...)
	}

	for _, ev := range sbinEvents {
		if ev.Token != "SBIN" || ev.TF != 60 {
			t.Fatalf("cross-contamination in SBIN stream: %+v", ev)
		}
	}
	for _, ev := range tcsEvents {
		if ev.Token != "TCS" || ev.TF != 300 {
			t.Fatalf("cross-contamination in TCS stream: %+v", ev)
		}
	}
}

// Deterministic replay at the engine level: two fresh engines fed the same
// TF candle sequence must emit identical structure events.
func TestEngine_DeterministicReplay(t *testing.T) {
	bars := randomWalkTFCandles("SBIN", 60, 500)

	e1 := NewEngine([]int{60})
	e2 := NewEngine([]int{60})

	var ev1, ev2 []model.StructureEvent
	for _, b := range bars {
		ev1 = append(ev1, e1.Process(b)...)
		ev2 = append(ev2, e2.Process(b)...)
	}

	if len(ev1) != len(ev2) {
		t.Fatalf("event counts diverged: %d vs %d", len(ev1), len(ev2))
	}
	for i := range ev1 {
		if ev1[i].Kind != ev2[i].Kind || ev1[i].Time != ev2[i].Time || ev1[i].Price != ev2[i].Price {
			t.Fatalf("event %d diverged: %+v vs %+v", i, ev1[i], ev2[i])
		}
	}
}

// randomWalkTFCandles generates a deterministic pseudo-random TF candle
// sequence (xorshift, no math/rand or time.Now) so tests stay reproducible.
func randomWalkTFCandles(token string, tf int, n int) []model.TFCandle {
	candles := make([]model.TFCandle, 0, n)
	price := 100.0
	state := uint64(88172645463325252)
	next := func() float64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return float64(state%2001)/1000.0 - 1.0
	}
	for i := 0; i < n; i++ {
		delta := next()
		open := price
		close := price + delta
		high := open
		if close > high {
			high = close
		}
		low := open
		if close < low {
			low = close
		}
		high += 0.1
		low -= 0.1
		candles = append(candles, makeTFCandle(token, tf, int64(i+1)*int64(tf), open, high, low, close))
		price = close
	}
	return candles
}
