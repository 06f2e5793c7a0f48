package detect

import "testing"

func mkCandle(index int64, high, low float64) Candle {
	return Candle{Index: index, Bar: Bar{Time: index, High: high, Low: low}}
}

// S2 fixtures: two opposite-type fractals at candle indices 1118 and 1132.
func s2Fractals() (Fractal, Fractal) {
	k1 := mkCandle(1117, 1.15642, 1.15627)
	k2 := mkCandle(1118, 1.15645, 1.15634)
	k3 := mkCandle(1119, 1.15638, 1.15620)
	f1, _ := CheckFractal(k1, k2, k3)

	k4 := mkCandle(1131, 1.15604, 1.15590)
	k5 := mkCandle(1132, 1.15602, 1.15576)
	k6 := mkCandle(1133, 1.15624, 1.15599)
	f2, _ := CheckFractal(k4, k5, k6)
	return f1, f2
}

func TestIsPen_S2Fixture(t *testing.T) {
	f1, f2 := s2Fractals()
	if f1.Type() != Top {
		t.Fatalf("expected f1 to be a Top fractal, got %v", f1.Type())
	}
	if f2.Type() != Bottom {
		t.Fatalf("expected f2 to be a Bottom fractal, got %v", f2.Type())
	}
	if !f1.HasEnoughDistance(f2) {
		t.Fatalf("expected distance %d >= 4", f1.Distance(f2))
	}
	if f2.Lowest() >= f1.Lowest() {
		t.Fatalf("expected f2.Lowest (%v) < f1.Lowest (%v)", f2.Lowest(), f1.Lowest())
	}
	if !IsPen(f1, f2) {
		t.Fatal("expected IsPen(f1,f2) to hold")
	}
}

// S2 — pen formation: PenDetector emits First(f1,f2).
func TestPenDetector_FirstPen(t *testing.T) {
	f1, f2 := s2Fractals()
	pd := NewPenDetector()

	if ev, ok := pd.OnNewFractal(f1); ok {
		t.Fatalf("unexpected event on first fractal: %+v", ev)
	}
	ev, ok := pd.OnNewFractal(f2)
	if !ok {
		t.Fatal("expected First event")
	}
	if ev.Kind != PenEventFirst {
		t.Fatalf("expected PenEventFirst, got %v", ev.Kind)
	}
	if !ev.A.Equal(f1) || !ev.B.Equal(f2) {
		t.Fatal("expected First(f1,f2)")
	}
}

// S3 — pen update: a further, more extreme Bottom replaces the pen's
// endpoint via UpdateTo rather than starting a new pen.
func TestPenDetector_UpdateTo(t *testing.T) {
	f1, f2 := s2Fractals()
	pd := NewPenDetector()
	pd.OnNewFractal(f1)
	pd.OnNewFractal(f2)

	k10 := mkCandle(1140, 1.15590, 1.15560)
	k11 := mkCandle(1141, 1.15580, 1.15550)
	k12 := mkCandle(1142, 1.15585, 1.15560)
	f3, ok := CheckFractal(k10, k11, k12)
	if !ok || f3.Type() != Bottom {
		t.Fatalf("expected f3 to be a constructed Bottom fractal")
	}
	if f3.Lowest() >= f2.Lowest() {
		t.Fatalf("expected f3 to be more extreme than f2: f3=%v f2=%v", f3.Lowest(), f2.Lowest())
	}

	ev, ok := pd.OnNewFractal(f3)
	if !ok {
		t.Fatal("expected an UpdateTo event")
	}
	if ev.Kind != PenEventUpdateTo {
		t.Fatalf("expected PenEventUpdateTo, got %v", ev.Kind)
	}
	if !ev.C.Equal(f3) {
		t.Fatal("expected UpdateTo(f3)")
	}
}

// S4 — pen commit + new pen: a qualifying Top fractal commits the active
// pen and starts a new one.
func TestPenDetector_NewCommitsPreviousPen(t *testing.T) {
	f1, f2 := s2Fractals()
	pd := NewPenDetector()
	pd.OnNewFractal(f1)
	pd.OnNewFractal(f2)

	k10 := mkCandle(1140, 1.15590, 1.15560)
	k11 := mkCandle(1141, 1.15580, 1.15550)
	k12 := mkCandle(1142, 1.15585, 1.15560)
	f3, _ := CheckFractal(k10, k11, k12)
	pd.OnNewFractal(f3)

	k13 := mkCandle(1145, 1.15640, 1.15600)
	k14 := mkCandle(1146, 1.15650, 1.15610)
	k15 := mkCandle(1147, 1.15645, 1.15605)
	f4, ok := CheckFractal(k13, k14, k15)
	if !ok || f4.Type() != Top {
		t.Fatal("expected f4 to be a constructed Top fractal")
	}
	if !IsPen(f3, f4) {
		t.Fatal("expected IsPen(f3,f4) to hold")
	}

	ev, ok := pd.OnNewFractal(f4)
	if !ok {
		t.Fatal("expected a New event")
	}
	if ev.Kind != PenEventNew {
		t.Fatalf("expected PenEventNew, got %v", ev.Kind)
	}
	if !ev.C.Equal(f4) {
		t.Fatal("expected New(f4)")
	}
}

func TestMergeSameType_TieBreakReplaces(t *testing.T) {
	k1 := mkCandle(0, 10, 5)
	k2 := mkCandle(1, 20, 8)
	k3 := mkCandle(2, 15, 6)
	f1, _ := CheckFractal(k1, k2, k3)

	k4 := mkCandle(10, 12, 9)
	k5 := mkCandle(11, 20, 11) // same high as f1 (20): tie
	k6 := mkCandle(12, 16, 10)
	f2, _ := CheckFractal(k4, k5, k6)

	if mergeSameType(f1, f2) != Replace {
		t.Fatal("expected a same-extreme tie to resolve to Replace (pinned observed behavior)")
	}
}

func TestPenDetector_NoEventUntilOppositeType(t *testing.T) {
	f1, _ := s2Fractals()
	pd := NewPenDetector()
	if _, ok := pd.OnNewFractal(f1); ok {
		t.Fatal("unexpected event on a single fractal")
	}
	if pd.window.Len() != 1 {
		t.Fatalf("expected window len 1, got %d", pd.window.Len())
	}
}
