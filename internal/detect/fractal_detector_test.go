package detect

import "testing"

// S1 — five-bar top fractal.
func TestFractalDetector_FiveBarTopFractal(t *testing.T) {
	bars := []Bar{
		NewBar(1, 6, 8, 6, 8),
		NewBar(2, 9, 9, 7, 7),
		NewBar(3, 7, 7, 6, 6),
		NewBar(4, 6, 9, 6, 9),
		NewBar(5, 8, 11, 8, 11),
	}

	fd := NewFractalDetector()
	var results []Fractal
	for _, b := range bars {
		if f, ok := fd.OnNewBar(b); ok {
			results = append(results, f)
		}
	}

	if len(results) != 1 {
		t.Fatalf("expected exactly 1 fractal, got %d", len(results))
	}
	f := results[0]
	if f.Type() != Top {
		t.Fatalf("expected Top fractal, got %v", f.Type())
	}
	if f.K1.Bar.High != 8 || f.K1.Bar.Low != 6 {
		t.Errorf("k1 = (%v,%v); want (8,6)", f.K1.Bar.High, f.K1.Bar.Low)
	}
	if f.K2.Bar.High != 9 || f.K2.Bar.Low != 7 {
		t.Errorf("k2 = (%v,%v); want (9,7)", f.K2.Bar.High, f.K2.Bar.Low)
	}
	if f.K3.Bar.High != 7 || f.K3.Bar.Low != 6 {
		t.Errorf("k3 = (%v,%v); want (7,6)", f.K3.Bar.High, f.K3.Bar.Low)
	}
}

// S5 — inclusion merge: second bar is contained within the first; no new
// candle is created and time only advances if the merged high is exceeded.
func TestFractalDetector_InclusionMerge(t *testing.T) {
	fd := NewFractalDetector()
	if _, ok := fd.OnNewBar(NewBar(1, 100, 110, 95, 100)); ok {
		t.Fatal("unexpected fractal on first bar")
	}
	if _, ok := fd.OnNewBar(NewBar(2, 102, 108, 97, 103)); ok {
		t.Fatal("unexpected fractal on contained bar")
	}
	if fd.window.Len() != 1 {
		t.Fatalf("expected the contained bar to merge into one candle, got window len %d", fd.window.Len())
	}
	merged, _ := fd.window.Get(-1)
	if merged.Bar.High != 110 || merged.Bar.Low != 95 {
		t.Fatalf("expected merged candle (110,95), got (%v,%v)", merged.Bar.High, merged.Bar.Low)
	}
	if merged.Bar.Time != 1 {
		t.Fatalf("expected time to stay at the original bar since its high was not exceeded, got %d", merged.Bar.Time)
	}
}

func TestFractalDetector_NoFractalOnSparseInput(t *testing.T) {
	fd := NewFractalDetector()
	if _, ok := fd.OnNewBar(NewBar(1, 1, 2, 1, 2)); ok {
		t.Fatal("unexpected fractal with a single bar")
	}
	if _, ok := fd.OnNewBar(NewBar(2, 2, 3, 2, 3)); ok {
		t.Fatal("unexpected fractal with two bars")
	}
}

func TestFractalDetector_LeadingInclusionIsIgnored(t *testing.T) {
	fd := NewFractalDetector()
	// First candle fully contains the second: the second bar must be
	// ignored outright rather than merged or replacing the first.
	if _, ok := fd.OnNewBar(NewBar(1, 5, 10, 0, 5)); ok {
		t.Fatal("unexpected fractal")
	}
	if _, ok := fd.OnNewBar(NewBar(2, 6, 8, 2, 6)); ok {
		t.Fatal("unexpected fractal")
	}
	if fd.window.Len() != 1 {
		t.Fatalf("expected the swallowed bar to be dropped, window len = %d", fd.window.Len())
	}
}
