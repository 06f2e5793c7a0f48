package detect

// FractalDetector accepts bars in time order, merges inclusions into a
// running stream of indexed Candles, and reports each three-candle
// top/bottom fractal exactly once as the middle candle is confirmed (one
// bar after the fractal's center).
type FractalDetector struct {
	window    *RingBuffer[Candle]
	nextIndex int64
}

// NewFractalDetector returns an empty FractalDetector.
func NewFractalDetector() *FractalDetector {
	return &FractalDetector{window: NewRingBuffer[Candle](3)}
}

func (d *FractalDetector) addCandle(bar Bar) {
	c := newCandle(d.nextIndex, bar)
	d.nextIndex++
	d.window.Push(c)
}

func (d *FractalDetector) checkFractal() (Fractal, bool) {
	k1, _ := d.window.Get(-3)
	k2, _ := d.window.Get(-2)
	k3, _ := d.window.Get(-1)
	return CheckFractal(k1, k2, k3)
}

// processContainRelationship tests the tail candle against bar and merges
// in place if they're inclusion-related. Returns true if merged.
func (d *FractalDetector) processContainRelationship(bar Bar) bool {
	k1, _ := d.window.Get(-2)
	k2, _ := d.window.Get(-1)
	dir := checkDirection(k1, k2)
	cur := d.window.GetMut(-1)
	return checkContain(dir, cur, bar)
}

// OnNewBar appends bar to the running candle stream and returns the
// Fractal it confirms, if any. Nondecreasing bar.Time is a caller
// precondition; violating it is undefined behavior, not a reported error.
func (d *FractalDetector) OnNewBar(bar Bar) (Fractal, bool) {
	switch d.window.Len() {
	case 0:
		d.addCandle(bar)

	case 1:
		last, _ := d.window.Get(-1)
		k1IncludesK2 := last.Bar.High >= bar.High && last.Bar.Low <= bar.Low
		k2IncludesK1 := last.Bar.High <= bar.High && last.Bar.Low >= bar.Low
		if k1IncludesK2 {
			// The new bar is swallowed by the only stored candle; ignore
			// it until a genuinely non-inclusive bar arrives.
			return Fractal{}, false
		}
		if k2IncludesK1 {
			d.window.Clear()
		}
		d.addCandle(bar)

	case 2:
		if !d.processContainRelationship(bar) {
			d.addCandle(bar)
		}

	default: // 3
		if !d.processContainRelationship(bar) {
			result, ok := d.checkFractal()
			d.addCandle(bar)
			return result, ok
		}
	}
	return Fractal{}, false
}
