package detect

// FractalType distinguishes a local top from a local bottom.
type FractalType int

const (
	Top FractalType = iota
	Bottom
)

// Fractal is a local top or bottom formed by three consecutive merged
// candles (k1,k2,k3). Identity is the center candle's time: two fractals
// are equal iff k2.Bar.Time matches.
//
// Invariant (Top): k1.High < k2.High > k3.High. Invariant (Bottom):
// k1.Low > k2.Low < k3.Low. Constructed only when one of these holds.
type Fractal struct {
	K1, K2, K3 Candle
	ftype      FractalType
}

// newFractal builds a Fractal from three candles already known to satisfy
// the Top or Bottom predicate.
func newFractal(k1, k2, k3 Candle) Fractal {
	isTop := k1.Bar.High < k2.Bar.High && k2.Bar.High > k3.Bar.High
	ft := Bottom
	if isTop {
		ft = Top
	}
	return Fractal{K1: k1, K2: k2, K3: k3, ftype: ft}
}

// CheckFractal tests (k1,k2,k3) for the Top/Bottom predicate and returns
// the constructed Fractal plus true if either holds.
func CheckFractal(k1, k2, k3 Candle) (Fractal, bool) {
	isTop := k1.Bar.High < k2.Bar.High && k2.Bar.High > k3.Bar.High
	isBottom := k1.Bar.Low > k2.Bar.Low && k2.Bar.Low < k3.Bar.Low
	if isTop || isBottom {
		return newFractal(k1, k2, k3), true
	}
	return Fractal{}, false
}

// Type returns the fractal's Top/Bottom tag.
func (f Fractal) Type() FractalType { return f.ftype }

// Time is the center candle's time, used as the fractal's identity.
func (f Fractal) Time() int64 { return f.K2.Bar.Time }

// SameType reports whether f and other share a FractalType.
func (f Fractal) SameType(other Fractal) bool { return f.ftype == other.ftype }

// Equal reports identity equality (shared center-candle time).
func (f Fractal) Equal(other Fractal) bool { return f.Time() == other.Time() }

// Distance is the absolute difference between the two fractals' center
// candle indices (K2.Index).
func (f Fractal) Distance(other Fractal) int64 {
	if other.K2.Index > f.K2.Index {
		return other.K2.Index - f.K2.Index
	}
	return f.K2.Index - other.K2.Index
}

// HasEnoughDistance is the five-candle Chan rule: distance >= 4.
func (f Fractal) HasEnoughDistance(other Fractal) bool {
	return f.Distance(other) >= 4
}

// Highest is the extreme high over the three candles (for a Top fractal,
// simply the center candle's high).
func (f Fractal) Highest() float64 {
	if f.ftype == Top {
		return f.K2.Bar.High
	}
	return max(f.K1.Bar.High, f.K3.Bar.High)
}

// Lowest is the extreme low over the three candles (for a Bottom fractal,
// simply the center candle's low).
func (f Fractal) Lowest() float64 {
	if f.ftype == Bottom {
		return f.K2.Bar.Low
	}
	return min(f.K1.Bar.Low, f.K3.Bar.Low)
}

// Price is the central-candle extreme in the fractal's own direction.
func (f Fractal) Price() float64 {
	if f.ftype == Bottom {
		return f.K2.Bar.Low
	}
	return f.K2.Bar.High
}

// IsContain reports whether f's span covers other's span.
func (f Fractal) IsContain(other Fractal) bool {
	return f.Highest() >= other.Highest() && f.Lowest() <= other.Lowest()
}

// IsPen is the core pen predicate: f1,f2 must be opposite types, at least
// four candle-indices apart, price-monotone in the implied direction
// (Top->Bottom requires f2 to make a lower low; Bottom->Top requires f2 to
// make a higher high), and f1 must not already contain f2.
func IsPen(f1, f2 Fractal) bool {
	if f1.ftype == Top && f2.ftype == Bottom &&
		f1.HasEnoughDistance(f2) && f2.Lowest() < f1.Lowest() && !f1.IsContain(f2) {
		return true
	}
	if f1.ftype == Bottom && f2.ftype == Top &&
		f1.HasEnoughDistance(f2) && f2.Highest() > f1.Highest() && !f1.IsContain(f2) {
		return true
	}
	return false
}

// MergeAction is the outcome of merging two same-type fractals: keep the
// earlier one or replace it with the later one.
type MergeAction int

const (
	Keep MergeAction = iota
	Replace
)

// mergeSameType compares two same-type fractals and decides which
// survives. Ties (identical extreme price) resolve to Replace — pinned
// observed behavior; prices are compared exactly, not with an epsilon
// tolerance.
func mergeSameType(f1, f2 Fractal) MergeAction {
	if f1.ftype == Top {
		if f1.Highest() > f2.Highest() {
			return Keep
		}
		return Replace
	}
	if f1.Lowest() < f2.Lowest() {
		return Keep
	}
	return Replace
}
