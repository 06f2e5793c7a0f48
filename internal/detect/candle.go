package detect

// Direction tags the trend between two consecutive candles, deciding how
// an inclusion relationship is resolved.
type Direction int

const (
	Down Direction = iota
	Up
)

// Candle is an inclusion-merged Bar. Index is a monotonic counter assigned
// at creation by FractalDetector; Bar is a synthesized OHLC span whose
// High/Low may cover several raw input bars. A Candle is mutated only
// while it is still the active tail of the detector's window; once a new
// candle is appended behind it, it is logically frozen and copied
// downstream by value.
type Candle struct {
	Index int64
	Bar   Bar
}

func newCandle(index int64, bar Bar) Candle {
	return Candle{Index: index, Bar: bar}
}

// checkDirection reports the inclusion-merge direction between two
// adjacent candles: Up iff k1.high+k1.low <= k2.high+k2.low, else Down.
func checkDirection(k1, k2 Candle) Direction {
	if k1.Bar.High+k1.Bar.Low > k2.Bar.High+k2.Bar.Low {
		return Down
	}
	return Up
}

// checkContain tests whether cur and bar are in an inclusion relationship
// and, if so, merges bar into cur along dir. Returns true if a merge (or a
// degenerate limit-bar no-op) occurred, false if bar is a genuinely new
// candle.
func checkContain(dir Direction, cur *Candle, bar Bar) bool {
	included := (cur.Bar.High >= bar.High && cur.Bar.Low <= bar.Low) ||
		(cur.Bar.High <= bar.High && cur.Bar.Low >= bar.Low)
	if !included {
		return false
	}

	limitBar := bar.High == bar.Low

	switch dir {
	case Down:
		if limitBar && bar.Low == cur.Bar.Low {
			// Degenerate limit bar tying the stored extreme: ignore it.
			return true
		}
		if cur.Bar.Low > bar.Low {
			cur.Bar.Time = bar.Time
		}
		cur.Bar.High = min(bar.High, cur.Bar.High)
		cur.Bar.Low = min(bar.Low, cur.Bar.Low)
	case Up:
		if limitBar && bar.High == cur.Bar.High {
			return true
		}
		if cur.Bar.High < bar.High {
			cur.Bar.Time = bar.Time
		}
		cur.Bar.High = max(bar.High, cur.Bar.High)
		cur.Bar.Low = max(bar.Low, cur.Bar.Low)
	}
	return true
}
