package detect

// Seq is a characteristic sub-sequence element used by SegmentDetector:
// one (possibly merged) pen expressed as a price span with its own
// from/to anchor points.
type Seq struct {
	FromIndex int64
	FromTime  int64
	FromPrice float64
	ToIndex   int64
	ToTime    int64
	ToPrice   float64
}

// High is the larger of the two endpoint prices.
func (s Seq) High() float64 { return max(s.FromPrice, s.ToPrice) }

// Low is the smaller of the two endpoint prices.
func (s Seq) Low() float64 { return min(s.FromPrice, s.ToPrice) }

func seqFromPen(from, to Fractal) Seq {
	return Seq{
		FromIndex: from.K2.Index, FromTime: from.Time(), FromPrice: from.Price(),
		ToIndex: to.K2.Index, ToTime: to.Time(), ToPrice: to.Price(),
	}
}

// segSeq pairs a Seq with the Fractals it was built (or merged) from, so a
// SegmentDetector can report actual Fractal endpoints rather than bare
// prices when a segment terminates.
type segSeq struct {
	Seq
	From, To Fractal
}

func newSegSeq(from, to Fractal) segSeq {
	return segSeq{Seq: seqFromPen(from, to), From: from, To: to}
}

// mergeSegSeq tests dst and rhs for containment (one span wholly inside
// the other) and, if contained, merges rhs into dst along dir: Up merges
// replace dst with the joint low->high span (an upward-trending
// replacement), Down merges replace it with the joint high->low span.
// Returns false unless one span strictly contains the other (no merge
// performed).
func mergeSegSeq(dst *segSeq, rhs segSeq, dir Direction) bool {
	containsA := dst.High() < rhs.High() && dst.Low() > rhs.Low()
	containsB := dst.High() > rhs.High() && dst.Low() < rhs.Low()
	if !containsA && !containsB {
		return false
	}

	type cand struct {
		price float64
		f     Fractal
	}
	cands := [4]cand{
		{dst.FromPrice, dst.From}, {dst.ToPrice, dst.To},
		{rhs.FromPrice, rhs.From}, {rhs.ToPrice, rhs.To},
	}
	lo, hi := cands[0], cands[0]
	for _, c := range cands {
		if c.price < lo.price {
			lo = c
		}
		if c.price > hi.price {
			hi = c
		}
	}

	switch dir {
	case Up:
		dst.From, dst.FromIndex, dst.FromTime, dst.FromPrice = lo.f, lo.f.K2.Index, lo.f.Time(), lo.price
		dst.To, dst.ToIndex, dst.ToTime, dst.ToPrice = hi.f, hi.f.K2.Index, hi.f.Time(), hi.price
	case Down:
		dst.From, dst.FromIndex, dst.FromTime, dst.FromPrice = hi.f, hi.f.K2.Index, hi.f.Time(), hi.price
		dst.To, dst.ToIndex, dst.ToTime, dst.ToPrice = lo.f, lo.f.K2.Index, lo.f.Time(), lo.price
	}
	return true
}

func appendMerge(win *[]segSeq, s segSeq, mergeDir Direction) {
	if n := len(*win); n > 0 {
		if mergeSegSeq(&(*win)[n-1], s, mergeDir) {
			return
		}
	}
	*win = append(*win, s)
}

func penDirection(from, to Fractal) Direction {
	if from.Type() == Bottom {
		return Up
	}
	return Down
}

func oppositeDir(d Direction) Direction {
	if d == Up {
		return Down
	}
	return Up
}

// Segment is a directional trend composed of at least three overlapping
// pens, represented by its start/end fractals.
type Segment struct {
	Start, End Fractal
	Direction  Direction
}

// SegmentEventKind tags the SegmentEvent sum type.
type SegmentEventKind int

const (
	SegmentEventNew SegmentEventKind = iota
	SegmentEventNew2
)

// SegmentEvent is the SegmentDetector's tagged-union output. New reports a
// single terminated segment (Start,End); New2 reports two segments
// confirmed jointly (Case 2.1), where End closes the old segment and
// NextEnd is the tentative close of the opposing segment that started at
// End.
type SegmentEvent struct {
	Kind       SegmentEventKind
	Start, End Fractal
	NextEnd    Fractal
}
