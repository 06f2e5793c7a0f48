package detect

// SegmentDetector consumes PenEvents and identifies segments: directional
// trends of at least three overlapping pens, terminated by a
// characteristic-sequence fractal analysis run against the pens moving
// opposite the segment's direction.
//
// Internal state tracks the full chain of pen endpoints (mirroring the
// Analyzer's materialized pen vector: First pushes two fractals, New
// pushes one and freezes the pen before it, UpdateTo replaces the tail in
// place), plus, once a segment is active, two characteristic-sequence
// windows: window1 (pens against the segment's direction, merged along
// it) and window2 (pens with the segment's direction, merged against it).
type SegmentDetector struct {
	endpoints []Fractal

	active  bool
	dir     Direction
	start   Fractal
	current Fractal

	startIdx   int
	currentIdx int

	window1 []segSeq
	window2 []segSeq
}

// NewSegmentDetector returns an empty SegmentDetector.
func NewSegmentDetector() *SegmentDetector {
	return &SegmentDetector{}
}

// OnPenEvent feeds the next PenEvent through the detector and returns the
// SegmentEvent it produces, if any.
func (d *SegmentDetector) OnPenEvent(pe PenEvent) (SegmentEvent, bool) {
	switch pe.Kind {
	case PenEventFirst:
		d.endpoints = append(d.endpoints, pe.A, pe.B)
		if !d.active {
			return d.discoverFirstSegment()
		}
		return SegmentEvent{}, false

	case PenEventUpdateTo:
		if n := len(d.endpoints); n > 0 {
			d.endpoints[n-1] = pe.C
		}
		if d.active {
			d.extendAssumedEndpoint(pe.C)
			return SegmentEvent{}, false
		}
		return d.discoverFirstSegment()

	case PenEventNew:
		n := len(d.endpoints)
		var closedFrom, closedTo Fractal
		haveClosed := n >= 2
		if haveClosed {
			closedFrom, closedTo = d.endpoints[n-2], d.endpoints[n-1]
		}
		d.endpoints = append(d.endpoints, pe.C)

		if !d.active {
			return d.discoverFirstSegment()
		}
		d.extendAssumedEndpoint(pe.C)
		if haveClosed {
			return d.onPenClosed(closedFrom, closedTo)
		}
		return SegmentEvent{}, false
	}
	return SegmentEvent{}, false
}

// discoverFirstSegment applies the stricter four-endpoint rule (three
// consecutive pens) to the tail of the endpoint chain.
func (d *SegmentDetector) discoverFirstSegment() (SegmentEvent, bool) {
	n := len(d.endpoints)
	if n < 4 {
		return SegmentEvent{}, false
	}
	p1, p2, p3, p4 := d.endpoints[n-4], d.endpoints[n-3], d.endpoints[n-2], d.endpoints[n-1]

	up := p1.Price() < p2.Price() && p2.Price() > p3.Price() && p3.Price() > p1.Price() &&
		p4.Price() > p3.Price() && p4.Price() > p2.Price()
	down := p1.Price() > p2.Price() && p2.Price() < p3.Price() && p3.Price() < p1.Price() &&
		p4.Price() < p3.Price() && p4.Price() < p2.Price()
	if !up && !down {
		return SegmentEvent{}, false
	}

	d.active = true
	if up {
		d.dir = Up
	} else {
		d.dir = Down
	}
	d.start = p1
	d.current = p4
	d.startIdx = n - 4
	d.currentIdx = n - 1
	d.window1 = nil
	d.window2 = nil

	return SegmentEvent{Kind: SegmentEventNew, Start: p1, End: p4}, true
}

func (d *SegmentDetector) onPenClosed(from, to Fractal) (SegmentEvent, bool) {
	s := newSegSeq(from, to)
	if penDirection(from, to) == d.dir {
		appendMerge(&d.window2, s, oppositeDir(d.dir))
	} else {
		appendMerge(&d.window1, s, d.dir)
	}
	if ev, ok := d.checkCase1(); ok {
		return ev, ok
	}
	return d.checkCase2()
}

func (d *SegmentDetector) isReversalFractal(s1, s2, s3 segSeq) bool {
	if d.dir == Up {
		return s1.High() < s2.High() && s2.High() > s3.High()
	}
	return s1.Low() > s2.Low() && s2.Low() < s3.Low()
}

func (d *SegmentDetector) noGap(s1, s2 segSeq) bool {
	if d.dir == Up {
		return s1.High() >= s2.Low()
	}
	return s1.Low() <= s2.High()
}

// checkCase1 tests window1's tail three elements for the opposite-polarity
// fractal that, absent a price gap between its first two elements,
// terminates the active segment.
func (d *SegmentDetector) checkCase1() (SegmentEvent, bool) {
	n := len(d.window1)
	if n < 3 {
		return SegmentEvent{}, false
	}
	s1, s2, s3 := d.window1[n-3], d.window1[n-2], d.window1[n-1]
	if !d.isReversalFractal(s1, s2, s3) || !d.noGap(s1, s2) {
		return SegmentEvent{}, false
	}
	end := s2.To
	ev := SegmentEvent{Kind: SegmentEventNew, Start: d.start, End: end}
	d.beginNextSegment(end)
	return ev, true
}

// checkCase2 handles the gapped variant: window1's first two elements
// failed the Case 1 no-gap test, so termination is instead decided by
// whether window2 forms a matching-polarity fractal, and whether that
// fractal itself has a gap (2.1: no gap, both segments confirmed jointly;
// 2.2: gapped, only the old segment terminates and the next one's close is
// deferred until its own window accumulates further).
func (d *SegmentDetector) checkCase2() (SegmentEvent, bool) {
	if len(d.window1) < 2 {
		return SegmentEvent{}, false
	}
	s1, s2 := d.window1[0], d.window1[1]
	if d.noGap(s1, s2) {
		return SegmentEvent{}, false
	}

	n := len(d.window2)
	if n < 3 {
		return SegmentEvent{}, false
	}
	w1, w2, w3 := d.window2[n-3], d.window2[n-2], d.window2[n-1]
	if !d.isReversalFractal(w1, w2, w3) {
		return SegmentEvent{}, false
	}

	end := w2.To
	if d.noGap(w1, w2) {
		nextEnd := w3.To
		ev := SegmentEvent{Kind: SegmentEventNew2, Start: d.start, End: end, NextEnd: nextEnd}
		d.beginNextSegment(nextEnd)
		return ev, true
	}

	ev := SegmentEvent{Kind: SegmentEventNew, Start: d.start, End: end}
	d.beginNextSegment(end)
	return ev, true
}

func (d *SegmentDetector) beginNextSegment(newStart Fractal) {
	d.dir = oppositeDir(d.dir)
	d.start = newStart
	d.startIdx = d.indexOfEndpoint(newStart)
	d.current = newStart
	d.currentIdx = d.startIdx
	d.window1 = nil
	d.window2 = nil
}

func (d *SegmentDetector) indexOfEndpoint(f Fractal) int {
	for i := len(d.endpoints) - 1; i >= 0; i-- {
		if d.endpoints[i].Equal(f) {
			return i
		}
	}
	return len(d.endpoints) - 1
}

// extendAssumedEndpoint implements the assumed-endpoint-tracking rule: any
// new extreme beyond the current tentative endpoint (in the segment's
// direction) pushes that endpoint forward and forces window1 to be
// rebuilt from the segment start, discarding window2.
func (d *SegmentDetector) extendAssumedEndpoint(c Fractal) {
	extends := false
	if d.dir == Up {
		extends = c.Price() > d.current.Price()
	} else {
		extends = c.Price() < d.current.Price()
	}
	if !extends {
		return
	}
	d.current = c
	d.currentIdx = len(d.endpoints) - 1
	d.rebuildWindows()
}

func (d *SegmentDetector) rebuildWindows() {
	d.window1 = nil
	d.window2 = nil
	for i := d.startIdx; i < d.currentIdx; i++ {
		from, to := d.endpoints[i], d.endpoints[i+1]
		if penDirection(from, to) != d.dir {
			appendMerge(&d.window1, newSegSeq(from, to), d.dir)
		}
	}
}
