package detect

// Analyzer wires FractalDetector -> PenDetector -> SegmentDetector into a
// single pipeline and materializes their events into three append-only
// slices. Callers that need bounded memory must call Prune themselves;
// the detectors only ever look at the last few entries for ongoing
// analysis, so older history is purely observational.
type Analyzer struct {
	fd *FractalDetector
	pd *PenDetector
	sd *SegmentDetector

	Fractals []Fractal
	Pens     []Fractal
	Segments []Segment
}

// NewAnalyzer returns a fresh Analyzer with empty history.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		fd: NewFractalDetector(),
		pd: NewPenDetector(),
		sd: NewSegmentDetector(),
	}
}

// Events reports what a single OnNewBar call produced, so a streaming
// caller can react incrementally instead of diffing the cumulative slices.
type Events struct {
	Fractal  *Fractal
	Pen      *PenEvent
	Segments []Segment
}

// OnNewBar pushes bar through the full pipeline, updating Fractals, Pens
// and Segments as events are produced, and reports what fired.
func (a *Analyzer) OnNewBar(bar Bar) Events {
	var ev Events

	fractal, ok := a.fd.OnNewBar(bar)
	if !ok {
		return ev
	}
	a.Fractals = append(a.Fractals, fractal)
	ev.Fractal = &fractal

	penEvent, ok := a.pd.OnNewFractal(fractal)
	if !ok {
		return ev
	}
	ev.Pen = &penEvent
	switch penEvent.Kind {
	case PenEventFirst:
		a.Pens = append(a.Pens, penEvent.A, penEvent.B)
	case PenEventNew:
		a.Pens = append(a.Pens, penEvent.C)
	case PenEventUpdateTo:
		if n := len(a.Pens); n > 0 {
			a.Pens = a.Pens[:n-1]
		}
		a.Pens = append(a.Pens, penEvent.C)
	}

	segEvent, ok := a.sd.OnPenEvent(penEvent)
	if !ok {
		return ev
	}
	switch segEvent.Kind {
	case SegmentEventNew:
		seg := Segment{Start: segEvent.Start, End: segEvent.End, Direction: a.lastSegmentDirection(segEvent)}
		a.Segments = append(a.Segments, seg)
		ev.Segments = []Segment{seg}
	case SegmentEventNew2:
		dir := a.lastSegmentDirection(segEvent)
		closed := Segment{Start: segEvent.Start, End: segEvent.End, Direction: dir}
		opened := Segment{Start: segEvent.End, End: segEvent.NextEnd, Direction: oppositeDir(dir)}
		a.Segments = append(a.Segments, closed, opened)
		ev.Segments = []Segment{closed, opened}
	}
	return ev
}

// lastSegmentDirection infers a terminated segment's direction from its
// endpoints (Up if it closes on a Top fractal, Down if on a Bottom).
func (a *Analyzer) lastSegmentDirection(ev SegmentEvent) Direction {
	if ev.End.Type() == Top {
		return Up
	}
	return Down
}

// Prune discards all but the most recent keep fractals/pens/segments,
// bounding memory for long-running streams. Any keep >= 0 is accepted
// (negative values are treated as 0): the pen/segment detectors hold their
// own window state independently of these vectors, so this only affects
// what's observable by the caller, not detector correctness.
func (a *Analyzer) Prune(keep int) {
	if keep < 0 {
		keep = 0
	}
	if n := len(a.Fractals); n > keep {
		a.Fractals = append([]Fractal(nil), a.Fractals[n-keep:]...)
	}
	if n := len(a.Pens); n > keep {
		a.Pens = append([]Fractal(nil), a.Pens[n-keep:]...)
	}
	if n := len(a.Segments); n > keep {
		a.Segments = append([]Segment(nil), a.Segments[n-keep:]...)
	}
}
