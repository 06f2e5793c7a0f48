package detect

// PenDetector consumes a stream of fractals and maintains an evolving
// sequence of pens, emitting one PenEvent per input fractal at most.
//
// Internal state is a window of up to three candidate fractals and a
// has_pen flag; the five reachable (has_pen, len(window)) combinations
// are handled by state0..state4 below. The first pen needs a different
// selection discipline than later ones (it must also choose among
// same-type duplicates); once a pen exists, a candidate opposite-type
// fractal is held in a pending third slot until a second confirming
// fractal resolves whether the current pen terminates or extends.
type PenDetector struct {
	window *RingBuffer[Fractal]
	hasPen bool
}

// NewPenDetector returns an empty PenDetector.
func NewPenDetector() *PenDetector {
	return &PenDetector{window: NewRingBuffer[Fractal](3)}
}

func (d *PenDetector) isPenAt(i int) bool {
	a, _ := d.window.Get(i)
	b, _ := d.window.Get(i + 1)
	return IsPen(a, b)
}

func (d *PenDetector) abIsPen() bool { return d.isPenAt(0) }
func (d *PenDetector) bcIsPen() bool { return d.isPenAt(1) }

// OnNewFractal feeds the next fractal through the state machine and
// returns the PenEvent it produces, if any.
func (d *PenDetector) OnNewFractal(f Fractal) (PenEvent, bool) {
	switch {
	case !d.hasPen && d.window.Len() == 0:
		return d.state0(f)
	case !d.hasPen && d.window.Len() == 1:
		return d.state1(f)
	case !d.hasPen && d.window.Len() == 2:
		return d.state2(f)
	case d.hasPen && d.window.Len() == 2:
		return d.state3(f)
	case d.hasPen && d.window.Len() == 3:
		return d.state4(f)
	default:
		panic("detect: unreachable pen detector state")
	}
}

func (d *PenDetector) state0(f Fractal) (PenEvent, bool) {
	d.window.Push(f)
	return PenEvent{}, false
}

func (d *PenDetector) state1(f Fractal) (PenEvent, bool) {
	last, _ := d.window.Get(-1)
	if last.SameType(f) {
		if mergeSameType(last, f) == Replace {
			d.window.PopBack()
			d.window.Push(f)
		}
		return PenEvent{}, false
	}

	d.window.Push(f)
	if d.abIsPen() {
		d.hasPen = true
		a, _ := d.window.Get(0)
		b, _ := d.window.Get(1)
		return penEventFirst(a, b), true
	}
	return PenEvent{}, false
}

func (d *PenDetector) state2(f Fractal) (PenEvent, bool) {
	b, _ := d.window.Get(-1)
	if IsPen(b, f) {
		d.window.Push(f)
		d.window.PopFront()
		d.hasPen = true
		a0, _ := d.window.Get(0)
		b0, _ := d.window.Get(1)
		return penEventFirst(a0, b0), true
	}

	if b.SameType(f) {
		if mergeSameType(b, f) == Replace {
			d.window.PopBack()
			d.window.Push(f)
			if d.abIsPen() {
				d.hasPen = true
				a0, _ := d.window.Get(0)
				b0, _ := d.window.Get(1)
				return penEventFirst(a0, b0), true
			}
		}
		return PenEvent{}, false
	}

	a, _ := d.window.Get(0)
	if mergeSameType(a, f) == Replace {
		d.window.Clear()
		d.window.Push(f)
	}
	return PenEvent{}, false
}

func (d *PenDetector) state3(f Fractal) (PenEvent, bool) {
	b, _ := d.window.Get(-1)
	if IsPen(b, f) {
		d.window.PopFront()
		d.window.Push(f)
		return penEventNew(f), true
	}

	if b.SameType(f) {
		if mergeSameType(b, f) == Replace {
			d.window.PopBack()
			d.window.Push(f)
			return penEventUpdateTo(f), true
		}
		return PenEvent{}, false
	}

	d.window.Push(f)
	return PenEvent{}, false
}

func (d *PenDetector) state4(f Fractal) (PenEvent, bool) {
	c, _ := d.window.Get(-1)
	if c.SameType(f) {
		if mergeSameType(c, f) == Replace {
			d.window.PopBack()
			d.window.Push(f)
			if d.bcIsPen() {
				d.window.PopFront()
				last, _ := d.window.Get(-1)
				return penEventNew(last), true
			}
		}
		return PenEvent{}, false
	}

	d.window.PopBack() // discard C: opposite type of the pending candidate
	b, _ := d.window.Get(-1)
	if mergeSameType(b, f) == Replace {
		d.window.PopBack()
		d.window.Push(f)
		return penEventUpdateTo(f), true
	}
	return PenEvent{}, false
}
