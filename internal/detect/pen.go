package detect

// PenType is the direction of a pen: Up if it runs from a Bottom to a Top
// fractal, Down if from a Top to a Bottom.
type PenType int

const (
	PenDown PenType = iota
	PenUp
)

// PenStatus tracks a pen's lifecycle: New on creation, Continue while its
// endpoint is still being extended by UpdateTo, Complete once superseded
// by the next pen.
type PenStatus int

const (
	PenNew PenStatus = iota
	PenContinue
	PenComplete
)

// Pen is an oriented stroke between two opposite-type fractals.
// Invariant: IsPen(From, To) holds for as long as the pen is not Complete.
type Pen struct {
	From, To Fractal
	Type     PenType
	Status   PenStatus
}

func newPen(from, to Fractal) Pen {
	t := PenUp
	if from.Type() == Top {
		t = PenDown
	}
	return Pen{From: from, To: to, Type: t, Status: PenNew}
}

// PenEventKind tags the PenEvent sum type.
type PenEventKind int

const (
	PenEventFirst PenEventKind = iota
	PenEventNew
	PenEventUpdateTo
)

// PenEvent is the PenDetector's tagged-union output. Exactly one of the
// fields is meaningful per Kind: First carries (A,B); New and UpdateTo
// carry a single fractal in C.
type PenEvent struct {
	Kind PenEventKind
	A, B Fractal
	C    Fractal
}

func penEventFirst(a, b Fractal) PenEvent {
	return PenEvent{Kind: PenEventFirst, A: a, B: b}
}

func penEventNew(c Fractal) PenEvent {
	return PenEvent{Kind: PenEventNew, C: c}
}

func penEventUpdateTo(c Fractal) PenEvent {
	return PenEvent{Kind: PenEventUpdateTo, C: c}
}
