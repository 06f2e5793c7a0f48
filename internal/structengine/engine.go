// Package structengine multiplexes the Chan-theory structure detector
// across instruments and timeframes, turning a stream of TF candles into
// StructureEvents.
package structengine

import (
	"chanstruct/internal/detect"
	"chanstruct/internal/model"
)

// replayWindow bounds how many trailing bars are kept per (token,TF) pair
// for snapshot/restore. The detectors themselves only ever look at a
// handful of trailing entries, but replay needs enough history that a
// restored analyzer reconstructs the same in-flight pen/segment state.
const replayWindow = 600

// tfState holds one Chan-detector pipeline and its bounded replay buffer
// for a single (token, TF) pair.
type tfState struct {
	analyzer *detect.Analyzer
	bars     []detect.Bar
}

// Engine runs one detect.Analyzer per (token, TF) pair. Designed for
// single-goroutine usage.
type Engine struct {
	tfs []int

	// state[tfIdx][tokenKey] -> *tfState
	state []map[string]*tfState
}

// NewEngine creates a structure engine for the given enabled timeframes.
func NewEngine(tfs []int) *Engine {
	state := make([]map[string]*tfState, len(tfs))
	for i := range state {
		state[i] = make(map[string]*tfState, 64)
	}
	return &Engine{tfs: tfs, state: state}
}

// Process feeds a finalized TF candle through its (token,TF) analyzer and
// returns the structure events it produced (zero, one, or several — a
// segment termination can close one segment and open another in the same
// call).
func (e *Engine) Process(tfc model.TFCandle) []model.StructureEvent {
	if tfc.Forming {
		return nil
	}
	tfIdx := e.tfIndex(tfc.TF)
	if tfIdx == -1 {
		return nil
	}

	key := tfc.Key()
	st, exists := e.state[tfIdx][key]
	if !exists {
		st = &tfState{analyzer: detect.NewAnalyzer()}
		e.state[tfIdx][key] = st
	}

	bar := barFromTFCandle(tfc)
	st.bars = append(st.bars, bar)
	if n := len(st.bars); n > replayWindow {
		st.bars = append(st.bars[:0:0], st.bars[n-replayWindow:]...)
	}

	ev := st.analyzer.OnNewBar(bar)
	return translateEvents(tfc, ev)
}

// tfIndex returns the index of tf among the enabled timeframes, or -1 if
// tf is not enabled.
func (e *Engine) tfIndex(tf int) int {
	for i, t := range e.tfs {
		if t == tf {
			return i
		}
	}
	return -1
}

func barFromTFCandle(tfc model.TFCandle) detect.Bar {
	const paise = 100.0
	return detect.NewBar(
		tfc.TS.Unix(),
		float64(tfc.Open)/paise,
		float64(tfc.High)/paise,
		float64(tfc.Low)/paise,
		float64(tfc.Close)/paise,
	)
}

// translateEvents turns one Analyzer.Events into the StructureEvents it
// implies, tagged with the instrument/TF/time it was produced from.
func translateEvents(tfc model.TFCandle, ev detect.Events) []model.StructureEvent {
	var out []model.StructureEvent

	if ev.Fractal != nil {
		out = append(out, structureFractal(tfc, *ev.Fractal))
	}
	if ev.Pen != nil {
		out = append(out, structurePen(tfc, *ev.Pen)...)
	}
	for _, seg := range ev.Segments {
		out = append(out, structureSegment(tfc, seg))
	}
	return out
}

func fractalSub(f detect.Fractal) string {
	if f.Type() == detect.Top {
		return "top"
	}
	return "bottom"
}

func structureFractal(tfc model.TFCandle, f detect.Fractal) model.StructureEvent {
	return model.StructureEvent{
		Kind:     model.StructureFractal,
		Sub:      fractalSub(f),
		Token:    tfc.Token,
		Exchange: tfc.Exchange,
		TF:       tfc.TF,
		Time:     f.Time(),
		Price:    f.Price(),
		TS:       tfc.TS,
	}
}

func structurePen(tfc model.TFCandle, pe detect.PenEvent) []model.StructureEvent {
	switch pe.Kind {
	case detect.PenEventFirst:
		return []model.StructureEvent{{
			Kind: model.StructurePen, Sub: "first",
			Token: tfc.Token, Exchange: tfc.Exchange, TF: tfc.TF,
			FromTime: pe.A.Time(), FromPrice: pe.A.Price(),
			ToTime: pe.B.Time(), ToPrice: pe.B.Price(),
			Time: pe.B.Time(), Price: pe.B.Price(),
			TS: tfc.TS,
		}}
	case detect.PenEventNew:
		return []model.StructureEvent{{
			Kind: model.StructurePen, Sub: "new",
			Token: tfc.Token, Exchange: tfc.Exchange, TF: tfc.TF,
			Time: pe.C.Time(), Price: pe.C.Price(),
			TS: tfc.TS,
		}}
	case detect.PenEventUpdateTo:
		return []model.StructureEvent{{
			Kind: model.StructurePen, Sub: "update_to",
			Token: tfc.Token, Exchange: tfc.Exchange, TF: tfc.TF,
			Time: pe.C.Time(), Price: pe.C.Price(),
			TS: tfc.TS,
		}}
	}
	return nil
}

func structureSegment(tfc model.TFCandle, seg detect.Segment) model.StructureEvent {
	dir := "up"
	if seg.Direction == detect.Down {
		dir = "down"
	}
	return model.StructureEvent{
		Kind: model.StructureSegment, Sub: "new",
		Token: tfc.Token, Exchange: tfc.Exchange, TF: tfc.TF,
		FromTime: seg.Start.Time(), FromPrice: seg.Start.Price(),
		ToTime: seg.End.Time(), ToPrice: seg.End.Price(),
		Time: seg.End.Time(), Price: seg.End.Price(),
		Direction: dir,
		TS:        tfc.TS,
	}
}
