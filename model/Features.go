package model

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/mega/control"
	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

// featurizer turns (state, frame, action) triples into network inputs.
// Each frame is reduced to its grid cell means, so an input holds the
// pooled stacked state, the pooled frame and the one-hot action:
//
//	[stack*cells | cells | actions]
type featurizer struct {
	shape      timestep.Shape
	grid       control.Grid
	numActions int

	// If false, the action part of inputs is left as zero
	actionConditional bool
}

func (f featurizer) size() int {
	cells := f.grid.Cells()
	return f.shape.Stack*cells + cells + f.numActions
}

// inputs fills out, a (rows * size) row-major slice, with the features
// of each row of the batch
func (f featurizer) inputs(last, now, onehot *mat.Dense, out []float64) error {
	if err := f.check(last, now, onehot); err != nil {
		return err
	}
	rows, _ := last.Dims()
	cells, frame := f.grid.Cells(), f.shape.FrameSize()
	size := f.size()
	if len(out) != rows*size {
		return fmt.Errorf("inputs: invalid output size \n\twant(%v)"+
			"\n\thave(%v)", rows*size, len(out))
	}

	for i := 0; i < rows; i++ {
		row := out[i*size : (i+1)*size]
		state := last.RawRowView(i)
		for s := 0; s < f.shape.Stack; s++ {
			f.grid.Pool(state[s*frame:(s+1)*frame], row[s*cells:(s+1)*cells])
		}
		offset := f.shape.Stack * cells
		f.grid.Pool(now.RawRowView(i), row[offset:offset+cells])

		action := row[offset+cells:]
		if f.actionConditional {
			copy(action, onehot.RawRowView(i))
		} else {
			for j := range action {
				action[j] = 0
			}
		}
	}
	return nil
}

// change returns the squashed per-cell change between the frames of
// before and after, before rows being single frames, as an
// (rows * cells) row-major slice. Changes are squashed with tanh to
// lie in [0, 1).
func (f featurizer) change(before, after *mat.Dense) []float64 {
	rows, _ := after.Dims()
	cells := f.grid.Cells()
	out := make([]float64, rows*cells)
	for i := 0; i < rows; i++ {
		row := out[i*cells : (i+1)*cells]
		f.grid.PoolChange(before.RawRowView(i), after.RawRowView(i), row)
		for j := range row {
			row[j] = math.Tanh(row[j])
		}
	}
	return out
}

// lastFrames returns the last frame of each stacked state in states
func (f featurizer) lastFrames(states *mat.Dense) *mat.Dense {
	rows, _ := states.Dims()
	out := mat.NewDense(rows, f.shape.FrameSize(), nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, f.shape.LastFrame(states.RawRowView(i)))
	}
	return out
}

func (f featurizer) check(last, now, onehot *mat.Dense) error {
	lr, lc := last.Dims()
	nr, nc := now.Dims()
	ar, ac := onehot.Dims()
	if lc != f.shape.Size() || nc != f.shape.FrameSize() ||
		ac != f.numActions {
		return fmt.Errorf("check: invalid input widths \n\twant(%v, %v, %v)"+
			"\n\thave(%v, %v, %v)", f.shape.Size(), f.shape.FrameSize(),
			f.numActions, lc, nc, ac)
	}
	if lr != nr || lr != ar {
		return fmt.Errorf("check: batch sizes differ: (%v, %v, %v)", lr, nr,
			ar)
	}
	return nil
}
