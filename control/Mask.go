package control

import (
	"fmt"

	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

// MaskEstimator estimates which grid cells an agent directly
// controls. A cell is considered directly controlled on a step if the
// mean absolute change of its pixels between the last frame of the
// previous observation and the new frame exceeds Threshold; a sprite
// moved by the agent's action is the typical source of such change.
//
// A MaskEstimator has no state beyond its geometry.
type MaskEstimator struct {
	grid      Grid
	shape     timestep.Shape
	threshold float64
}

// NewMaskEstimator returns a new MaskEstimator
func NewMaskEstimator(grid Grid, shape timestep.Shape,
	threshold float64) (*MaskEstimator, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("newMaskEstimator: threshold must be "+
			"non-negative \n\twant(>=0)\n\thave(%v)", threshold)
	}
	return &MaskEstimator{grid: grid, shape: shape, threshold: threshold}, nil
}

// Grid returns the grid geometry of the estimator
func (m *MaskEstimator) Grid() Grid { return m.grid }

// Estimate returns an N x cells matrix of 0/1 values, one row per
// environment, marking the directly controlled cells. last holds
// stacked observations and now holds the single newest frame of each
// environment.
func (m *MaskEstimator) Estimate(last, now *mat.Dense) (*mat.Dense, error) {
	if err := checkBatch("estimate", m.shape, last, now); err != nil {
		return nil, err
	}
	mask := m.grid.PoolChangeBatch(m.shape, last, now)
	mask.Apply(func(_, _ int, v float64) float64 {
		if v > m.threshold {
			return 1.0
		}
		return 0.0
	}, mask)
	return mask, nil
}

// checkBatch ensures that a batch of stacked observations and a batch
// of frames agree with shape and with each other
func checkBatch(op string, shape timestep.Shape, last, now *mat.Dense) error {
	lr, lc := last.Dims()
	nr, nc := now.Dims()
	if lc != shape.Size() {
		return fmt.Errorf("%v: invalid observation size \n\twant(%v)"+
			"\n\thave(%v)", op, shape.Size(), lc)
	}
	if nc != shape.FrameSize() {
		return fmt.Errorf("%v: invalid frame size \n\twant(%v)"+
			"\n\thave(%v)", op, shape.FrameSize(), nc)
	}
	if lr != nr {
		return fmt.Errorf("%v: batch sizes differ \n\twant(%v)\n\thave(%v)",
			op, lr, nr)
	}
	return nil
}
