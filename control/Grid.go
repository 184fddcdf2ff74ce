// Package control estimates which parts of an observation an agent
// controls and aggregates those estimates over a decision cadence
package control

import (
	"fmt"

	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Grid partitions a frame into NumGrid x NumGrid equal-area cells.
// Cell sizes are floored, so when the frame size is not divisible by
// NumGrid the bottom and right borders of the frame are discarded.
type Grid struct {
	NumGrid int
	CellH   int
	CellW   int
	width   int
}

// NewGrid returns a new Grid over frames of the given shape
func NewGrid(shape timestep.Shape, numGrid int) (Grid, error) {
	if numGrid < 1 {
		return Grid{}, fmt.Errorf("newGrid: numGrid must be positive "+
			"\n\twant(>=1)\n\thave(%v)", numGrid)
	}
	if err := shape.Validate(); err != nil {
		return Grid{}, fmt.Errorf("newGrid: %v", err)
	}

	cellH, cellW := shape.Height/numGrid, shape.Width/numGrid
	if cellH == 0 || cellW == 0 {
		return Grid{}, fmt.Errorf("newGrid: frame %vx%v too small for %v "+
			"cells per side", shape.Height, shape.Width, numGrid)
	}

	return Grid{
		NumGrid: numGrid,
		CellH:   cellH,
		CellW:   cellW,
		width:   shape.Width,
	}, nil
}

// Cells returns the total number of cells in the grid
func (g Grid) Cells() int {
	return g.NumGrid * g.NumGrid
}

// Cell returns the row and column of the cell with flat index i
func (g Grid) Cell(i int) (row, col int) {
	return i / g.NumGrid, i % g.NumGrid
}

// Pool returns the mean of frame over each grid cell in row-major
// order. If out is nil a new slice is allocated.
func (g Grid) Pool(frame, out []float64) []float64 {
	if out == nil {
		out = make([]float64, g.Cells())
	}
	area := float64(g.CellH * g.CellW)

	for i := 0; i < g.NumGrid; i++ {
		for j := 0; j < g.NumGrid; j++ {
			sum := 0.0
			for r := i * g.CellH; r < (i+1)*g.CellH; r++ {
				start := r*g.width + j*g.CellW
				sum += floats.Sum(frame[start : start+g.CellW])
			}
			out[i*g.NumGrid+j] = sum / area
		}
	}
	return out
}

// PoolChange returns the mean absolute difference between two frames
// over each grid cell in row-major order
func (g Grid) PoolChange(before, after, out []float64) []float64 {
	diff := make([]float64, len(after))
	floats.SubTo(diff, after, before)
	for i := range diff {
		if diff[i] < 0 {
			diff[i] = -diff[i]
		}
	}
	return g.Pool(diff, out)
}

// PoolChangeBatch computes PoolChange for each row of a batch. Rows of
// before are stacked observations of which only the last frame is
// used, and rows of after are single frames.
func (g Grid) PoolChangeBatch(shape timestep.Shape, before,
	after mat.RawMatrixer) *mat.Dense {
	b, a := before.RawMatrix(), after.RawMatrix()
	out := mat.NewDense(a.Rows, g.Cells(), nil)
	for i := 0; i < a.Rows; i++ {
		last := shape.LastFrame(b.Data[i*b.Stride : i*b.Stride+b.Cols])
		now := a.Data[i*a.Stride : i*a.Stride+a.Cols]
		g.PoolChange(last, now, out.RawRowView(i))
	}
	return out
}
