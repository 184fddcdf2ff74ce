package control

import (
	"testing"

	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

func TestGridFloorsCellSize(t *testing.T) {
	shape := timestep.Shape{Stack: 1, Height: 7, Width: 7}
	g, err := NewGrid(shape, 3)
	if err != nil {
		t.Fatal(err)
	}
	if g.CellH != 2 || g.CellW != 2 {
		t.Errorf("cell size: \n\twant(2, 2)\n\thave(%v, %v)", g.CellH, g.CellW)
	}

	// The last row and column of the frame are discarded
	frame := make([]float64, 49)
	for i := 0; i < 7; i++ {
		frame[6*7+i] = 100
		frame[i*7+6] = 100
	}
	for i, v := range g.Pool(frame, nil) {
		if v != 0 {
			t.Errorf("pool: cell %v should ignore the border, have %v", i, v)
		}
	}

	if _, err := NewGrid(shape, 8); err == nil {
		t.Error("newGrid: expected error when cells would be empty")
	}
}

func TestGridPool(t *testing.T) {
	shape := timestep.Shape{Stack: 1, Height: 4, Width: 4}
	g, err := NewGrid(shape, 2)
	if err != nil {
		t.Fatal(err)
	}
	frame := []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		0, 4, 3, 3,
		0, 4, 3, 3,
	}
	want := []float64{1, 2, 2, 3}
	have := g.Pool(frame, nil)
	for i := range want {
		if want[i] != have[i] {
			t.Errorf("pool: \n\twant(%v)\n\thave(%v)", want, have)
			break
		}
	}
}

func TestMaskEstimator(t *testing.T) {
	shape := timestep.Shape{Stack: 2, Height: 4, Width: 4}
	g, _ := NewGrid(shape, 2)
	m, err := NewMaskEstimator(g, shape, 0.1)
	if err != nil {
		t.Fatal(err)
	}

	// First environment: top-left cell changes. Second: nothing
	last := mat.NewDense(2, shape.Size(), nil)
	now := mat.NewDense(2, shape.FrameSize(), nil)
	now.Set(0, 0, 1.0)

	mask, err := m.Estimate(last, now)
	if err != nil {
		t.Fatal(err)
	}
	want := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 0, 0, 0,
	})
	if !mat.Equal(mask, want) {
		t.Errorf("estimate: \n\twant(%v)\n\thave(%v)", want, mask)
	}

	if _, err := m.Estimate(last, mat.NewDense(1, 16, nil)); err == nil {
		t.Error("estimate: expected error on batch size mismatch")
	}
}
