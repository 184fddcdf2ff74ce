package timestep

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestOneHot(t *testing.T) {
	actions := []int{2, 0, 1}
	oneHot := OneHot(actions, 3)

	want := mat.NewDense(3, 3, []float64{
		0, 0, 1,
		1, 0, 0,
		0, 1, 0,
	})
	if !mat.Equal(oneHot, want) {
		t.Errorf("oneHot: \n\twant(%v)\n\thave(%v)", want, oneHot)
	}

	back := ArgMax(oneHot)
	for i := range actions {
		if back[i] != actions[i] {
			t.Errorf("argMax: \n\twant(%v)\n\thave(%v)", actions, back)
		}
	}
}

func TestNewTransitionActionRange(t *testing.T) {
	if _, err := NewTransition(nil, 3, 3, nil, 1.0); err == nil {
		t.Error("newTransition: expected error for out of range action")
	}

	tr, err := NewTransition([]float64{1}, 1, 3, []float64{2}, 0.0)
	if err != nil {
		t.Fatal(err)
	}
	if tr.OneHot[1] != 1.0 || tr.OneHot[0] != 0.0 || tr.OneHot[2] != 0.0 {
		t.Errorf("newTransition: invalid one-hot encoding %v", tr.OneHot)
	}
}

func TestShapeLastFrame(t *testing.T) {
	s := Shape{Stack: 2, Height: 1, Width: 2}
	obs := []float64{1, 2, 3, 4}
	last := s.LastFrame(obs)
	if len(last) != 2 || last[0] != 3 || last[1] != 4 {
		t.Errorf("lastFrame: \n\twant([3 4])\n\thave(%v)", last)
	}
	if s.Size() != 4 {
		t.Errorf("size: \n\twant(4)\n\thave(%v)", s.Size())
	}
}

func TestMasksFromDone(t *testing.T) {
	masks := MasksFromDone([]bool{true, false})
	if masks.AtVec(0) != 0 || masks.AtVec(1) != 1 {
		t.Errorf("masksFromDone: \n\twant([0 1])\n\thave(%v)",
			masks.RawVector().Data)
	}
}
