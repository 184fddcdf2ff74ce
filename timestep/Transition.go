package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transition is a single environment transition stored in an
// off-policy buffer. A Transition should not be modified after
// creation.
//
// NextState holds only the last frame of the next observation.
// SkippedNextState, if non-nil, holds the last frame of the
// observation a full decision cadence after State.
type Transition struct {
	State            []float64
	Action           int
	OneHot           []float64
	NextState        []float64
	Mask             float64
	SkippedNextState []float64
}

// NewTransition returns a new Transition with a one-hot encoding of
// the action built from numActions
func NewTransition(state []float64, action, numActions int,
	nextState []float64, mask float64) (Transition, error) {
	if action < 0 || action >= numActions {
		return Transition{}, fmt.Errorf("newTransition: action out of "+
			"range \n\twant([0, %v))\n\thave(%v)", numActions, action)
	}
	oneHot := make([]float64, numActions)
	oneHot[action] = 1.0

	return Transition{
		State:     state,
		Action:    action,
		OneHot:    oneHot,
		NextState: nextState,
		Mask:      mask,
	}, nil
}

// OneHot returns a len(actions) x numActions matrix whose rows are the
// one-hot encodings of actions. OneHot panics if an action is out of
// range.
func OneHot(actions []int, numActions int) *mat.Dense {
	oneHot := mat.NewDense(len(actions), numActions, nil)
	for i, a := range actions {
		if a < 0 || a >= numActions {
			panic(fmt.Sprintf("oneHot: action %v out of range [0, %v)", a,
				numActions))
		}
		oneHot.Set(i, a, 1.0)
	}
	return oneHot
}

// ArgMax returns the index of the hot element of each row of a one-hot
// matrix
func ArgMax(oneHot mat.Matrix) []int {
	r, c := oneHot.Dims()
	actions := make([]int, r)
	for i := 0; i < r; i++ {
		best := oneHot.At(i, 0)
		for j := 1; j < c; j++ {
			if v := oneHot.At(i, j); v > best {
				best = v
				actions[i] = j
			}
		}
	}
	return actions
}
