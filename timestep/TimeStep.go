// Package timestep implements batched timesteps of the interaction
// between an agent and a vector of parallel environments
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either the
// first environmental step after a reset or any later step
type StepType int

const (
	First StepType = iota
	Mid
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep of N parallel
// environments. Row i of Observation, and element i of Reward and Masks
// all belong to environment i.
//
// Masks holds the continuation mask of each environment: 0.0 if the
// environment's episode ended on this step, and 1.0 otherwise.
type TimeStep struct {
	StepType
	Observation *mat.Dense
	Reward      *mat.VecDense
	Masks       *mat.VecDense
	Number      int
}

// New returns a new TimeStep
func New(t StepType, obs *mat.Dense, reward, masks *mat.VecDense,
	n int) TimeStep {
	return TimeStep{t, obs, reward, masks, n}
}

// First returns whether a TimeStep directly follows a reset
func (t TimeStep) First() bool {
	return t.StepType == First
}

// NumEnvs returns the number of parallel environments in the TimeStep
func (t TimeStep) NumEnvs() int {
	if t.Observation == nil {
		return 0
	}
	r, _ := t.Observation.Dims()
	return r
}

// MasksFromDone converts episode termination flags into continuation
// masks
func MasksFromDone(done []bool) *mat.VecDense {
	masks := mat.NewVecDense(len(done), nil)
	for i, d := range done {
		if !d {
			masks.SetVec(i, 1.0)
		}
	}
	return masks
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Envs: %v  |  Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.NumEnvs(), t.Number)
}
