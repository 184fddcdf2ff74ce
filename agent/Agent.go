// Package agent defines the policy and policy optimizer interfaces
// which drive the training loop
package agent

import (
	"github.com/samuelfneumann/mega/buffer/rollout"
	"gonum.org/v1/gonum/mat"
)

// Act is the output of a Policy on a batch of observations, one row
// or element per environment
type Act struct {
	Values   *mat.VecDense
	Actions  []int
	LogProbs *mat.VecDense

	// Hidden holds the next recurrent states, or nil if the Policy
	// is not recurrent
	Hidden *mat.Dense
}

// Policy selects actions in N parallel environments. Hidden holds the
// recurrent state of each environment and masks the continuation mask
// of the step that produced obs.
type Policy interface {
	Act(obs, hidden *mat.Dense, masks *mat.VecDense) (Act, error)
	Value(obs, hidden *mat.Dense, masks *mat.VecDense) (*mat.VecDense, error)

	// HiddenSize returns the size of the recurrent state, 0 if the
	// Policy is not recurrent
	HiddenSize() int
}

// Deterministic is implemented by policies that can select their most
// likely actions instead of sampling, as used during evaluation
type Deterministic interface {
	ActDeterministic(obs, hidden *mat.Dense, masks *mat.VecDense) (Act,
		error)
}

// Updater implements a policy optimizer which updates a Policy from a
// filled rollout buffer whose returns have been computed. It returns
// named training statistics.
type Updater interface {
	Update(*rollout.Buffer) (map[string]float64, error)
}

// UpdaterFunc adapts a function to the Updater interface
type UpdaterFunc func(*rollout.Buffer) (map[string]float64, error)

// Update implements the Updater interface
func (f UpdaterFunc) Update(b *rollout.Buffer) (map[string]float64, error) {
	return f(b)
}
