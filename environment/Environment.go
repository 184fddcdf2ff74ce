// Package environment outlines the interfaces and structs needed to
// implement vectors of parallel environments
package environment

import (
	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() []float64
}

// Episode summarizes an episode that ended on some step
type Episode struct {
	Return float64
	Length int
}

// Info holds per-environment diagnostic information about a step.
// Episode is non-nil only on steps which ended an episode.
type Info struct {
	Episode *Episode
}

// VecEnv implements N parallel copies of an environment with discrete
// actions. Row i of each observation, and element i of each reward and
// done slice belong to environment i.
//
// Environments whose episodes end are reset automatically, so the
// observation returned by Step on such steps is the first observation
// of the next episode.
type VecEnv interface {
	Reset() (*mat.Dense, error)
	Step(actions []int) (obs *mat.Dense, reward *mat.VecDense, done []bool,
		infos []Info, err error)

	// Shape returns the shape of a single stacked observation
	Shape() timestep.Shape
	NumActions() int
	NumEnvs() int
}

// Returns collects the returns of all episodes that ended in infos
func Returns(infos []Info) []float64 {
	var returns []float64
	for _, info := range infos {
		if info.Episode != nil {
			returns = append(returns, info.Episode.Return)
		}
	}
	return returns
}
