package model

import (
	"fmt"

	"github.com/samuelfneumann/mega/buffer/replay"
	"github.com/samuelfneumann/mega/control"
	"github.com/samuelfneumann/mega/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LatentConfig configures a Latent model
type LatentConfig struct {
	Config

	// ActionConditional determines whether the action is an input
	ActionConditional bool

	// NoiseEpsilon scales the uniform noise added to training states,
	// relative to Bound. No noise is added if it is zero.
	NoiseEpsilon float64

	// Bound is the largest magnitude of a normalized observation
	Bound float64

	Seed uint64
}

// Latent predicts, for each grid cell, how much the cell changes over
// the decision cadence following the next frame. The change is caused
// by the agent only indirectly, through the dynamics of the
// environment, and accumulates into the latent control map.
type Latent struct {
	*net
	noise *distuv.Uniform
}

// NewLatent returns a new Latent model for observations of the given
// shape. Inference is performed on batches of numEnvs inputs.
func NewLatent(shape timestep.Shape, grid control.Grid, numActions,
	numEnvs int, c LatentConfig) (*Latent, error) {
	if c.NoiseEpsilon < 0 || (c.NoiseEpsilon > 0 && c.Bound <= 0) {
		return nil, fmt.Errorf("newLatent: noise requires a positive "+
			"bound: epsilon(%v) bound(%v)", c.NoiseEpsilon, c.Bound)
	}
	feat := featurizer{
		shape:             shape,
		grid:              grid,
		numActions:        numActions,
		actionConditional: c.ActionConditional,
	}
	n, err := newNet(feat, numEnvs, c.Config)
	if err != nil {
		return nil, fmt.Errorf("newLatent: %v", err)
	}

	var noise *distuv.Uniform
	if c.NoiseEpsilon > 0 {
		scale := c.NoiseEpsilon * c.Bound
		noise = &distuv.Uniform{
			Min: -scale,
			Max: scale,
			Src: rand.NewSource(c.Seed),
		}
	}

	return &Latent{net: n, noise: noise}, nil
}

// Score implements the control.Scorer interface
func (l *Latent) Score(last, now, onehot *mat.Dense) (*mat.Dense, error) {
	return l.predict(last, now, onehot)
}

// BatchSize returns the number of transitions in a training batch
func (l *Latent) BatchSize() int { return l.batchSize }

// Train performs one update on a mini-batch sampled from a replay
// buffer and returns the loss. If the batch holds skipped next states,
// the target is the change from the next state to the skipped next
// state. Otherwise it is the change from the last frame of the state
// to the next state.
func (l *Latent) Train(batch map[string]*mat.Dense) (float64, error) {
	states, next := batch[replay.States], batch[replay.NextStates]

	var target []float64
	if skipped, ok := batch[replay.SkippedNextStates]; ok {
		target = l.feat.change(next, skipped)
	} else {
		target = l.feat.change(l.feat.lastFrames(states), next)
	}

	if l.noise != nil {
		noisy := mat.DenseCopyOf(states)
		noisy.Apply(func(_, _ int, v float64) float64 {
			return v + l.noise.Rand()
		}, noisy)
		states = noisy
	}
	return l.update(states, next, batch[replay.Actions], target)
}

// Store implements the checkpointer.Persistable interface
func (l *Latent) Store(path string) error { return l.store(path) }

// Restore implements the checkpointer.Persistable interface
func (l *Latent) Restore(path string) error { return l.restore(path) }
