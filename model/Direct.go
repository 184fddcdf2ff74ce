// Package model implements learned control scoring models and the
// trainer that fits them to transitions from a replay buffer
package model

import (
	"fmt"

	"github.com/samuelfneumann/mega/buffer/replay"
	"github.com/samuelfneumann/mega/control"
	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

// Direct predicts, for each grid cell, how much the cell changes in
// response to the action taken in a state. Its scores are multiplied
// by the direct control mask to produce the direct control map.
type Direct struct {
	*net
}

// NewDirect returns a new Direct model for observations of the given
// shape. Inference is performed on batches of numEnvs inputs.
func NewDirect(shape timestep.Shape, grid control.Grid, numActions,
	numEnvs int, c Config) (*Direct, error) {
	feat := featurizer{
		shape:             shape,
		grid:              grid,
		numActions:        numActions,
		actionConditional: true,
	}
	n, err := newNet(feat, numEnvs, c)
	if err != nil {
		return nil, fmt.Errorf("newDirect: %v", err)
	}
	return &Direct{n}, nil
}

// Score implements the control.Scorer interface
func (d *Direct) Score(last, now, onehot *mat.Dense) (*mat.Dense, error) {
	return d.predict(last, now, onehot)
}

// BatchSize returns the number of transitions in a training batch
func (d *Direct) BatchSize() int { return d.batchSize }

// Train performs one update on a mini-batch sampled from a replay
// buffer and returns the loss. The target of each transition is the
// per-cell change from the last frame of the state to the next state.
func (d *Direct) Train(batch map[string]*mat.Dense) (float64, error) {
	states, next := batch[replay.States], batch[replay.NextStates]
	target := d.feat.change(d.feat.lastFrames(states), next)
	return d.update(states, next, batch[replay.Actions], target)
}

// Store implements the checkpointer.Persistable interface
func (d *Direct) Store(path string) error { return d.store(path) }

// Restore implements the checkpointer.Persistable interface
func (d *Direct) Restore(path string) error { return d.restore(path) }
