// Package experiment implements the training loop of an agent trained
// on intrinsic rewards derived from control maps
package experiment

import (
	"context"
	"log/slog"

	"github.com/samuelfneumann/mega/control"
	"github.com/samuelfneumann/mega/environment"
	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"github.com/samuelfneumann/mega/telemetry"
)

// Experiment runs a training run one update at a time. Each update
// collects a rollout, updates the agent and the control scoring
// models, and checkpoints and logs on their intervals.
type Experiment interface {
	// RunUpdate runs a single update and returns its statistics
	RunUpdate(ctx context.Context) (map[string]float64, error)

	// Run runs updates until the run is over or ctx is cancelled
	Run(ctx context.Context) error

	// Checkpoint stores the state of all stateful components
	Checkpoint() error

	// Evaluate returns the mean extrinsic return of the policy over
	// evaluation episodes in env
	Evaluate(ctx context.Context, env environment.VecEnv) (float64, error)
}

// Options configures the surroundings of a Trainer
type Options struct {
	// LogDir is the directory in which checkpoints and control map
	// images are stored. If empty, nothing is stored.
	LogDir string

	// MapImages determines whether an image of the control map of the
	// first environment is stored on each checkpoint
	MapImages bool

	// EvalEnv holds separately seeded copies of the training
	// environments in which the policy is evaluated every
	// EvalInterval updates. No evaluation is run if nil.
	EvalEnv environment.VecEnv

	Logger *slog.Logger
	Sink   telemetry.Sink
}

// Context holds the progress of a training run. It is owned by a
// single Trainer and passed explicitly to the components that need it.
type Context struct {
	// Update is the index of the next update
	Update int

	// Step is the step within the current rollout
	Step int

	// Frames is the number of frames trained on before the current
	// update
	Frames int

	// Control holds the control maps of the most recent on-cadence
	// step
	Control control.State

	// Map holds the post-processed control maps the most recent
	// intrinsic rewards were computed from
	Map *Map

	// AgentUpdated is whether the agent has been updated at least once
	AgentUpdated bool
}

// Map is a post-processed control map of one environment
type Map struct {
	Values []float64
	Frames int
}

type progress struct {
	Update       int
	AgentUpdated bool
}

// Store implements the checkpointer.Persistable interface. Only the
// progress counters of a Context are stored. Control maps are rebuilt
// from scratch after a restart.
func (c *Context) Store(path string) error {
	return checkpointer.StoreGob(path, progress{c.Update, c.AgentUpdated})
}

// Restore implements the checkpointer.Persistable interface
func (c *Context) Restore(path string) error {
	var p progress
	if err := checkpointer.RestoreGob(path, &p); err != nil {
		return err
	}
	c.Update, c.AgentUpdated = p.Update, p.AgentUpdated
	return nil
}
