// Package config implements the JSON configuration of a training run
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/samuelfneumann/mega/buffer/replay"
	"github.com/samuelfneumann/mega/countbonus"
	"github.com/samuelfneumann/mega/environment/gridworld"
	"github.com/samuelfneumann/mega/initwfn"
	"github.com/samuelfneumann/mega/intrinsic"
	"github.com/samuelfneumann/mega/model"
	"github.com/samuelfneumann/mega/network"
	"github.com/samuelfneumann/mega/solver"
)

// ControlModel configures the networks of the control scoring models
type ControlModel struct {
	Hidden        []int                  `json:"hidden"`
	Activation    network.ActivationType `json:"activation"`
	Solver        *solver.Solver         `json:"solver"`
	Init          *initwfn.InitWFn       `json:"init,omitempty"`
	MiniBatchSize int                    `json:"control_model_mini_batch_size"`
	NumIterations int                    `json:"num_iterations"`
}

// Model returns the configuration of a single control scoring model
func (c ControlModel) Model() model.Config {
	return model.Config{
		Hidden:     append([]int(nil), c.Hidden...),
		Activation: c.Activation,
		Solver:     c.Solver,
		BatchSize:  c.MiniBatchSize,
		Init:       c.Init,
	}
}

// Config is the configuration of a training run. A Config is loaded
// once at startup and is not modified afterwards.
type Config struct {
	Seed        uint64 `json:"seed"`
	NumEnvs     int    `json:"num_processes"`
	NumSteps    int    `json:"num_steps"`
	NumEnvSteps int    `json:"num_env_steps"`

	Env gridworld.Config `json:"env"`

	// Control maps
	NumGrid               int     `json:"num_grid"`
	GSkip                 int     `json:"G_skip"`
	ControlMaskThreshold  float64 `json:"control_mask_threshold"`
	LatentControlDiscount float64 `json:"latent_control_discount"`

	// Count-based bonus
	HashType       countbonus.HashType `json:"hash_type"`
	HardHashM      int                 `json:"hard_hash_m"`
	SimHashK       int                 `json:"sim_hash_k"`
	IndexNormalize bool                `json:"index_hash_normalize"`

	// Intrinsic rewards
	TrainWithReward intrinsic.Mode       `json:"train_with_reward"`
	RewardType      intrinsic.Descriptor `json:"latent_control_intrinsic_reward_type"`
	ClipIR          float64              `json:"clip_ir"`
	EmptyValue      float64              `json:"empty_value"`
	NormRew         bool                 `json:"norm_rew"`

	// Warm-up horizons, in frames
	NumFramesRandomAct   int `json:"num_frames_random_act_no_agent_update"`
	NumFramesNoNormBin   int `json:"num_frames_no_norm_binary_updates"`
	NumFramesNoNormRew   int `json:"num_frames_no_norm_rew_updates"`
	NumFramesObsNormInit int `json:"num_frames_obs_norm"`

	// Replay of transitions for the control scoring models
	ReplaySize         int         `json:"prioritized_replay_buffer_size"`
	ReplayMode         replay.Mode `json:"prioritized_replay_buffer_mode"`
	RemoveInterEpisode bool        `json:"is_remove_inter_episode_transitions"`

	// Control scoring models
	ControlModel            ControlModel `json:"control_model"`
	LatentActionConditional bool         `json:"is_latent_control_action_conditional"`
	NoiseEpsilon            float64      `json:"epsilon"`

	// Returns
	UseGAE bool    `json:"use_gae"`
	Gamma  float64 `json:"gamma"`
	Tau    float64 `json:"tau"`

	SaveInterval int `json:"save_interval"`
	LogInterval  int `json:"log_interval"`

	// Evaluation of the deterministic policy in separately seeded
	// environments every EvalInterval updates. Disabled if zero.
	EvalInterval int `json:"eval_interval"`
	EvalEpisodes int `json:"eval_episodes"`
}

// Default returns a Config which trains on intrinsic rewards of the
// latent control map in a small pixel gridworld
func Default() Config {
	adam, err := solver.NewDefaultAdam(1e-3, 1)
	if err != nil {
		panic(fmt.Sprintf("default: %v", err))
	}

	return Config{
		Seed:        1,
		NumEnvs:     4,
		NumSteps:    5,
		NumEnvSteps: 100_000,
		Env: gridworld.Config{
			Rows:       5,
			Cols:       5,
			Scale:      4,
			Stack:      2,
			StepLimit:  100,
			GoalReward: 1.0,
			Distractor: true,
		},

		NumGrid:               5,
		GSkip:                 1,
		ControlMaskThreshold:  0.0,
		LatentControlDiscount: 0.99,

		HashType:       countbonus.Hard,
		HardHashM:      128,
		SimHashK:       16,
		IndexNormalize: true,

		TrainWithReward: intrinsic.Intrinsic,
		RewardType: intrinsic.Descriptor{
			Source:   intrinsic.Latent,
			Post:     intrinsic.NoPost,
			Reserved: "x",
			Bonus:    intrinsic.NoBonus,
		},
		ClipIR:     0.0,
		EmptyValue: 0.0,
		NormRew:    true,

		NumFramesRandomAct:   5_000,
		NumFramesNoNormBin:   5_000,
		NumFramesNoNormRew:   5_000,
		NumFramesObsNormInit: 1_000,

		ReplaySize:         10_000,
		ReplayMode:         replay.Fifo,
		RemoveInterEpisode: true,

		ControlModel: ControlModel{
			Hidden:        []int{64},
			Activation:    network.ReLUType,
			Solver:        adam,
			MiniBatchSize: 32,
			NumIterations: 1,
		},

		Gamma: 0.99,
		Tau:   0.95,

		SaveInterval: 100,
		LogInterval:  10,
		EvalInterval: 0,
		EvalEpisodes: 10,
	}
}

// Load loads and validates the Config in the JSON file at path. Fields
// absent from the file keep their Default values, and unknown fields
// are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}

	c := Default()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("load: could not decode %v: %v", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}
	return c, nil
}

// Save writes the Config to path as indented JSON
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"num_processes", c.NumEnvs},
		{"num_steps", c.NumSteps},
		{"num_env_steps", c.NumEnvSteps},
		{"num_grid", c.NumGrid},
		{"G_skip", c.GSkip},
		{"prioritized_replay_buffer_size", c.ReplaySize},
		{"save_interval", c.SaveInterval},
		{"log_interval", c.LogInterval},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("validate: %v must be positive \n\twant(>=1)"+
				"\n\thave(%v)", p.name, p.value)
		}
	}
	if c.GSkip > c.NumSteps {
		return fmt.Errorf("validate: G_skip cannot exceed num_steps "+
			"\n\twant(<=%v)\n\thave(%v)", c.NumSteps, c.GSkip)
	}
	if c.NumEnvSteps < c.NumEnvs*c.NumSteps {
		return fmt.Errorf("validate: num_env_steps must allow one update "+
			"\n\twant(>=%v)\n\thave(%v)", c.NumEnvs*c.NumSteps,
			c.NumEnvSteps)
	}

	if err := c.Env.Validate(); err != nil {
		return err
	}
	if err := c.TrainWithReward.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.RewardType.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.ReplayMode.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if err := c.HashType.Validate(); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.RewardType.Bonus == intrinsic.HashCountBonus {
		switch c.HashType {
		case countbonus.Hard:
			if c.HardHashM < 1 {
				return fmt.Errorf("validate: hard_hash_m must be positive "+
					"\n\twant(>=1)\n\thave(%v)", c.HardHashM)
			}
		case countbonus.Sim:
			if c.SimHashK < 1 || c.SimHashK > countbonus.MaxSimBits {
				return fmt.Errorf("validate: sim_hash_k out of range "+
					"\n\twant([1, %v])\n\thave(%v)", countbonus.MaxSimBits,
					c.SimHashK)
			}
		}
	}

	if c.TrainWithReward.UsesIntrinsic() {
		if err := c.ControlModel.Model().Validate(); err != nil {
			return fmt.Errorf("validate: control model: %v", err)
		}
		if c.ControlModel.NumIterations < 1 {
			return fmt.Errorf("validate: num_iterations must be positive "+
				"\n\twant(>=1)\n\thave(%v)", c.ControlModel.NumIterations)
		}
	}

	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: gamma out of range \n\twant([0, 1])"+
			"\n\thave(%v)", c.Gamma)
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("validate: tau out of range \n\twant([0, 1])"+
			"\n\thave(%v)", c.Tau)
	}
	if c.LatentControlDiscount < 0 || c.LatentControlDiscount > 1 {
		return fmt.Errorf("validate: latent_control_discount out of range "+
			"\n\twant([0, 1])\n\thave(%v)", c.LatentControlDiscount)
	}
	if c.NoiseEpsilon < 0 {
		return fmt.Errorf("validate: epsilon must be non-negative "+
			"\n\twant(>=0)\n\thave(%v)", c.NoiseEpsilon)
	}
	if c.NumFramesObsNormInit < 0 {
		return fmt.Errorf("validate: num_frames_obs_norm must be "+
			"non-negative \n\twant(>=0)\n\thave(%v)", c.NumFramesObsNormInit)
	}
	if c.EvalInterval < 0 {
		return fmt.Errorf("validate: eval_interval must be non-negative "+
			"\n\twant(>=0)\n\thave(%v)", c.EvalInterval)
	}
	if c.EvalInterval > 0 && c.EvalEpisodes < 1 {
		return fmt.Errorf("validate: eval_episodes must be positive when "+
			"evaluating \n\twant(>=1)\n\thave(%v)", c.EvalEpisodes)
	}
	return nil
}

// EvalSeed returns the seed of the evaluation environments, which
// differs from the seed of the training environments
func (c Config) EvalSeed() uint64 {
	return c.Seed + uint64(c.NumEnvs)
}

// IsEvaluating returns whether the policy is evaluated after update j
func (c Config) IsEvaluating(j int) bool {
	return c.EvalInterval > 0 && j%c.EvalInterval == 0
}

// NumUpdates returns the number of updates of the run
func (c Config) NumUpdates() int {
	return c.NumEnvSteps / c.NumSteps / c.NumEnvs
}

// FramesPerUpdate returns the number of environment frames collected
// in a single update
func (c Config) FramesPerUpdate() int {
	return c.NumSteps * c.NumEnvs
}

// ReplayKeys returns the keys of transitions stored for training the
// control scoring models
func (c Config) ReplayKeys() []string {
	return replay.Keys(c.RemoveInterEpisode, c.GSkip)
}

// Schedule returns the warm-up schedule of the run
func (c Config) Schedule() Schedule {
	return Schedule{
		Intrinsic:    c.TrainWithReward.UsesIntrinsic(),
		RandomAct:    c.NumFramesRandomAct,
		NoNormBinary: c.NumFramesNoNormBin,
		NoNormReward: c.NumFramesNoNormRew,
		NormReward:   c.NormRew,
	}
}
