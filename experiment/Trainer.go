package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/samuelfneumann/mega/agent"
	"github.com/samuelfneumann/mega/buffer/replay"
	"github.com/samuelfneumann/mega/buffer/rollout"
	"github.com/samuelfneumann/mega/config"
	"github.com/samuelfneumann/mega/control"
	"github.com/samuelfneumann/mega/countbonus"
	"github.com/samuelfneumann/mega/environment"
	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"github.com/samuelfneumann/mega/intrinsic"
	"github.com/samuelfneumann/mega/model"
	"github.com/samuelfneumann/mega/normalize"
	"github.com/samuelfneumann/mega/telemetry"
	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

// Names under which components are checkpointed in the log directory
const (
	ProgressFile     = "progress"
	ObsNormFile      = "obs_norm"
	ReturnsFile      = "returns"
	LearnerFile      = "learner"
	DirectModelFile  = "direct_control_model"
	LatentModelFile  = "latent_control_model"
	CountBonusFile   = "hash_count_bonus"
	BinaryNormFile   = "running_binary_norm"
	RewardNormFile   = "rew_normalizer"
	ReplayBufferFile = "prioritized_replay_buffer"
)

// ErrInProgress is returned when checkpointing a Trainer whose current
// update was interrupted partway through its rollout
var ErrInProgress = errors.New("update in progress")

// mapCellPixels is the side length in pixels of a grid cell in control
// map images
const mapCellPixels = 16

// Trainer trains an agent in a vector of environments, optionally on
// intrinsic rewards computed from the control maps of the agent. The
// control scoring models are fit to replayed transitions after every
// update.
type Trainer struct {
	config config.Config
	sched  config.Schedule
	opts   Options
	logger *slog.Logger
	sink   telemetry.Sink

	env      environment.VecEnv
	shape    timestep.Shape
	policy   agent.Policy
	updater  agent.Updater
	explorer *agent.Random

	obsNorm *normalize.ObsNorm
	rollout *rollout.Buffer
	returns *telemetry.Returns

	// Components of intrinsic motivation, nil when training on
	// extrinsic rewards only
	aggregator *control.Aggregator
	generator  *intrinsic.Generator
	rewNorm    *normalize.RunningMeanStd
	replay     *replay.Buffer
	models     *model.Trainer

	set   *checkpointer.Set
	saver *checkpointer.NStep
	ctx   Context

	// Reward sums of the steps of the current rollout
	sums rolloutSums
}

var _ Experiment = (*Trainer)(nil)

type rolloutSums struct {
	ex, in  float64
	inSteps int
}

// New returns a new Trainer. If opts.LogDir holds checkpoints of an
// earlier run with the same configuration, the run is resumed from
// them. Otherwise, observation statistics are first estimated by
// taking random actions in env.
func New(ctx context.Context, c config.Config, env environment.VecEnv,
	policy agent.Policy, updater agent.Updater, opts Options) (*Trainer,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if env.NumEnvs() != c.NumEnvs {
		return nil, fmt.Errorf("new: environment has the wrong number of "+
			"copies \n\twant(%v)\n\thave(%v)", c.NumEnvs, env.NumEnvs())
	}
	if policy == nil || updater == nil {
		return nil, fmt.Errorf("new: policy and updater must be non-nil")
	}
	if opts.EvalEnv != nil {
		if err := sameSpaces(env, opts.EvalEnv); err != nil {
			return nil, fmt.Errorf("new: evaluation environment: %v", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = telemetry.NewLogger(logger)
	}
	c.TrainWithReward.Warn(logger, c.EmptyValue)

	explorer, err := agent.NewRandom(env.NumActions(), c.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	shape := env.Shape()
	buf, err := rollout.New(c.NumSteps, c.NumEnvs, shape.Size(),
		env.NumActions(), policy.HiddenSize())
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	t := &Trainer{
		config:   c,
		sched:    c.Schedule(),
		opts:     opts,
		logger:   logger,
		sink:     sink,
		env:      env,
		shape:    shape,
		policy:   policy,
		updater:  updater,
		explorer: explorer,
		obsNorm:  normalize.NewObsNorm(),
		rollout:  buf,
		returns:  telemetry.NewReturns(),
		set:      checkpointer.NewSet(opts.LogDir),
	}
	if opts.LogDir != "" {
		t.saver = checkpointer.NewNStep(c.SaveInterval, t.set)
	}

	// Observation statistics are needed before the control models can
	// be built, since they scale the noise of the latent model
	if err := t.initObsNorm(ctx); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	t.set.Register(ProgressFile, &t.ctx)
	t.set.Register(ObsNormFile, t.obsNorm)
	t.set.Register(ReturnsFile, t.returns)
	if p, ok := policy.(checkpointer.Persistable); ok {
		t.set.Register(LearnerFile, p)
	}

	if c.TrainWithReward.UsesIntrinsic() {
		if err := t.buildIntrinsic(); err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
	}

	if opts.LogDir != "" {
		fresh, err := t.set.Restore()
		if err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
		logger.Info("restored checkpoints", "dir", opts.LogDir,
			"update", t.ctx.Update, "fresh", fresh)
	}

	obs, err := env.Reset()
	if err != nil {
		return nil, fmt.Errorf("new: could not reset environment: %v", err)
	}
	first := timestep.New(timestep.First, t.obsNorm.NormalizeBatch(obs),
		nil, nil, t.ctx.Update*c.FramesPerUpdate())
	if err := t.rollout.Reset(first.Observation); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	logger.Debug("reset environments", "timestep", first,
		"first", first.First())
	return t, nil
}

// initObsNorm restores the observation statistics, or estimates them
// from random actions if there are none to restore
func (t *Trainer) initObsNorm(ctx context.Context) error {
	if t.opts.LogDir != "" {
		err := t.obsNorm.Restore(t.set.Path(ObsNormFile))
		if err != nil && !checkpointer.IsNotExist(err) {
			return err
		}
	}
	if t.obsNorm.Fitted() || t.config.NumFramesObsNormInit == 0 {
		return nil
	}

	obs, err := t.env.Reset()
	if err != nil {
		return fmt.Errorf("could not reset environment: %v", err)
	}
	t.obsNorm.Update(obs)
	steps := t.config.NumFramesObsNormInit / t.config.NumEnvs
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		obs, _, _, _, err = t.env.Step(t.explorer.Sample(t.config.NumEnvs))
		if err != nil {
			return fmt.Errorf("could not step environment: %v", err)
		}
		t.obsNorm.Update(obs)
	}
	t.logger.Info("estimated observation statistics", "steps", steps,
		"mean", t.obsNorm.Mean(), "std", t.obsNorm.Std(),
		"bound", t.obsNorm.Bound())

	if t.opts.LogDir != "" {
		return t.obsNorm.Store(t.set.Path(ObsNormFile))
	}
	return nil
}

// buildIntrinsic builds the components of intrinsic motivation and
// registers their checkpoints
func (t *Trainer) buildIntrinsic() error {
	c := t.config
	numActions := t.env.NumActions()

	grid, err := control.NewGrid(t.shape, c.NumGrid)
	if err != nil {
		return err
	}
	mask, err := control.NewMaskEstimator(grid, t.shape,
		c.ControlMaskThreshold)
	if err != nil {
		return err
	}

	mc := c.ControlModel.Model()
	direct, err := model.NewDirect(t.shape, grid, numActions, c.NumEnvs, mc)
	if err != nil {
		return err
	}
	t.set.Register(DirectModelFile, direct)

	// Interfaces stay nil unless the latent model exists
	var latentScorer control.Scorer
	var latentLearner model.Learner
	if c.RewardType.Source == intrinsic.Latent {
		epsilon := c.NoiseEpsilon
		if std := t.obsNorm.Std(); t.obsNorm.Fitted() && std > 0 {
			epsilon /= std
		}
		latent, err := model.NewLatent(t.shape, grid, numActions, c.NumEnvs,
			model.LatentConfig{
				Config:            mc,
				ActionConditional: c.LatentActionConditional,
				NoiseEpsilon:      epsilon,
				Bound:             t.obsNorm.Bound(),
				Seed:              c.Seed + 2,
			})
		if err != nil {
			return err
		}
		latentScorer, latentLearner = latent, latent
		t.set.Register(LatentModelFile, latent)
	}

	t.aggregator, err = control.NewAggregator(direct, latentScorer, mask,
		c.GSkip, c.LatentControlDiscount)
	if err != nil {
		return err
	}
	t.models, err = model.NewTrainer(direct, latentLearner,
		c.ControlModel.NumIterations, t.logger)
	if err != nil {
		return err
	}

	var bonus countbonus.Estimator
	if c.RewardType.Bonus == intrinsic.HashCountBonus {
		bonus, err = countbonus.New(c.HashType, countbonus.Params{
			NumGrid:   c.NumGrid,
			M:         c.HardHashM,
			K:         c.SimHashK,
			Normalize: c.IndexNormalize,
		}, c.NumEnvs, c.Seed+3)
		if err != nil {
			return err
		}
		t.set.Register(CountBonusFile, bonus)
	}
	var binary *normalize.RunningBinaryNorm
	if c.RewardType.Post == intrinsic.Binary {
		binary = normalize.NewRunningBinaryNorm()
		t.set.Register(BinaryNormFile, binary)
	}
	t.generator, err = intrinsic.NewGenerator(intrinsic.Config{
		Descriptor: c.RewardType,
		ClipIR:     c.ClipIR,
		EmptyValue: c.EmptyValue,
	}, bonus, binary, t.logger)
	if err != nil {
		return err
	}

	if c.NormRew {
		t.rewNorm = normalize.NewRunningMeanStd()
		t.set.Register(RewardNormFile, t.rewNorm)
	}

	t.replay, err = replay.New(replay.Config{
		Size:               c.ReplaySize,
		Mode:               c.ReplayMode,
		Keys:               c.ReplayKeys(),
		RemoveInterEpisode: c.RemoveInterEpisode,
		Seed:               c.Seed + 4,
	})
	if err != nil {
		return err
	}
	t.set.Register(ReplayBufferFile, t.replay)
	return nil
}

// Context returns the progress of the run
func (t *Trainer) Context() Context { return t.ctx }

// Replay returns the replay buffer of the control scoring models, or
// nil when training on extrinsic rewards only
func (t *Trainer) Replay() *replay.Buffer { return t.replay }

// Done returns whether all updates of the run have been run
func (t *Trainer) Done() bool {
	return t.ctx.Update >= t.config.NumUpdates()
}

// Run runs updates until the run is over or ctx is cancelled
func (t *Trainer) Run(ctx context.Context) error {
	for !t.Done() {
		if _, err := t.RunUpdate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunUpdate collects a rollout of NumSteps steps in each environment,
// computes its returns, updates the agent, trains the control scoring
// models on replayed transitions and finally checkpoints and logs if
// due. Cancelling ctx stops the update between environment steps.
func (t *Trainer) RunUpdate(ctx context.Context) (map[string]float64, error) {
	start := time.Now()
	c := t.config
	j := t.ctx.Update
	frames := j * c.FramesPerUpdate()
	t.ctx.Frames = frames

	// An update interrupted by cancelling ctx resumes at the step it
	// stopped at
	for step := t.rollout.Cursor(); step < c.NumSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.ctx.Step = step

		ex, in, err := t.step(step, frames)
		if err != nil {
			return nil, fmt.Errorf("runUpdate: step %v: %v", step, err)
		}
		t.sums.ex += mat.Sum(ex)
		if in != nil {
			t.sums.in += mat.Sum(in)
			t.sums.inSteps++
		}
	}
	sums := t.sums
	t.sums = rolloutSums{}

	stats := map[string]float64{
		"extrinsic_reward": sums.ex / float64(c.FramesPerUpdate()),
	}
	if sums.inSteps > 0 {
		stats["intrinsic_reward"] = sums.in /
			float64(sums.inSteps*c.NumEnvs)
	}

	T := c.NumSteps
	next, err := t.policy.Value(t.rollout.Obs(T), t.rollout.Hidden(T),
		t.rollout.Masks(T))
	if err != nil {
		return nil, fmt.Errorf("runUpdate: %v", err)
	}
	if err := t.rollout.ComputeReturns(next, c.UseGAE, c.Gamma,
		c.Tau); err != nil {
		return nil, fmt.Errorf("runUpdate: %v", err)
	}

	if t.sched.IsLearning(frames) {
		if !t.ctx.AgentUpdated {
			// Keep the state of the run before the agent first learns
			if err := t.Checkpoint(); err != nil {
				return nil, fmt.Errorf("runUpdate: %v", err)
			}
			t.ctx.AgentUpdated = true
		}
		s, err := t.updater.Update(t.rollout)
		if err != nil {
			return nil, fmt.Errorf("runUpdate: could not update agent: %v",
				err)
		}
		merge(stats, s)
		stats["agent_learning"] = 1
	} else {
		stats["agent_learning"] = 0
	}

	if c.TrainWithReward.UsesIntrinsic() {
		s, err := t.updateControlModels(frames)
		if err != nil {
			return nil, fmt.Errorf("runUpdate: %v", err)
		}
		merge(stats, s)
	}

	if err := t.rollout.AfterUpdate(); err != nil {
		return nil, fmt.Errorf("runUpdate: %v", err)
	}
	t.ctx.Update++

	if t.saver != nil {
		last := j == c.NumUpdates()-1
		if stored, err := t.saver.Checkpoint(j, last); err != nil {
			return nil, fmt.Errorf("runUpdate: %v", err)
		} else if stored {
			if err := t.storeMap(); err != nil {
				return nil, fmt.Errorf("runUpdate: %v", err)
			}
		}
	}

	if j%c.LogInterval == 0 {
		t.returns.Summarize(stats)
		elapsed := time.Since(start).Seconds()
		if elapsed > 0 {
			stats["fps"] = float64(c.FramesPerUpdate()) / elapsed
		}
		step := frames + c.FramesPerUpdate()
		if err := t.sink.Record(ctx, step, stats); err != nil {
			return nil, fmt.Errorf("runUpdate: %v", err)
		}
	}

	if t.opts.EvalEnv != nil && c.IsEvaluating(j) {
		ret, err := t.Evaluate(ctx, t.opts.EvalEnv)
		if err != nil {
			return nil, fmt.Errorf("runUpdate: %w", err)
		}
		stats["eval_ex_raw"] = ret
		step := frames + c.FramesPerUpdate()
		if err := t.sink.Record(ctx, step, map[string]float64{
			"eval_ex_raw": ret,
		}); err != nil {
			return nil, fmt.Errorf("runUpdate: %v", err)
		}
	}
	return stats, nil
}

// InProgress returns whether the current update was interrupted partway
// through its rollout. Such an update is resumed by the next call to
// RunUpdate.
func (t *Trainer) InProgress() bool {
	return t.rollout.Cursor() != 0 ||
		t.rollout.Phase() != rollout.AwaitingAction
}

// Evaluate runs the policy in env until EvalEpisodes episodes have
// finished and returns their mean extrinsic return. Policies that
// implement agent.Deterministic act deterministically. Observations
// are normalized with the training statistics, which are left
// unchanged, and no component of the Trainer is updated.
func (t *Trainer) Evaluate(ctx context.Context, env environment.VecEnv) (
	float64, error) {
	if err := sameSpaces(t.env, env); err != nil {
		return 0, fmt.Errorf("evaluate: %v", err)
	}
	n := env.NumEnvs()
	episodes := max(t.config.EvalEpisodes, 1)

	act := t.policy.Act
	if d, ok := t.policy.(agent.Deterministic); ok {
		act = d.ActDeterministic
	}

	obs, err := env.Reset()
	if err != nil {
		return 0, fmt.Errorf("evaluate: could not reset environment: %v", err)
	}
	obs = t.obsNorm.NormalizeBatch(obs)
	var hidden *mat.Dense
	if size := t.policy.HiddenSize(); size > 0 {
		hidden = mat.NewDense(n, size, nil)
	}
	masks := mat.NewVecDense(n, nil)

	returns := telemetry.NewReturns()
	for returns.Pending() < episodes {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("evaluate: %w", err)
		}
		a, err := act(obs, hidden, masks)
		if err != nil {
			return 0, fmt.Errorf("evaluate: %v", err)
		}
		next, _, done, infos, err := env.Step(a.Actions)
		if err != nil {
			return 0, fmt.Errorf("evaluate: could not step environment: %v",
				err)
		}
		obs = t.obsNorm.NormalizeBatch(next)
		if hidden != nil {
			hidden = a.Hidden
		}
		masks = timestep.MasksFromDone(done)
		returns.Track(infos)
	}

	ret := returns.MeanReturn()
	t.logger.Info("evaluated policy", "episodes", returns.Pending(),
		"eval_ex_raw", ret)
	return ret, nil
}

// sameSpaces returns an error if two environments differ in their
// number of copies, observation shape or number of actions
func sameSpaces(want, have environment.VecEnv) error {
	if want.NumEnvs() != have.NumEnvs() || want.Shape() != have.Shape() ||
		want.NumActions() != have.NumActions() {
		return fmt.Errorf("sameSpaces: environments differ \n\twant(%v "+
			"envs, %v, %v actions)\n\thave(%v envs, %v, %v actions)",
			want.NumEnvs(), want.Shape(), want.NumActions(), have.NumEnvs(),
			have.Shape(), have.NumActions())
	}
	return nil
}

// step takes a single step in the environments and inserts it into the
// rollout buffer. It returns the extrinsic rewards of the step and the
// intrinsic rewards if there were any.
func (t *Trainer) step(step, frames int) (*mat.VecDense, *mat.VecDense,
	error) {
	c := t.config
	obs := t.rollout.Obs(step)

	act, err := t.policy.Act(obs, t.rollout.Hidden(step),
		t.rollout.Masks(step))
	if err != nil {
		return nil, nil, err
	}
	actions := act.Actions
	if t.sched.IsExploring(frames) {
		actions = t.explorer.Sample(c.NumEnvs)
	}

	next, extrinsic, done, infos, err := t.env.Step(actions)
	if err != nil {
		return nil, nil, err
	}
	t.returns.Track(infos)
	ts := timestep.New(timestep.Mid, t.obsNorm.NormalizeBatch(next),
		extrinsic, timestep.MasksFromDone(done),
		frames+(step+1)*c.NumEnvs)

	if err := t.rollout.InsertAction(actions); err != nil {
		return nil, nil, err
	}

	var in *mat.VecDense
	if c.TrainWithReward.UsesIntrinsic() {
		in, err = t.intrinsicReward(step, frames, obs, ts)
		if err != nil {
			return nil, nil, err
		}
	}
	reward, err := c.TrainWithReward.Combine(ts.Reward, in)
	if err != nil {
		return nil, nil, err
	}

	err = t.rollout.InsertTransition(rollout.Step{
		Obs:      ts.Observation,
		Hidden:   act.Hidden,
		LogProbs: act.LogProbs,
		Values:   act.Values,
		Rewards:  reward,
		Masks:    ts.Masks,
	})
	if err != nil {
		return nil, nil, err
	}

	if t.aggregator != nil && !t.aggregator.OnCadence(step) {
		return ts.Reward, nil, nil
	}
	return ts.Reward, in, nil
}

// intrinsicReward advances the control maps by one step, from the
// stacked observations obs to the observations of ts, and returns the
// intrinsic rewards of the step. Off-cadence steps receive the empty
// intrinsic reward.
func (t *Trainer) intrinsicReward(step, frames int, obs *mat.Dense,
	ts timestep.TimeStep) (*mat.VecDense, error) {
	now := lastFrames(t.shape, ts.Observation)
	onCadence, err := t.aggregator.Step(&t.ctx.Control, step, obs, now,
		t.rollout.OneHot(step), ts.Masks)
	if err != nil {
		return nil, err
	}
	if !onCadence {
		return t.generator.GenerateEmpty(ts.Reward), nil
	}

	res, err := t.generator.Generate(intrinsic.Input{
		Control:      &t.ctx.Control,
		RecordCounts: t.sched.IsStackingCounts(frames),
		StackBinary:  t.sched.IsNormalizingBinary(frames),
	})
	if err != nil {
		return nil, err
	}
	t.logger.Debug("intrinsic reward", "timestep", ts,
		"reward", mat.Sum(res.Reward))
	t.ctx.Map = &Map{Values: mat.Row(nil, 0, res.Map), Frames: frames}

	reward := res.Reward
	if t.rewNorm != nil && t.sched.IsNormalizingReward(frames) {
		reward = t.rewNorm.StackAndNormalize(reward)
	}
	return reward, nil
}

// updateControlModels pushes the transitions of the rollout into the
// replay buffer and trains the control scoring models
func (t *Trainer) updateControlModels(frames int) (map[string]float64,
	error) {
	if t.rewNorm != nil && t.sched.IsNormalizingReward(frames) {
		t.rewNorm.UpdateFromStack()
	}

	batch, err := t.rollout.ReplayBatch(t.shape, t.config.GSkip,
		t.replay.Keys())
	if err != nil {
		return nil, err
	}
	if err := t.replay.Push(batch); err != nil {
		return nil, err
	}
	t.replay.ConstrainBufferSize()

	stats, err := t.models.Update(t.replay)
	if err != nil {
		return nil, err
	}
	stats["replay_size"] = float64(t.replay.Len())
	return stats, nil
}

// Checkpoint stores the state of all stateful components in the log
// directory. It does nothing if there is no log directory.
//
// Checkpointing an update interrupted partway through its rollout
// returns ErrInProgress. Count tables and the reward normalizer have
// already absorbed part of that rollout, which a resumed run would
// then count twice.
func (t *Trainer) Checkpoint() error {
	if t.opts.LogDir == "" {
		return nil
	}
	if t.InProgress() {
		return fmt.Errorf("checkpoint: %w at step %v of update %v",
			ErrInProgress, t.rollout.Cursor(), t.ctx.Update)
	}
	if err := t.set.Store(); err != nil {
		return fmt.Errorf("checkpoint: %v", err)
	}
	return t.storeMap()
}

// storeMap stores an image of the most recent control map of the
// first environment
func (t *Trainer) storeMap() error {
	if !t.opts.MapImages || t.ctx.Map == nil {
		return nil
	}
	dir := filepath.Join(t.opts.LogDir, "maps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storeMap: %v", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%010d.png", t.ctx.Map.Frames))
	return telemetry.GridImage(t.ctx.Map.Values, t.config.NumGrid,
		mapCellPixels, path)
}

// lastFrames returns the last frame of each stacked observation
func lastFrames(shape timestep.Shape, obs *mat.Dense) *mat.Dense {
	rows, _ := obs.Dims()
	out := mat.NewDense(rows, shape.FrameSize(), nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, shape.LastFrame(obs.RawRowView(i)))
	}
	return out
}

func merge(dst, src map[string]float64) {
	for k, v := range src {
		dst[k] = v
	}
}
