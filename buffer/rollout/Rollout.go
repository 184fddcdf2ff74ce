// Package rollout implements a fixed-horizon, multi-environment
// on-policy buffer which computes returns with or without generalized
// advantage estimation
package rollout

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/mega/buffer/replay"
	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

// ErrPhase is returned when the two insertion phases of a step are
// called out of order
var ErrPhase = errors.New("insertion phase out of order")

// Phase is the insertion phase a Buffer is waiting on
type Phase int

const (
	// AwaitingAction means the next call must be InsertAction
	AwaitingAction Phase = iota

	// AwaitingTransition means the next call must be InsertTransition
	AwaitingTransition
)

func (p Phase) String() string {
	switch p {
	case AwaitingAction:
		return "AwaitingAction"
	case AwaitingTransition:
		return "AwaitingTransition"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Step holds everything recorded for a step once the environment has
// stepped. Hidden may be nil if the buffer has no recurrent state.
type Step struct {
	Obs      *mat.Dense
	Hidden   *mat.Dense
	LogProbs *mat.VecDense
	Values   *mat.VecDense
	Rewards  *mat.VecDense
	Masks    *mat.VecDense
}

// Buffer stores T steps of N parallel environments. Observations,
// recurrent states, masks, value predictions and returns have T+1
// slots so that slot T holds the bootstrap state; actions, log
// probabilities and rewards have T slots.
//
// Each step is recorded in two phases: InsertAction records the action
// before the environment steps and InsertTransition records the rest
// afterwards. Slots are allocated once and reused; AfterUpdate copies
// slot T into slot 0 so that consecutive rollouts are continuous.
type Buffer struct {
	numSteps   int
	numEnvs    int
	obsDim     int
	numActions int
	hiddenSize int

	obs      []*mat.Dense
	hidden   []*mat.Dense
	masks    []*mat.VecDense
	values   []*mat.VecDense
	returns  []*mat.VecDense
	actions  [][]int
	oneHot   []*mat.Dense
	logProbs []*mat.VecDense
	rewards  []*mat.VecDense

	step  int
	phase Phase
}

// New returns a new Buffer for numSteps steps of numEnvs environments.
// Masks are initialized to one.
func New(numSteps, numEnvs, obsDim, numActions,
	hiddenSize int) (*Buffer, error) {
	if numSteps < 1 || numEnvs < 1 || obsDim < 1 || numActions < 1 {
		return nil, fmt.Errorf("new: steps, environments, observation size "+
			"and actions must be positive: have(%v, %v, %v, %v)", numSteps,
			numEnvs, obsDim, numActions)
	}
	if hiddenSize < 0 {
		return nil, fmt.Errorf("new: hidden size must be non-negative "+
			"\n\twant(>=0)\n\thave(%v)", hiddenSize)
	}

	b := &Buffer{
		numSteps:   numSteps,
		numEnvs:    numEnvs,
		obsDim:     obsDim,
		numActions: numActions,
		hiddenSize: hiddenSize,
		obs:        make([]*mat.Dense, numSteps+1),
		hidden:     make([]*mat.Dense, numSteps+1),
		masks:      make([]*mat.VecDense, numSteps+1),
		values:     make([]*mat.VecDense, numSteps+1),
		returns:    make([]*mat.VecDense, numSteps+1),
		actions:    make([][]int, numSteps),
		oneHot:     make([]*mat.Dense, numSteps),
		logProbs:   make([]*mat.VecDense, numSteps),
		rewards:    make([]*mat.VecDense, numSteps),
	}

	for t := 0; t <= numSteps; t++ {
		b.obs[t] = mat.NewDense(numEnvs, obsDim, nil)
		if hiddenSize > 0 {
			b.hidden[t] = mat.NewDense(numEnvs, hiddenSize, nil)
		}
		b.masks[t] = mat.NewVecDense(numEnvs, nil)
		for i := 0; i < numEnvs; i++ {
			b.masks[t].SetVec(i, 1.0)
		}
		b.values[t] = mat.NewVecDense(numEnvs, nil)
		b.returns[t] = mat.NewVecDense(numEnvs, nil)
	}
	for t := 0; t < numSteps; t++ {
		b.actions[t] = make([]int, numEnvs)
		b.oneHot[t] = mat.NewDense(numEnvs, numActions, nil)
		b.logProbs[t] = mat.NewVecDense(numEnvs, nil)
		b.rewards[t] = mat.NewVecDense(numEnvs, nil)
	}
	return b, nil
}

// NumSteps returns the horizon T of the buffer
func (b *Buffer) NumSteps() int { return b.numSteps }

// NumEnvs returns the number of parallel environments
func (b *Buffer) NumEnvs() int { return b.numEnvs }

// HiddenSize returns the size of the recurrent state
func (b *Buffer) HiddenSize() int { return b.hiddenSize }

// Cursor returns the step the next insertion is recorded at
func (b *Buffer) Cursor() int { return b.step }

// Phase returns the insertion phase the buffer is waiting on
func (b *Buffer) Phase() Phase { return b.phase }

// The following accessors return the stored slots themselves, which
// must not be modified by the caller.

// Obs returns the observations at slot t in [0, T]
func (b *Buffer) Obs(t int) *mat.Dense { return b.obs[t] }

// Hidden returns the recurrent states at slot t in [0, T], or nil if
// the buffer has no recurrent state
func (b *Buffer) Hidden(t int) *mat.Dense { return b.hidden[t] }

// Masks returns the continuation masks at slot t in [0, T]
func (b *Buffer) Masks(t int) *mat.VecDense { return b.masks[t] }

// Values returns the value predictions at slot t in [0, T]
func (b *Buffer) Values(t int) *mat.VecDense { return b.values[t] }

// Returns returns the returns at slot t in [0, T]
func (b *Buffer) Returns(t int) *mat.VecDense { return b.returns[t] }

// Actions returns the action indices at slot t in [0, T)
func (b *Buffer) Actions(t int) []int { return b.actions[t] }

// OneHot returns the one-hot actions at slot t in [0, T)
func (b *Buffer) OneHot(t int) *mat.Dense { return b.oneHot[t] }

// LogProbs returns the action log probabilities at slot t in [0, T)
func (b *Buffer) LogProbs(t int) *mat.VecDense { return b.logProbs[t] }

// Rewards returns the rewards at slot t in [0, T)
func (b *Buffer) Rewards(t int) *mat.VecDense { return b.rewards[t] }

// Reset sets the observations in slot 0, for example after the
// environments are first reset
func (b *Buffer) Reset(obs *mat.Dense) error {
	if err := b.checkDims("reset", obs, b.obsDim); err != nil {
		return err
	}
	b.obs[0].Copy(obs)
	return nil
}

// InsertAction records the actions chosen at the current step
func (b *Buffer) InsertAction(actions []int) error {
	if b.phase != AwaitingAction {
		return fmt.Errorf("insertAction: %w \n\twant(%v)\n\thave(%v)",
			ErrPhase, AwaitingAction, b.phase)
	}
	if len(actions) != b.numEnvs {
		return fmt.Errorf("insertAction: invalid number of actions "+
			"\n\twant(%v)\n\thave(%v)", b.numEnvs, len(actions))
	}
	for _, a := range actions {
		if a < 0 || a >= b.numActions {
			return fmt.Errorf("insertAction: action out of range "+
				"\n\twant([0, %v))\n\thave(%v)", b.numActions, a)
		}
	}

	copy(b.actions[b.step], actions)
	b.oneHot[b.step].Copy(timestep.OneHot(actions, b.numActions))
	b.phase = AwaitingTransition
	return nil
}

// InsertTransition records the outcome of the current step and
// advances the cursor
func (b *Buffer) InsertTransition(s Step) error {
	if b.phase != AwaitingTransition {
		return fmt.Errorf("insertTransition: %w \n\twant(%v)\n\thave(%v)",
			ErrPhase, AwaitingTransition, b.phase)
	}
	if err := b.checkDims("insertTransition", s.Obs, b.obsDim); err != nil {
		return err
	}
	if b.hiddenSize > 0 {
		if s.Hidden == nil {
			return fmt.Errorf("insertTransition: missing recurrent state")
		}
		if err := b.checkDims("insertTransition", s.Hidden,
			b.hiddenSize); err != nil {
			return err
		}
	}
	for _, v := range []*mat.VecDense{s.LogProbs, s.Values, s.Rewards,
		s.Masks} {
		if v == nil || v.Len() != b.numEnvs {
			return fmt.Errorf("insertTransition: per-environment values "+
				"must have length %v", b.numEnvs)
		}
	}

	b.obs[b.step+1].Copy(s.Obs)
	if b.hiddenSize > 0 {
		b.hidden[b.step+1].Copy(s.Hidden)
	}
	b.logProbs[b.step].CopyVec(s.LogProbs)
	b.values[b.step].CopyVec(s.Values)
	b.rewards[b.step].CopyVec(s.Rewards)
	b.masks[b.step+1].CopyVec(s.Masks)

	b.step = (b.step + 1) % b.numSteps
	b.phase = AwaitingAction
	return nil
}

// ComputeReturns computes the return of every step given the value
// prediction of the bootstrap state, which is also the return R_T of
// slot T. With useGAE, returns are
// generalized advantage estimates plus value predictions:
//
//	δ_t = r_t + γ V_{t+1} m_{t+1} - V_t
//	A_t = δ_t + γ τ m_{t+1} A_{t+1},  A_T = 0
//	R_t = A_t + V_t
//
// Otherwise they are discounted sums of rewards, R_t = r_t + γ m_{t+1} R_{t+1}, and tau is ignored.
func (b *Buffer) ComputeReturns(next *mat.VecDense, useGAE bool, gamma,
	tau float64) error {
	if next.Len() != b.numEnvs {
		return fmt.Errorf("computeReturns: invalid number of values "+
			"\n\twant(%v)\n\thave(%v)", b.numEnvs, next.Len())
	}
	T := b.numSteps

	b.returns[T].CopyVec(next)
	if useGAE {
		b.values[T].CopyVec(next)
		for i := 0; i < b.numEnvs; i++ {
			gae := 0.0
			for t := T - 1; t >= 0; t-- {
				mask := b.masks[t+1].AtVec(i)
				value := b.values[t].AtVec(i)
				delta := b.rewards[t].AtVec(i) +
					gamma*b.values[t+1].AtVec(i)*mask - value
				gae = delta + gamma*tau*mask*gae
				b.returns[t].SetVec(i, gae+value)
			}
		}
		return nil
	}

	for i := 0; i < b.numEnvs; i++ {
		for t := T - 1; t >= 0; t-- {
			b.returns[t].SetVec(i, b.rewards[t].AtVec(i)+
				gamma*b.masks[t+1].AtVec(i)*b.returns[t+1].AtVec(i))
		}
	}
	return nil
}

// AfterUpdate copies the observations, recurrent states and masks of
// slot T into slot 0. All other slots are stale afterwards.
func (b *Buffer) AfterUpdate() error {
	if b.phase != AwaitingAction {
		return fmt.Errorf("afterUpdate: %w \n\twant(%v)\n\thave(%v)",
			ErrPhase, AwaitingAction, b.phase)
	}
	T := b.numSteps
	b.obs[0].Copy(b.obs[T])
	if b.hiddenSize > 0 {
		b.hidden[0].Copy(b.hidden[T])
	}
	b.masks[0].CopyVec(b.masks[T])
	return nil
}

// Flatten stacks slots[from:to] along the row axis, so that row
// t*N + i of the result holds environment i of slot from+t
func Flatten(slots []*mat.Dense, from, to int) *mat.Dense {
	rows, cols := slots[from].Dims()
	out := mat.NewDense((to-from)*rows, cols, nil)
	for t := from; t < to; t++ {
		out.Slice((t-from)*rows, (t-from+1)*rows, 0, cols).(*mat.Dense).
			Copy(slots[t])
	}
	return out
}

// FlattenVec stacks slots[from:to] into a single column
func FlattenVec(slots []*mat.VecDense, from, to int) *mat.Dense {
	n := slots[from].Len()
	out := mat.NewDense((to-from)*n, 1, nil)
	for t := from; t < to; t++ {
		for i := 0; i < n; i++ {
			out.Set((t-from)*n+i, 0, slots[t].AtVec(i))
		}
	}
	return out
}

// lastFrames stacks the last frame of each observation in
// slots[from:to] along the row axis
func lastFrames(slots []*mat.Dense, shape timestep.Shape, from,
	to int) *mat.Dense {
	rows, _ := slots[from].Dims()
	out := mat.NewDense((to-from)*rows, shape.FrameSize(), nil)
	for t := from; t < to; t++ {
		for i := 0; i < rows; i++ {
			out.SetRow((t-from)*rows+i, shape.LastFrame(slots[t].RawRowView(i)))
		}
	}
	return out
}

// ReplayBatch returns the transitions of the current rollout keyed for
// a replay.Buffer with the given keys. States are paired with the last
// frame of the next observation and, if requested, with the last frame
// of the observation skip steps later. Only the first T+1-skip steps
// have such a partner.
func (b *Buffer) ReplayBatch(shape timestep.Shape, skip int,
	keys []string) (map[string]*mat.Dense, error) {
	if shape.Size() != b.obsDim {
		return nil, fmt.Errorf("replayBatch: invalid shape \n\twant(%v)"+
			"\n\thave(%v)", b.obsDim, shape.Size())
	}
	if skip < 1 || skip > b.numSteps {
		return nil, fmt.Errorf("replayBatch: skip must be in [1, %v] "+
			"\n\thave(%v)", b.numSteps, skip)
	}

	total := b.numSteps + 1
	batch := make(map[string]*mat.Dense, len(keys))
	for _, k := range keys {
		switch k {
		case replay.States:
			batch[k] = Flatten(b.obs, 0, total-skip)
		case replay.Actions:
			batch[k] = Flatten(b.oneHot, 0, total-skip)
		case replay.NextStates:
			batch[k] = lastFrames(b.obs, shape, 1, total-skip+1)
		case replay.NextStateMasks:
			batch[k] = FlattenVec(b.masks, 1, total-skip+1)
		case replay.SkippedNextStates:
			batch[k] = lastFrames(b.obs, shape, skip, total)
		default:
			return nil, fmt.Errorf("replayBatch: unknown key %q", k)
		}
	}
	return batch, nil
}

func (b *Buffer) checkDims(op string, m *mat.Dense, cols int) error {
	if m == nil {
		return fmt.Errorf("%v: nil matrix", op)
	}
	r, c := m.Dims()
	if r != b.numEnvs || c != cols {
		return fmt.Errorf("%v: invalid dimensions \n\twant(%v, %v)"+
			"\n\thave(%v, %v)", op, b.numEnvs, cols, r, c)
	}
	return nil
}

// snapshot is the gob-encoded form of a Buffer
type snapshot struct {
	NumSteps, NumEnvs, ObsDim, NumActions, HiddenSize int

	Obs, Hidden, Masks, Values, Returns [][]float64
	Actions                             [][]int
	OneHot, LogProbs, Rewards           [][]float64

	Step  int
	Phase Phase
}

func denseData(slots []*mat.Dense) [][]float64 {
	out := make([][]float64, len(slots))
	for i, s := range slots {
		if s != nil {
			out[i] = append([]float64(nil), s.RawMatrix().Data...)
		}
	}
	return out
}

func vecData(slots []*mat.VecDense) [][]float64 {
	out := make([][]float64, len(slots))
	for i, s := range slots {
		out[i] = append([]float64(nil), s.RawVector().Data...)
	}
	return out
}

// Store implements the checkpointer.Persistable interface
func (b *Buffer) Store(path string) error {
	actions := make([][]int, len(b.actions))
	for i := range b.actions {
		actions[i] = append([]int(nil), b.actions[i]...)
	}
	return checkpointer.StoreGob(path, snapshot{
		NumSteps:   b.numSteps,
		NumEnvs:    b.numEnvs,
		ObsDim:     b.obsDim,
		NumActions: b.numActions,
		HiddenSize: b.hiddenSize,
		Obs:        denseData(b.obs),
		Hidden:     denseData(b.hidden),
		Masks:      vecData(b.masks),
		Values:     vecData(b.values),
		Returns:    vecData(b.returns),
		Actions:    actions,
		OneHot:     denseData(b.oneHot),
		LogProbs:   vecData(b.logProbs),
		Rewards:    vecData(b.rewards),
		Step:       b.step,
		Phase:      b.phase,
	})
}

// Restore implements the checkpointer.Persistable interface. The
// stored buffer must have the same dimensions as b.
func (b *Buffer) Restore(path string) error {
	var s snapshot
	if err := checkpointer.RestoreGob(path, &s); err != nil {
		return err
	}
	if s.NumSteps != b.numSteps || s.NumEnvs != b.numEnvs ||
		s.ObsDim != b.obsDim || s.NumActions != b.numActions ||
		s.HiddenSize != b.hiddenSize {
		return fmt.Errorf("restore: stored buffer dimensions (%v, %v, %v, "+
			"%v, %v) differ from (%v, %v, %v, %v, %v)", s.NumSteps, s.NumEnvs,
			s.ObsDim, s.NumActions, s.HiddenSize, b.numSteps, b.numEnvs,
			b.obsDim, b.numActions, b.hiddenSize)
	}

	for t := 0; t <= b.numSteps; t++ {
		copy(b.obs[t].RawMatrix().Data, s.Obs[t])
		if b.hiddenSize > 0 {
			copy(b.hidden[t].RawMatrix().Data, s.Hidden[t])
		}
		copy(b.masks[t].RawVector().Data, s.Masks[t])
		copy(b.values[t].RawVector().Data, s.Values[t])
		copy(b.returns[t].RawVector().Data, s.Returns[t])
	}
	for t := 0; t < b.numSteps; t++ {
		copy(b.actions[t], s.Actions[t])
		copy(b.oneHot[t].RawMatrix().Data, s.OneHot[t])
		copy(b.logProbs[t].RawVector().Data, s.LogProbs[t])
		copy(b.rewards[t].RawVector().Data, s.Rewards[t])
	}
	b.step, b.phase = s.Step, s.Phase
	return nil
}
