package rollout

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/mega/buffer/replay"
	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

func constVec(n int, v float64) *mat.VecDense {
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, v)
	}
	return out
}

// fill runs T full steps, where the observation after step t is t+1
// everywhere and episodes end after the steps in done
func fill(t *testing.T, b *Buffer, rewards []float64, done map[int]bool) {
	t.Helper()
	n := b.NumEnvs()
	for step := 0; step < b.NumSteps(); step++ {
		actions := make([]int, n)
		for i := range actions {
			actions[i] = (step + i) % b.numActions
		}
		if err := b.InsertAction(actions); err != nil {
			t.Fatal(err)
		}

		obs := mat.NewDense(n, b.obsDim, nil)
		obs.Apply(func(_, _ int, _ float64) float64 {
			return float64(step + 1)
		}, obs)
		var hidden *mat.Dense
		if b.HiddenSize() > 0 {
			hidden = mat.NewDense(n, b.HiddenSize(), nil)
			hidden.Apply(func(_, _ int, _ float64) float64 {
				return -float64(step + 1)
			}, hidden)
		}
		mask := 1.0
		if done[step] {
			mask = 0.0
		}

		if err := b.InsertTransition(Step{
			Obs:      obs,
			Hidden:   hidden,
			LogProbs: constVec(n, -0.5),
			Values:   constVec(n, 0.5),
			Rewards:  constVec(n, rewards[step]),
			Masks:    constVec(n, mask),
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPhaseOrder(t *testing.T) {
	b, err := New(3, 2, 4, 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	err = b.InsertTransition(Step{})
	if !errors.Is(err, ErrPhase) {
		t.Errorf("insertTransition: expected phase error, have %v", err)
	}

	if err := b.InsertAction([]int{0, 1}); err != nil {
		t.Fatal(err)
	}
	if err := b.InsertAction([]int{0, 1}); !errors.Is(err, ErrPhase) {
		t.Errorf("insertAction: expected phase error, have %v", err)
	}
	if err := b.AfterUpdate(); !errors.Is(err, ErrPhase) {
		t.Errorf("afterUpdate: expected phase error, have %v", err)
	}
	if b.Phase() != AwaitingTransition {
		t.Errorf("phase: \n\twant(%v)\n\thave(%v)", AwaitingTransition,
			b.Phase())
	}
}

func TestComputeReturnsIgnoresTau(t *testing.T) {
	rewards := []float64{1, 2, 3, 4}
	b, _ := New(4, 2, 1, 2, 0)
	fill(t, b, rewards, map[int]bool{1: true})

	const gamma = 0.9
	next := constVec(2, 10)

	// Episode ends after step 1, so its return does not see later rewards
	want := make([]float64, 4)
	want[3] = rewards[3] + gamma*10
	want[2] = rewards[2] + gamma*want[3]
	want[1] = rewards[1]
	want[0] = rewards[0] + gamma*want[1]

	for _, tau := range []float64{0, 0.5, 0.95, 1} {
		if err := b.ComputeReturns(next, false, gamma, tau); err != nil {
			t.Fatal(err)
		}
		for step := range want {
			for i := 0; i < 2; i++ {
				if have := b.Returns(step).AtVec(i); have != want[step] {
					t.Errorf("tau %v step %v: \n\twant(%v)\n\thave(%v)", tau,
						step, want[step], have)
				}
			}
		}
	}
}

func TestComputeReturnsGAE(t *testing.T) {
	rewards := []float64{1, 0, 2}
	b, _ := New(3, 1, 1, 2, 0)
	fill(t, b, rewards, nil)

	const gamma, tau, v, next = 0.9, 0.8, 0.5, 2.0
	if err := b.ComputeReturns(constVec(1, next), true, gamma,
		tau); err != nil {
		t.Fatal(err)
	}

	d2 := rewards[2] + gamma*next - v
	d1 := rewards[1] + gamma*v - v
	d0 := rewards[0] + gamma*v - v
	a2 := d2
	a1 := d1 + gamma*tau*a2
	a0 := d0 + gamma*tau*a1
	want := []float64{a0 + v, a1 + v, a2 + v, next}

	for step := range want {
		if have := b.Returns(step).AtVec(0); math.Abs(have-want[step]) > 1e-12 {
			t.Errorf("step %v: \n\twant(%v)\n\thave(%v)", step, want[step],
				have)
		}
	}
}

func TestComputeReturnsGAEEpisodeEnd(t *testing.T) {
	rewards := []float64{1, 0, 2}
	b, _ := New(3, 1, 1, 2, 0)

	// The episode ends after step 0, so masks[1] is zero
	fill(t, b, rewards, map[int]bool{0: true})

	const gamma, tau, v, next = 0.9, 0.8, 0.5, 2.0
	if err := b.ComputeReturns(constVec(1, next), true, gamma,
		tau); err != nil {
		t.Fatal(err)
	}

	d2 := rewards[2] + gamma*next - v
	d1 := rewards[1] + gamma*v - v
	d0 := rewards[0] - v
	a2 := d2
	a1 := d1 + gamma*tau*a2
	a0 := d0
	want := []float64{a0 + v, a1 + v, a2 + v, next}

	for step := range want {
		if have := b.Returns(step).AtVec(0); math.Abs(have-want[step]) > 1e-12 {
			t.Errorf("step %v: \n\twant(%v)\n\thave(%v)", step, want[step],
				have)
		}
	}
}

func TestAfterUpdateRotates(t *testing.T) {
	b, _ := New(3, 2, 4, 3, 2)
	fill(t, b, []float64{0, 0, 0}, map[int]bool{2: true})

	obs := mat.DenseCopyOf(b.Obs(3))
	hidden := mat.DenseCopyOf(b.Hidden(3))
	masks := mat.VecDenseCopyOf(b.Masks(3))

	if err := b.AfterUpdate(); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(b.Obs(0), obs) || !mat.Equal(b.Hidden(0), hidden) ||
		!mat.Equal(b.Masks(0), masks) {
		t.Error("afterUpdate: slot 0 differs from old slot T")
	}
	if b.Masks(0).AtVec(0) != 0 {
		t.Errorf("afterUpdate: mask not carried over")
	}
	if b.Cursor() != 0 {
		t.Errorf("cursor: \n\twant(0)\n\thave(%v)", b.Cursor())
	}
}

func TestReplayBatch(t *testing.T) {
	shape := timestep.Shape{Stack: 2, Height: 1, Width: 2}
	b, _ := New(4, 3, shape.Size(), 2, 0)
	fill(t, b, []float64{0, 0, 0, 0}, nil)

	const skip = 2
	keys := replay.Keys(true, skip)
	batch, err := b.ReplayBatch(shape, skip, keys)
	if err != nil {
		t.Fatal(err)
	}

	// T+1-skip steps of 3 environments
	for _, k := range keys {
		if r, _ := batch[k].Dims(); r != 9 {
			t.Errorf("%v: rows \n\twant(9)\n\thave(%v)", k, r)
		}
	}
	if _, c := batch[replay.NextStates].Dims(); c != shape.FrameSize() {
		t.Errorf("next_states: cols \n\twant(%v)\n\thave(%v)",
			shape.FrameSize(), c)
	}

	// Row 3 is environment 0 of step 1
	if have := batch[replay.States].At(3, 0); have != 1 {
		t.Errorf("states: \n\twant(1)\n\thave(%v)", have)
	}
	if have := batch[replay.NextStates].At(3, 0); have != 2 {
		t.Errorf("next_states: \n\twant(2)\n\thave(%v)", have)
	}
	if have := batch[replay.SkippedNextStates].At(3, 0); have != 3 {
		t.Errorf("skipped_next_states: \n\twant(3)\n\thave(%v)", have)
	}

	buf, err := replay.New(replay.Config{Size: 100, Mode: replay.Fifo,
		Keys: keys, RemoveInterEpisode: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := buf.Push(batch); err != nil {
		t.Errorf("push: %v", err)
	}
}

func TestRolloutRestore(t *testing.T) {
	b, _ := New(2, 2, 3, 2, 1)
	fill(t, b, []float64{1, 2}, nil)

	path := filepath.Join(t.TempDir(), "rollout")
	if err := b.Store(path); err != nil {
		t.Fatal(err)
	}
	restored, _ := New(2, 2, 3, 2, 1)
	if err := restored.Restore(path); err != nil {
		t.Fatal(err)
	}
	for step := 0; step <= 2; step++ {
		if !mat.Equal(b.Obs(step), restored.Obs(step)) {
			t.Errorf("restore: observations differ at slot %v", step)
		}
	}
	if restored.Rewards(1).AtVec(0) != 2 {
		t.Errorf("restore: rewards not restored")
	}

	wrong, _ := New(3, 2, 3, 2, 1)
	if err := wrong.Restore(path); err == nil {
		t.Error("restore: expected error on dimension mismatch")
	}
}
