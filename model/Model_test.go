package model

import (
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/mega/buffer/replay"
	"github.com/samuelfneumann/mega/control"
	"github.com/samuelfneumann/mega/network"
	"github.com/samuelfneumann/mega/solver"
	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

var testShape = timestep.Shape{Stack: 2, Height: 4, Width: 4}

func testConfig(t *testing.T, batch int) Config {
	t.Helper()
	s, err := solver.NewDefaultAdam(0.01, 1)
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		Hidden:     []int{8},
		Activation: network.TanHType,
		Solver:     s,
		BatchSize:  batch,
	}
}

// sprite returns a batch whose next frame lights the top-left cell
func sprite(rows int) map[string]*mat.Dense {
	states := mat.NewDense(rows, testShape.Size(), nil)
	next := mat.NewDense(rows, testShape.FrameSize(), nil)
	for i := 0; i < rows; i++ {
		next.Set(i, 0, 1)
		next.Set(i, 1, 1)
		next.Set(i, 4, 1)
		next.Set(i, 5, 1)
	}
	actions := timestep.OneHot(make([]int, rows), 2)
	return map[string]*mat.Dense{
		replay.States:     states,
		replay.NextStates: next,
		replay.Actions:    actions,
	}
}

func TestDirectScoreShape(t *testing.T) {
	grid, _ := control.NewGrid(testShape, 2)
	d, err := NewDirect(testShape, grid, 2, 3, testConfig(t, 4))
	if err != nil {
		t.Fatal(err)
	}

	b := sprite(3)
	m, err := d.Score(b[replay.States], b[replay.NextStates],
		b[replay.Actions])
	if err != nil {
		t.Fatal(err)
	}
	if r, c := m.Dims(); r != 3 || c != 4 {
		t.Errorf("score: dims \n\twant(3, 4)\n\thave(%v, %v)", r, c)
	}

	b = sprite(2)
	if _, err := d.Score(b[replay.States], b[replay.NextStates],
		b[replay.Actions]); err == nil {
		t.Error("score: expected error on wrong batch size")
	}
}

func TestDirectTrainReducesLoss(t *testing.T) {
	grid, _ := control.NewGrid(testShape, 2)
	d, err := NewDirect(testShape, grid, 2, 1, testConfig(t, 4))
	if err != nil {
		t.Fatal(err)
	}

	batch := sprite(4)
	first, err := d.Train(batch)
	if err != nil {
		t.Fatal(err)
	}
	var last float64
	for i := 0; i < 200; i++ {
		if last, err = d.Train(batch); err != nil {
			t.Fatal(err)
		}
	}
	if last >= first {
		t.Errorf("train: loss did not decrease: first(%v) last(%v)", first,
			last)
	}

	// The inference network follows the training network
	one := sprite(1)
	m, _ := d.Score(one[replay.States], one[replay.NextStates],
		one[replay.Actions])
	if m.At(0, 0) <= m.At(0, 3) {
		t.Errorf("score: changed cell should score higher: %v", m)
	}
}

func TestLatentRestore(t *testing.T) {
	grid, _ := control.NewGrid(testShape, 2)
	c := LatentConfig{Config: testConfig(t, 2), NoiseEpsilon: 0.1, Bound: 1,
		Seed: 3}
	l, err := NewLatent(testShape, grid, 2, 1, c)
	if err != nil {
		t.Fatal(err)
	}

	batch := sprite(2)
	batch[replay.SkippedNextStates] = mat.NewDense(2, testShape.FrameSize(),
		nil)
	for i := 0; i < 5; i++ {
		if _, err := l.Train(batch); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "latent")
	if err := l.Store(path); err != nil {
		t.Fatal(err)
	}
	restored, err := NewLatent(testShape, grid, 2, 1, c)
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.Restore(path); err != nil {
		t.Fatal(err)
	}

	one := sprite(1)
	want, _ := l.Score(one[replay.States], one[replay.NextStates],
		one[replay.Actions])
	have, _ := restored.Score(one[replay.States], one[replay.NextStates],
		one[replay.Actions])
	if !mat.Equal(want, have) {
		t.Errorf("restore: \n\twant(%v)\n\thave(%v)", want, have)
	}

	if _, err := NewLatent(testShape, grid, 2, 1, LatentConfig{
		Config: testConfig(t, 2), NoiseEpsilon: 0.1}); err == nil {
		t.Error("newLatent: expected error on noise without bound")
	}
}

type countingLearner struct {
	batch, calls int
}

func (c *countingLearner) Train(b map[string]*mat.Dense) (float64, error) {
	c.calls++
	return float64(c.calls), nil
}

func (c *countingLearner) BatchSize() int { return c.batch }

func TestTrainerUpdate(t *testing.T) {
	buf, err := replay.New(replay.Config{Size: 10, Mode: replay.Fifo,
		Keys: replay.Keys(false, 1)})
	if err != nil {
		t.Fatal(err)
	}
	direct := &countingLearner{batch: 2}
	latent := &countingLearner{batch: 8}
	tr, err := NewTrainer(direct, latent, 3, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := buf.Push(sprite(4)); err != nil {
		t.Fatal(err)
	}
	losses, err := tr.Update(buf)
	if err != nil {
		t.Fatal(err)
	}
	if direct.calls != 3 || losses["direct_control_loss"] != 2 {
		t.Errorf("update: direct \n\twant(3, 2)\n\thave(%v, %v)",
			direct.calls, losses["direct_control_loss"])
	}
	if _, ok := losses["latent_control_loss"]; ok || latent.calls != 0 {
		t.Error("update: latent model trained on too small a buffer")
	}
}
