package gridworld

import (
	"testing"

	"github.com/samuelfneumann/mega/environment"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func newPixel(t *testing.T, c Config, n int) *Pixel {
	p, err := New(c, n, 7)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p
}

func TestPixelReset(t *testing.T) {
	c := Config{Rows: 3, Cols: 4, Scale: 2, Stack: 2, StepLimit: 10}
	p := newPixel(t, c, 3)
	obs, err := p.Reset()
	if err != nil {
		t.Fatal(err)
	}

	rows, cols := obs.Dims()
	if rows != 3 || cols != 2*6*8 {
		t.Fatalf("dims: \n\twant(3, %v)\n\thave(%v, %v)", 2*6*8, rows, cols)
	}

	size := p.Shape().FrameSize()
	for i := 0; i < rows; i++ {
		row := obs.RawRowView(i)
		if s := floats.Sum(row[:size]); s != 0 {
			t.Errorf("older frame not cleared: \n\twant(0)\n\thave(%v)", s)
		}
		want := 4 * (GoalValue + AgentValue)
		if s := floats.Sum(row[size:]); s != want {
			t.Errorf("last frame: \n\twant(%v)\n\thave(%v)", want, s)
		}
	}
}

func TestPixelStepStacksFrames(t *testing.T) {
	c := Config{Rows: 3, Cols: 3, Scale: 1, Stack: 2, StepLimit: 10}
	p := newPixel(t, c, 1)
	first, _ := p.Reset()

	obs, _, done, _, err := p.Step([]int{NoOp})
	if err != nil {
		t.Fatal(err)
	}
	if done[0] {
		t.Fatalf("done after a no-op")
	}
	size := p.Shape().FrameSize()
	if !floats.Equal(obs.RawRowView(0)[:size], first.RawRowView(0)[size:]) {
		t.Errorf("previous frame was not shifted into the stack")
	}
}

func TestPixelGoal(t *testing.T) {
	c := Config{Rows: 1, Cols: 3, Scale: 1, Stack: 1, StepLimit: 10,
		GoalReward: 1, StepReward: -0.1}
	p := newPixel(t, c, 1)
	p.Reset()

	var info environment.Info
	var reward float64
	for i := 0; i < 2; i++ {
		_, r, done, infos, err := p.Step([]int{Right})
		if err != nil {
			t.Fatal(err)
		}
		if done[0] {
			info, reward = infos[0], r.AtVec(0)
			break
		}
	}
	if info.Episode == nil {
		t.Fatalf("goal was not reached within 2 steps")
	}
	if reward != 1 {
		t.Errorf("goal reward: \n\twant(1)\n\thave(%v)", reward)
	}
	if row, col := p.Agent(0); row == 0 && col == 2 {
		t.Errorf("environment was not reset after reaching the goal")
	}
	want := 1 - 0.1*float64(info.Episode.Length-1)
	if !scalar.EqualWithinAbs(info.Episode.Return, want, 1e-12) {
		t.Errorf("return: \n\twant(%v)\n\thave(%v)", want,
			info.Episode.Return)
	}
}

func TestPixelStepLimit(t *testing.T) {
	c := Config{Rows: 2, Cols: 2, Scale: 1, Stack: 1, StepLimit: 3}
	p := newPixel(t, c, 2)
	p.Reset()

	for i := 1; i <= 3; i++ {
		_, _, done, infos, _ := p.Step([]int{NoOp, NoOp})
		if want := i == 3; done[0] != want || done[1] != want {
			t.Fatalf("step %v done: \n\twant(%v)\n\thave(%v)", i, want, done)
		}
		if i == 3 && infos[0].Episode.Length != 3 {
			t.Errorf("length: \n\twant(3)\n\thave(%v)",
				infos[0].Episode.Length)
		}
	}
}

func TestPixelInvalidActions(t *testing.T) {
	p := newPixel(t, Config{Rows: 2, Cols: 2, Scale: 1, Stack: 1}, 2)
	p.Reset()
	if _, _, _, _, err := p.Step([]int{0}); err == nil {
		t.Errorf("expected an error for too few actions")
	}
	if _, _, _, _, err := p.Step([]int{0, numActions}); err == nil {
		t.Errorf("expected an error for an invalid action")
	}
}
