// Package gridworld implements 2D gridworld environments observed
// through pixels
package gridworld

import (
	"fmt"

	"github.com/samuelfneumann/mega/environment"
	"github.com/samuelfneumann/mega/timestep"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Actions available to the agent
const (
	Left int = iota
	Right
	Up
	Down
	NoOp
	numActions
)

// Pixel intensities of the objects in a frame. The agent is drawn last
// so that it is always visible.
const (
	GoalValue       = 0.25
	DistractorValue = 0.5
	AgentValue      = 1.0
)

// Config configures a Pixel gridworld
type Config struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`

	// Scale is the side length of a tile in pixels
	Scale int `json:"scale"`

	// Stack is the number of most recent frames in an observation
	Stack int `json:"stack"`

	StepLimit  int     `json:"step_limit"`
	GoalReward float64 `json:"goal_reward"`
	StepReward float64 `json:"step_reward"`

	// Distractor adds a sprite which moves randomly and cannot be
	// controlled by the agent
	Distractor bool `json:"distractor"`
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.Rows < 1 || c.Cols < 1 || c.Rows*c.Cols < 2 {
		return fmt.Errorf("validate: gridworld must have at least 2 tiles: "+
			"(%v, %v)", c.Rows, c.Cols)
	}
	if c.Scale < 1 {
		return fmt.Errorf("validate: scale must be positive \n\twant(>=1)"+
			"\n\thave(%v)", c.Scale)
	}
	if c.Stack < 1 {
		return fmt.Errorf("validate: stack must be positive \n\twant(>=1)"+
			"\n\thave(%v)", c.Stack)
	}
	return nil
}

// Shape returns the shape of observations of the gridworld
func (c Config) Shape() timestep.Shape {
	return timestep.Shape{
		Stack:  c.Stack,
		Height: c.Rows * c.Scale,
		Width:  c.Cols * c.Scale,
	}
}

func (c Config) String() string {
	return fmt.Sprintf("gridworld %vx%v scale %v stack %v", c.Rows, c.Cols,
		c.Scale, c.Stack)
}

type position struct {
	row, col int
}

// move returns the position after taking action a, staying in place
// when the move would leave the grid
func (p position) move(a, rows, cols int) position {
	switch a {
	case Left:
		if p.col-1 >= 0 {
			p.col--
		}
	case Right:
		if p.col+1 < cols {
			p.col++
		}
	case Up:
		if p.row-1 >= 0 {
			p.row--
		}
	case Down:
		if p.row+1 < rows {
			p.row++
		}
	}
	return p
}

// Pixel implements N independent gridworlds in which an agent sprite
// must reach a goal tile in the bottom right corner. Observations are
// stacks of the most recent frames, each frame being an image of the
// gridworld. Episodes end when the agent reaches the goal or when the
// step limit is reached, after which the gridworld is reset.
type Pixel struct {
	config  Config
	shape   timestep.Shape
	numEnvs int

	environment.StepLimit
	starter environment.LatticeStarter
	rng     *rand.Rand

	goal        position
	agents      []position
	distractors []position
	steps       []int
	returns     []float64
	frames      [][]float64
}

// New returns a new Pixel gridworld with numEnvs parallel environments
func New(c Config, numEnvs int, seed uint64) (*Pixel, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if numEnvs < 1 {
		return nil, fmt.Errorf("new: number of environments must be "+
			"positive \n\twant(>=1)\n\thave(%v)", numEnvs)
	}

	shape := c.Shape()
	frames := make([][]float64, numEnvs)
	for i := range frames {
		frames[i] = make([]float64, shape.Size())
	}

	return &Pixel{
		config:      c,
		shape:       shape,
		numEnvs:     numEnvs,
		StepLimit:   environment.NewStepLimit(c.StepLimit),
		starter:     environment.NewLatticeStarter([]int{c.Rows, c.Cols}, seed),
		rng:         rand.New(rand.NewSource(seed + 1)),
		goal:        position{c.Rows - 1, c.Cols - 1},
		agents:      make([]position, numEnvs),
		distractors: make([]position, numEnvs),
		steps:       make([]int, numEnvs),
		returns:     make([]float64, numEnvs),
		frames:      frames,
	}, nil
}

// Shape returns the shape of a single stacked observation
func (p *Pixel) Shape() timestep.Shape { return p.shape }

// NumActions returns the number of discrete actions
func (p *Pixel) NumActions() int { return numActions }

// NumEnvs returns the number of parallel environments
func (p *Pixel) NumEnvs() int { return p.numEnvs }

// Goal returns the row and column of the goal tile
func (p *Pixel) Goal() (row, col int) { return p.goal.row, p.goal.col }

// Agent returns the row and column of the agent of environment i
func (p *Pixel) Agent(i int) (row, col int) {
	return p.agents[i].row, p.agents[i].col
}

// Reset resets all environments and returns their first observations
func (p *Pixel) Reset() (*mat.Dense, error) {
	for i := 0; i < p.numEnvs; i++ {
		p.reset(i)
	}
	return p.observation(), nil
}

// Step takes one action in each environment
func (p *Pixel) Step(actions []int) (*mat.Dense, *mat.VecDense, []bool,
	[]environment.Info, error) {
	if len(actions) != p.numEnvs {
		return nil, nil, nil, nil, fmt.Errorf("step: expected one action "+
			"per environment \n\twant(%v)\n\thave(%v)", p.numEnvs,
			len(actions))
	}
	for _, a := range actions {
		if a < 0 || a >= numActions {
			return nil, nil, nil, nil, fmt.Errorf("step: invalid action "+
				"%v \n\twant([0, %v))", a, numActions)
		}
	}

	reward := mat.NewVecDense(p.numEnvs, nil)
	done := make([]bool, p.numEnvs)
	infos := make([]environment.Info, p.numEnvs)

	for i, a := range actions {
		p.agents[i] = p.agents[i].move(a, p.config.Rows, p.config.Cols)
		if p.config.Distractor {
			p.distractors[i] = p.distractors[i].move(p.rng.Intn(numActions),
				p.config.Rows, p.config.Cols)
		}
		p.steps[i]++

		r := p.config.StepReward
		atGoal := p.agents[i] == p.goal
		if atGoal {
			r = p.config.GoalReward
		}
		reward.SetVec(i, r)
		p.returns[i] += r

		if atGoal || p.End(p.steps[i]) {
			done[i] = true
			infos[i].Episode = &environment.Episode{
				Return: p.returns[i],
				Length: p.steps[i],
			}
			p.reset(i)
			continue
		}

		// Shift the frame stack and draw the newest frame
		size := p.shape.FrameSize()
		copy(p.frames[i], p.frames[i][size:])
		p.draw(i, p.shape.LastFrame(p.frames[i]))
	}

	return p.observation(), reward, done, infos, nil
}

// reset starts a new episode in environment i
func (p *Pixel) reset(i int) {
	p.agents[i] = p.start()
	p.distractors[i] = p.start()
	p.steps[i] = 0
	p.returns[i] = 0

	for j := range p.frames[i] {
		p.frames[i][j] = 0
	}
	p.draw(i, p.shape.LastFrame(p.frames[i]))
}

// start samples a starting position which is not the goal
func (p *Pixel) start() position {
	for {
		pos := p.starter.Position()
		if start := (position{pos[0], pos[1]}); start != p.goal {
			return start
		}
	}
}

// draw draws the current frame of environment i into frame
func (p *Pixel) draw(i int, frame []float64) {
	for j := range frame {
		frame[j] = 0
	}
	p.fill(frame, p.goal, GoalValue)
	if p.config.Distractor {
		p.fill(frame, p.distractors[i], DistractorValue)
	}
	p.fill(frame, p.agents[i], AgentValue)
}

// fill fills the tile at pos in frame with value
func (p *Pixel) fill(frame []float64, pos position, value float64) {
	scale, width := p.config.Scale, p.shape.Width
	for r := pos.row * scale; r < (pos.row+1)*scale; r++ {
		for c := pos.col * scale; c < (pos.col+1)*scale; c++ {
			frame[r*width+c] = value
		}
	}
}

func (p *Pixel) observation() *mat.Dense {
	obs := mat.NewDense(p.numEnvs, p.shape.Size(), nil)
	for i, frames := range p.frames {
		obs.SetRow(i, frames)
	}
	return obs
}

func (p *Pixel) String() string {
	return fmt.Sprintf("Pixel | Envs: %v  |  Bounds: (%d, %d)  |  Goal: %v",
		p.numEnvs, p.config.Rows, p.config.Cols, p.goal)
}
