package environment

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
)

// UniformStarter samples starting states uniformly from a box
type UniformStarter struct {
	features int
	rand     *distmv.Uniform
}

// NewUniformStarter returns a new UniformStarter over bounds
func NewUniformStarter(bounds []r1.Interval, seed uint64) UniformStarter {
	source := rand.NewSource(seed)
	rand := distmv.NewUniform(bounds, source)
	return UniformStarter{len(bounds), rand}
}

// Start samples a starting state
func (u UniformStarter) Start() []float64 {
	return u.rand.Rand(make([]float64, u.features))
}

// LatticeStarter samples starting positions uniformly from an integer
// lattice [0, dims[0]) x [0, dims[1]) x ...
type LatticeStarter struct {
	UniformStarter
	dims []int
}

// NewLatticeStarter returns a new LatticeStarter over a lattice with
// the given dimensions
func NewLatticeStarter(dims []int, seed uint64) LatticeStarter {
	bounds := make([]r1.Interval, len(dims))
	for i, d := range dims {
		bounds[i] = r1.Interval{Min: 0, Max: float64(d)}
	}
	return LatticeStarter{NewUniformStarter(bounds, seed), dims}
}

// Position samples a starting lattice position
func (l LatticeStarter) Position() []int {
	start := l.Start()
	pos := make([]int, len(start))
	for i, v := range start {
		pos[i] = min(int(math.Floor(v)), l.dims[i]-1)
	}
	return pos
}
