// Package countbonus implements count-based exploration bonuses over
// control maps. Each Estimator discretizes a map into a key, counts
// how often each key has been observed and returns a bonus which
// decreases with the count.
package countbonus

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// HashType determines how control maps are discretized
type HashType string

const (
	// Hard hashes binarized maps into a count-min sketch
	Hard HashType = "hard"

	// Index counts the grid index of the most controlled cell
	Index HashType = "index"

	// Sim hashes maps with random hyperplanes into k-bit signatures
	Sim HashType = "sim"
)

// Validate returns an error if h is not a known hash type
func (h HashType) Validate() error {
	switch h {
	case Hard, Index, Sim:
		return nil
	}
	return fmt.Errorf("validate: unknown hash type %q \n\twant(%v, %v, "+
		"or %v)", h, Hard, Index, Sim)
}

// Params holds the parameters of all estimators. Only those relevant
// to the chosen HashType are used.
type Params struct {
	// NumGrid is the number of grid cells per side of a control map,
	// so that maps have NumGrid*NumGrid elements
	NumGrid int

	// M is the number of slots per row of the Hard sketch
	M int

	// K is the number of bits of a Sim signature
	K int

	// Normalize makes Index report visitation frequencies in [0, 1]
	// instead of raw counts
	Normalize bool
}

// Estimator is a count-based exploration bonus. Each row of maps is
// one environment's control map.
type Estimator interface {
	// Observe records each row of maps and returns the bonus of each
	// row after recording it
	Observe(maps *mat.Dense) (*mat.VecDense, error)

	// Peek returns the bonus of each row of maps without recording
	// anything
	Peek(maps *mat.Dense) (*mat.VecDense, error)

	// Count returns the recorded count of a single map
	Count(row []float64) float64

	checkpointer.Persistable
}

// New returns a new Estimator of type h for batches of batch maps
func New(h HashType, p Params, batch int, seed uint64) (Estimator, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if p.NumGrid < 1 || batch < 1 {
		return nil, fmt.Errorf("new: grid size and batch must be positive: "+
			"have(%v, %v)", p.NumGrid, batch)
	}

	switch h {
	case Hard:
		return NewHard(p.NumGrid*p.NumGrid, p.M, p.NumGrid*p.NumGrid, batch)
	case Index:
		return NewIndex(p.NumGrid, batch, p.Normalize)
	default:
		return NewSim(p.NumGrid*p.NumGrid, p.K, batch, seed)
	}
}

// Bonus returns the exploration bonus of a count, 1/sqrt(max(count, 1))
func Bonus(count float64) float64 {
	return 1 / math.Sqrt(math.Max(count, 1))
}

// binarize returns which elements of a map are above the map's mean
func binarize(row []float64) []bool {
	mean := stat.Mean(row, nil)
	bits := make([]bool, len(row))
	for i, v := range row {
		bits[i] = v > mean
	}
	return bits
}

func checkMaps(op string, maps *mat.Dense, batch, dim int) error {
	r, c := maps.Dims()
	if r != batch || c != dim {
		return fmt.Errorf("%v: invalid control maps \n\twant(%v, %v)"+
			"\n\thave(%v, %v)", op, batch, dim, r, c)
	}
	return nil
}

// bonuses applies f to each row of maps
func bonuses(maps *mat.Dense, f func(row []float64) float64) *mat.VecDense {
	r, _ := maps.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, f(maps.RawRowView(i)))
	}
	return out
}
