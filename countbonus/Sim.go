package countbonus

import (
	"fmt"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MaxSimBits is the largest supported signature length of a SimHash
const MaxSimBits = 64

// SimHash counts control maps by their locality-sensitive signature:
// the sign of the projection of the map onto each of k random
// Gaussian hyperplanes. Similar maps share signatures and so share
// counts.
type SimHash struct {
	dim    int
	k      int
	batch  int
	planes *mat.Dense
	counts map[uint64]float64
}

// NewSim returns a new SimHash over maps of dim elements with k-bit
// signatures. The hyperplanes are drawn from a source seeded by seed.
func NewSim(dim, k, batch int, seed uint64) (*SimHash, error) {
	if dim < 1 || k < 1 || k > MaxSimBits {
		return nil, fmt.Errorf("newSim: dimension must be positive and "+
			"bits in [1, %v]: have(%v, %v)", MaxSimBits, dim, k)
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}
	data := make([]float64, k*dim)
	for i := range data {
		data[i] = normal.Rand()
	}

	return &SimHash{
		dim:    dim,
		k:      k,
		batch:  batch,
		planes: mat.NewDense(k, dim, data),
		counts: make(map[uint64]float64),
	}, nil
}

// signature returns the k-bit signature of row
func (s *SimHash) signature(row []float64) uint64 {
	var key uint64
	for i := 0; i < s.k; i++ {
		if floats.Dot(s.planes.RawRowView(i), row) > 0 {
			key |= 1 << uint(i)
		}
	}
	return key
}

// Count implements the Estimator interface
func (s *SimHash) Count(row []float64) float64 {
	return s.counts[s.signature(row)]
}

// Observe implements the Estimator interface
func (s *SimHash) Observe(maps *mat.Dense) (*mat.VecDense, error) {
	if err := checkMaps("observe", maps, s.batch, s.dim); err != nil {
		return nil, err
	}
	return bonuses(maps, func(row []float64) float64 {
		key := s.signature(row)
		s.counts[key]++
		return Bonus(s.counts[key])
	}), nil
}

// Peek implements the Estimator interface
func (s *SimHash) Peek(maps *mat.Dense) (*mat.VecDense, error) {
	if err := checkMaps("peek", maps, s.batch, s.dim); err != nil {
		return nil, err
	}
	return bonuses(maps, func(row []float64) float64 {
		return Bonus(s.Count(row))
	}), nil
}

// Store implements the checkpointer.Persistable interface. The
// hyperplanes are stored with the counts so that a restored SimHash
// assigns the same signatures.
func (s *SimHash) Store(path string) error {
	return checkpointer.StoreGob(path, s.k, s.dim,
		s.planes.RawMatrix().Data, s.counts)
}

// Restore implements the checkpointer.Persistable interface
func (s *SimHash) Restore(path string) error {
	var k, dim int
	var planes []float64
	var counts map[uint64]float64
	if err := checkpointer.RestoreGob(path, &k, &dim, &planes,
		&counts); err != nil {
		return err
	}
	if k != s.k || dim != s.dim || len(planes) != k*dim {
		return fmt.Errorf("restore: stored signature (%v bits, %v dims) "+
			"differs from (%v bits, %v dims)", k, dim, s.k, s.dim)
	}
	if counts == nil {
		counts = make(map[uint64]float64)
	}
	s.planes = mat.NewDense(k, dim, planes)
	s.counts = counts
	return nil
}
