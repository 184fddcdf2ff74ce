package countbonus

import (
	"fmt"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// IndexHash keeps one count per grid index, keyed by the cell of a
// control map with the largest score. Distinct keys never collide.
//
// If normalized, counts are reported as the fraction of all
// observations made at the key, and the bonus of a key is one minus
// that fraction.
type IndexHash struct {
	numGrid   int
	batch     int
	normalize bool
	counts    []float64
	total     float64
}

// NewIndex returns a new IndexHash over numGrid x numGrid maps
func NewIndex(numGrid, batch int, normalize bool) (*IndexHash, error) {
	if numGrid < 1 {
		return nil, fmt.Errorf("newIndex: grid size must be positive "+
			"\n\twant(>=1)\n\thave(%v)", numGrid)
	}
	return &IndexHash{
		numGrid:   numGrid,
		batch:     batch,
		normalize: normalize,
		counts:    make([]float64, numGrid*numGrid),
	}, nil
}

// Count implements the Estimator interface
func (x *IndexHash) Count(row []float64) float64 {
	n := x.counts[floats.MaxIdx(row)]
	if !x.normalize {
		return n
	}
	if x.total == 0 {
		return 0
	}
	return n / x.total
}

func (x *IndexHash) bonus(row []float64) float64 {
	if x.normalize {
		return 1 - x.Count(row)
	}
	return Bonus(x.Count(row))
}

// Observe implements the Estimator interface
func (x *IndexHash) Observe(maps *mat.Dense) (*mat.VecDense, error) {
	if err := checkMaps("observe", maps, x.batch, len(x.counts)); err != nil {
		return nil, err
	}
	return bonuses(maps, func(row []float64) float64 {
		x.counts[floats.MaxIdx(row)]++
		x.total++
		return x.bonus(row)
	}), nil
}

// Peek implements the Estimator interface
func (x *IndexHash) Peek(maps *mat.Dense) (*mat.VecDense, error) {
	if err := checkMaps("peek", maps, x.batch, len(x.counts)); err != nil {
		return nil, err
	}
	return bonuses(maps, x.bonus), nil
}

// Store implements the checkpointer.Persistable interface
func (x *IndexHash) Store(path string) error {
	return checkpointer.StoreGob(path, x.counts, x.total)
}

// Restore implements the checkpointer.Persistable interface
func (x *IndexHash) Restore(path string) error {
	var counts []float64
	var total float64
	if err := checkpointer.RestoreGob(path, &counts, &total); err != nil {
		return err
	}
	if len(counts) != len(x.counts) {
		return fmt.Errorf("restore: stored %v counts, expected %v",
			len(counts), len(x.counts))
	}
	x.counts, x.total = counts, total
	return nil
}
