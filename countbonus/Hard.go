package countbonus

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"gonum.org/v1/gonum/mat"
)

// HardHash counts binarized control maps in a count-min sketch of k
// rows of m slots. Each row hashes a map with a different member of a
// fixed hash family, and the count of a map is the minimum of its
// slots over all rows, which never underestimates the true count.
type HardHash struct {
	dim   int
	k, m  int
	batch int
	table [][]float64
}

// NewHard returns a new HardHash over maps of dim elements
func NewHard(dim, m, k, batch int) (*HardHash, error) {
	if dim < 1 || m < 1 || k < 1 {
		return nil, fmt.Errorf("newHard: dimension, slots and rows must be "+
			"positive: have(%v, %v, %v)", dim, m, k)
	}
	table := make([][]float64, k)
	for i := range table {
		table[i] = make([]float64, m)
	}
	return &HardHash{dim: dim, k: k, m: m, batch: batch, table: table}, nil
}

// slot returns the slot of bits in row i of the sketch
func (h *HardHash) slot(i int, bits []bool) int {
	hash := fnv.New64a()
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(i))
	hash.Write(seed[:])

	packed := make([]byte, (len(bits)+7)/8)
	for j, b := range bits {
		if b {
			packed[j/8] |= 1 << (j % 8)
		}
	}
	hash.Write(packed)
	return int(hash.Sum64() % uint64(h.m))
}

// Count implements the Estimator interface
func (h *HardHash) Count(row []float64) float64 {
	bits := binarize(row)
	count := math.Inf(1)
	for i := range h.table {
		count = math.Min(count, h.table[i][h.slot(i, bits)])
	}
	return count
}

// Observe implements the Estimator interface
func (h *HardHash) Observe(maps *mat.Dense) (*mat.VecDense, error) {
	if err := checkMaps("observe", maps, h.batch, h.dim); err != nil {
		return nil, err
	}
	return bonuses(maps, func(row []float64) float64 {
		bits := binarize(row)
		for i := range h.table {
			h.table[i][h.slot(i, bits)]++
		}
		return Bonus(h.Count(row))
	}), nil
}

// Peek implements the Estimator interface
func (h *HardHash) Peek(maps *mat.Dense) (*mat.VecDense, error) {
	if err := checkMaps("peek", maps, h.batch, h.dim); err != nil {
		return nil, err
	}
	return bonuses(maps, func(row []float64) float64 {
		return Bonus(h.Count(row))
	}), nil
}

// Store implements the checkpointer.Persistable interface
func (h *HardHash) Store(path string) error {
	return checkpointer.StoreGob(path, h.k, h.m, h.table)
}

// Restore implements the checkpointer.Persistable interface
func (h *HardHash) Restore(path string) error {
	var k, m int
	var table [][]float64
	if err := checkpointer.RestoreGob(path, &k, &m, &table); err != nil {
		return err
	}
	if k != h.k || m != h.m || len(table) != k {
		return fmt.Errorf("restore: stored sketch (%v, %v) differs from "+
			"(%v, %v)", k, m, h.k, h.m)
	}
	h.table = table
	return nil
}
