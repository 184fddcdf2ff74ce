package normalize

import (
	"fmt"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"gonum.org/v1/gonum/mat"
)

// RunningBinaryNorm tracks the running frequency with which each
// element of a stream of binary vectors is on. Normalizing a binary
// vector down-weights elements that are often on:
//
//		normalized_i = bits_i * (1 - p_i)
//
// where p_i is the running frequency of element i. Before any vector
// has been stacked, Normalize is the identity.
//
// The width of the tracked vectors is fixed by the first call to Stack.
type RunningBinaryNorm struct {
	count     float64
	frequency []float64
}

// NewRunningBinaryNorm returns a new RunningBinaryNorm
func NewRunningBinaryNorm() *RunningBinaryNorm {
	return &RunningBinaryNorm{}
}

// Count returns the number of vectors stacked
func (r *RunningBinaryNorm) Count() float64 { return r.count }

// Frequency returns a copy of the running per-element frequencies
func (r *RunningBinaryNorm) Frequency() []float64 {
	out := make([]float64, len(r.frequency))
	copy(out, r.frequency)
	return out
}

// Stack updates the running frequencies with each row of bits. Values
// are treated as on if they are non-zero.
func (r *RunningBinaryNorm) Stack(bits mat.Matrix) error {
	rows, cols := bits.Dims()
	if r.frequency == nil {
		r.frequency = make([]float64, cols)
	} else if cols != len(r.frequency) {
		return fmt.Errorf("stack: invalid width \n\twant(%v)\n\thave(%v)",
			len(r.frequency), cols)
	}

	for i := 0; i < rows; i++ {
		r.count++
		for j := 0; j < cols; j++ {
			bit := 0.0
			if bits.At(i, j) != 0 {
				bit = 1.0
			}
			r.frequency[j] += (bit - r.frequency[j]) / r.count
		}
	}
	return nil
}

// Normalize returns each row of bits scaled element-wise by one minus
// the running frequency of that element
func (r *RunningBinaryNorm) Normalize(bits mat.Matrix) (*mat.Dense, error) {
	rows, cols := bits.Dims()
	out := mat.DenseCopyOf(bits)
	if r.count == 0 {
		return out, nil
	}
	if cols != len(r.frequency) {
		return nil, fmt.Errorf("normalize: invalid width \n\twant(%v)"+
			"\n\thave(%v)", len(r.frequency), cols)
	}

	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] *= 1 - r.frequency[j]
		}
	}
	return out, nil
}

// Store implements the checkpointer.Persistable interface
func (r *RunningBinaryNorm) Store(path string) error {
	return checkpointer.StoreGob(path, r.count, r.frequency)
}

// Restore implements the checkpointer.Persistable interface
func (r *RunningBinaryNorm) Restore(path string) error {
	var count float64
	var frequency []float64
	if err := checkpointer.RestoreGob(path, &count, &frequency); err != nil {
		return err
	}
	r.count, r.frequency = count, frequency
	return nil
}
