// Package normalize implements streaming estimators used to normalize
// observation and reward streams
package normalize

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Epsilon is used both as the initial pseudo-count of a RunningMeanStd
// and as the smoothing term when dividing by a standard deviation
const Epsilon float64 = 1e-4

// RunningMeanStd tracks the running mean and (population) variance of
// a stream of scalars, updated in batches with the parallel algorithm
// of Chan et al.
//
// Values can either be used to update the statistics directly with
// Update, or be stacked with StackAndNormalize and later used to
// update the statistics all at once with UpdateFromStack. The second
// form lets a batch of rewards be normalized with fixed statistics
// over an entire rollout.
type RunningMeanStd struct {
	count    float64
	mean     float64
	variance float64

	stack []float64
}

// NewRunningMeanStd returns a new RunningMeanStd with mean 0 and
// variance 1
func NewRunningMeanStd() *RunningMeanStd {
	return &RunningMeanStd{
		count:    Epsilon,
		mean:     0.0,
		variance: 1.0,
	}
}

// Count returns the (pseudo-)count of values seen
func (r *RunningMeanStd) Count() float64 { return r.count }

// Mean returns the running mean
func (r *RunningMeanStd) Mean() float64 { return r.mean }

// Variance returns the running population variance
func (r *RunningMeanStd) Variance() float64 { return r.variance }

// Std returns the running standard deviation, smoothed by Epsilon
func (r *RunningMeanStd) Std() float64 {
	return math.Sqrt(r.variance + Epsilon)
}

// Update updates the running statistics with a batch of values
func (r *RunningMeanStd) Update(batch []float64) {
	if len(batch) == 0 {
		return
	}
	batchMean := stat.Mean(batch, nil)

	batchVar := 0.0
	for _, v := range batch {
		batchVar += (v - batchMean) * (v - batchMean)
	}
	batchCount := float64(len(batch))
	batchVar /= batchCount

	r.updateFromMoments(batchMean, batchVar, batchCount)
}

func (r *RunningMeanStd) updateFromMoments(batchMean, batchVar,
	batchCount float64) {
	delta := batchMean - r.mean
	total := r.count + batchCount

	newMean := r.mean + delta*batchCount/total
	m2 := r.variance*r.count + batchVar*batchCount +
		delta*delta*r.count*batchCount/total

	r.mean = newMean
	r.variance = m2 / total
	r.count = total
}

// Normalize scales x by the running standard deviation. The mean is
// not subtracted so that the sign of x is kept.
func (r *RunningMeanStd) Normalize(x *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(x.Len(), nil)
	out.ScaleVec(1/r.Std(), x)
	return out
}

// StackAndNormalize stacks x to later be used in UpdateFromStack and
// returns x normalized with the current statistics
func (r *RunningMeanStd) StackAndNormalize(x *mat.VecDense) *mat.VecDense {
	for i := 0; i < x.Len(); i++ {
		r.stack = append(r.stack, x.AtVec(i))
	}
	return r.Normalize(x)
}

// Stacked returns the number of values waiting in the stack
func (r *RunningMeanStd) Stacked() int {
	return len(r.stack)
}

// UpdateFromStack updates the running statistics with all stacked
// values and empties the stack
func (r *RunningMeanStd) UpdateFromStack() {
	r.Update(r.stack)
	r.stack = r.stack[:0]
}

// Store implements the checkpointer.Persistable interface
func (r *RunningMeanStd) Store(path string) error {
	return checkpointer.StoreGob(path, r.count, r.mean, r.variance,
		r.stack)
}

// Restore implements the checkpointer.Persistable interface
func (r *RunningMeanStd) Restore(path string) error {
	var count, mean, variance float64
	var stack []float64
	if err := checkpointer.RestoreGob(path, &count, &mean, &variance,
		&stack); err != nil {
		return err
	}
	if count <= 0 || variance < 0 || floats.HasNaN([]float64{mean,
		variance}) {
		return fmt.Errorf("restore: invalid statistics in %v", path)
	}
	r.count, r.mean, r.variance, r.stack = count, mean, variance, stack
	return nil
}

func (r *RunningMeanStd) String() string {
	return fmt.Sprintf("RunningMeanStd | count: %.2f  |  mean: %.4f  |  "+
		"var: %.4f", r.count, r.mean, r.variance)
}
