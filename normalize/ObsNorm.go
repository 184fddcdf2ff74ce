package normalize

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ObsNorm normalizes pixel observations with a single scalar mean and
// standard deviation estimated over all pixels of all observations
// seen during a warm-up period. It also tracks the bound on the
// magnitude of normalized observations, which perturbation-based
// control models use to scale their noise.
type ObsNorm struct {
	stats    *RunningMeanStd
	min, max float64
}

// NewObsNorm returns a new ObsNorm which performs no normalization
// until it has been updated
func NewObsNorm() *ObsNorm {
	return &ObsNorm{
		stats: NewRunningMeanStd(),
		min:   math.Inf(1),
		max:   math.Inf(-1),
	}
}

// Update updates the observation statistics with a batch of
// observations, one per row
func (o *ObsNorm) Update(batch *mat.Dense) {
	rows, _ := batch.Dims()
	for i := 0; i < rows; i++ {
		row := batch.RawRowView(i)
		o.stats.Update(row)
		o.min = math.Min(o.min, floats.Min(row))
		o.max = math.Max(o.max, floats.Max(row))
	}
}

// Fitted returns whether the ObsNorm has seen any observations
func (o *ObsNorm) Fitted() bool {
	return !math.IsInf(o.max, -1)
}

// Mean returns the observation mean
func (o *ObsNorm) Mean() float64 { return o.stats.Mean() }

// Std returns the observation standard deviation
func (o *ObsNorm) Std() float64 { return o.stats.Std() }

// Bound returns the largest magnitude of a normalized observation
// seen so far, or 1.0 if the ObsNorm has not been fitted
func (o *ObsNorm) Bound() float64 {
	if !o.Fitted() {
		return 1.0
	}
	lo := math.Abs(o.min-o.Mean()) / o.Std()
	hi := math.Abs(o.max-o.Mean()) / o.Std()
	return math.Max(lo, hi)
}

// NormalizeBatch returns a normalized copy of a batch of observations
func (o *ObsNorm) NormalizeBatch(batch *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(batch)
	if !o.Fitted() {
		return out
	}
	mean, std := o.Mean(), o.Std()
	out.Apply(func(_, _ int, v float64) float64 {
		return (v - mean) / std
	}, out)
	return out
}

// Store implements the checkpointer.Persistable interface
func (o *ObsNorm) Store(path string) error {
	return checkpointer.StoreGob(path, o.stats.count, o.stats.mean,
		o.stats.variance, o.min, o.max)
}

// Restore implements the checkpointer.Persistable interface
func (o *ObsNorm) Restore(path string) error {
	var count, mean, variance, lo, hi float64
	if err := checkpointer.RestoreGob(path, &count, &mean, &variance, &lo,
		&hi); err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("restore: invalid count %v in %v", count, path)
	}
	o.stats.count, o.stats.mean, o.stats.variance = count, mean, variance
	o.min, o.max = lo, hi
	return nil
}
