package normalize

import (
	"math"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestObsNormUnfitted(t *testing.T) {
	o := NewObsNorm()
	if o.Fitted() {
		t.Error("fitted: expected unfitted ObsNorm")
	}
	if o.Bound() != 1.0 {
		t.Errorf("bound: \n\twant(1)\n\thave(%v)", o.Bound())
	}

	batch := mat.NewDense(1, 3, []float64{0, 0.5, 1})
	if out := o.NormalizeBatch(batch); !mat.Equal(out, batch) {
		t.Errorf("normalizeBatch: \n\twant(%v)\n\thave(%v)",
			mat.Formatted(batch), mat.Formatted(out))
	}
}

func TestObsNormNormalizeBatch(t *testing.T) {
	o := NewObsNorm()
	o.Update(mat.NewDense(2, 4, []float64{
		0, 0, 1, 1,
		0, 1, 0, 1,
	}))

	if math.Abs(o.Mean()-0.5) > 1e-3 {
		t.Errorf("mean: \n\twant(0.5)\n\thave(%v)", o.Mean())
	}
	if math.Abs(o.Std()-0.5) > 1e-3 {
		t.Errorf("std: \n\twant(0.5)\n\thave(%v)", o.Std())
	}
	if math.Abs(o.Bound()-1.0) > 1e-2 {
		t.Errorf("bound: \n\twant(1)\n\thave(%v)", o.Bound())
	}

	out := o.NormalizeBatch(mat.NewDense(1, 2, []float64{0, 1}))
	want := mat.NewDense(1, 2, []float64{-1, 1})
	if !mat.EqualApprox(out, want, 1e-2) {
		t.Errorf("normalizeBatch: \n\twant(%v)\n\thave(%v)",
			mat.Formatted(want), mat.Formatted(out))
	}
}

func TestObsNormRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs_norm")
	o := NewObsNorm()
	o.Update(mat.NewDense(1, 3, []float64{1, 2, 6}))
	if err := o.Store(path); err != nil {
		t.Fatal(err)
	}

	restored := NewObsNorm()
	if err := restored.Restore(path); err != nil {
		t.Fatal(err)
	}
	if restored.Mean() != o.Mean() || restored.Std() != o.Std() ||
		restored.Bound() != o.Bound() {
		t.Errorf("restore: \n\twant(%v, %v, %v)\n\thave(%v, %v, %v)",
			o.Mean(), o.Std(), o.Bound(), restored.Mean(), restored.Std(),
			restored.Bound())
	}
}
