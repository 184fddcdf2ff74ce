package control

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// State holds the control maps carried across environment steps. The
// training loop owns a State and passes it to the Aggregator at each
// step.
//
// M is the direct control map, DeltaUG the latent control change and
// G the accumulated latent control. All are N x cells. Each is nil
// until the first on-cadence step.
type State struct {
	M       *mat.Dense
	G       *mat.Dense
	DeltaUG *mat.Dense
}

// Ready returns whether the State has been populated by an on-cadence
// step
func (s *State) Ready() bool {
	return s.M != nil
}

// Aggregator combines direct control scores with a discounted
// accumulation of latent control changes, recomputing both only every
// skip steps:
//
//	M = direct(last, now, a) ⊙ mask(last, now)
//	δ = latent(last, now, a)
//	G = discount * G ⊙ continuation + δ
//
// On off-cadence steps no scorer is queried and the previous values
// are held. Independently of the cadence, G is zeroed on every step
// for environments whose episode has ended.
type Aggregator struct {
	direct   Scorer
	latent   Scorer
	mask     *MaskEstimator
	skip     int
	discount float64
}

// NewAggregator returns a new Aggregator. If latent is nil, the
// latent control change is always zero.
func NewAggregator(direct, latent Scorer, mask *MaskEstimator, skip int,
	discount float64) (*Aggregator, error) {
	if direct == nil {
		return nil, fmt.Errorf("newAggregator: direct scorer must be non-nil")
	}
	if mask == nil {
		return nil, fmt.Errorf("newAggregator: mask estimator must be " +
			"non-nil")
	}
	if skip < 1 {
		return nil, fmt.Errorf("newAggregator: skip must be positive "+
			"\n\twant(>=1)\n\thave(%v)", skip)
	}
	if discount < 0 || discount > 1 {
		return nil, fmt.Errorf("newAggregator: discount must be in [0, 1] "+
			"\n\thave(%v)", discount)
	}

	return &Aggregator{
		direct:   direct,
		latent:   latent,
		mask:     mask,
		skip:     skip,
		discount: discount,
	}, nil
}

// Skip returns the decision cadence
func (a *Aggregator) Skip() int { return a.skip }

// OnCadence returns whether control maps are recomputed at step
func (a *Aggregator) OnCadence(step int) bool {
	return step%a.skip == 0
}

// Reset zeroes the accumulated control of each environment whose
// continuation mask is zero
func (a *Aggregator) Reset(s *State, masks *mat.VecDense) error {
	if s.G == nil {
		return nil
	}
	rows, _ := s.G.Dims()
	if masks.Len() != rows {
		return fmt.Errorf("reset: invalid number of masks \n\twant(%v)"+
			"\n\thave(%v)", rows, masks.Len())
	}
	for i := 0; i < rows; i++ {
		floats.Scale(masks.AtVec(i), s.G.RawRowView(i))
	}
	return nil
}

// Step advances s by one environment step. last holds the stacked
// observations before the step, now the newest frame after the step,
// onehot the actions taken and masks the continuation masks returned
// by the environment. Step returns whether the maps were recomputed.
func (a *Aggregator) Step(s *State, step int, last, now, onehot *mat.Dense,
	masks *mat.VecDense) (bool, error) {
	if err := a.Reset(s, masks); err != nil {
		return false, fmt.Errorf("step: %v", err)
	}
	if !a.OnCadence(step) {
		return false, nil
	}

	m, err := a.direct.Score(last, now, onehot)
	if err != nil {
		return false, fmt.Errorf("step: could not score direct control: %v",
			err)
	}
	mask, err := a.mask.Estimate(last, now)
	if err != nil {
		return false, fmt.Errorf("step: %v", err)
	}
	if err := sameDims(m, mask); err != nil {
		return false, fmt.Errorf("step: direct control map: %v", err)
	}
	m.MulElem(m, mask)

	rows, cols := m.Dims()
	if masks.Len() != rows {
		return false, fmt.Errorf("step: invalid number of masks \n\twant(%v)"+
			"\n\thave(%v)", rows, masks.Len())
	}

	var delta *mat.Dense
	if a.latent != nil {
		delta, err = a.latent.Score(last, now, onehot)
		if err != nil {
			return false, fmt.Errorf("step: could not score latent "+
				"control: %v", err)
		}
		if err := sameDims(m, delta); err != nil {
			return false, fmt.Errorf("step: latent control map: %v", err)
		}
	} else {
		delta = mat.NewDense(rows, cols, nil)
	}

	// Lazily allocate G on the first on-cadence step
	if s.G == nil {
		s.G = mat.NewDense(rows, cols, nil)
	}
	for i := 0; i < rows; i++ {
		floats.Scale(a.discount*masks.AtVec(i), s.G.RawRowView(i))
	}
	s.G.Add(s.G, delta)

	s.M, s.DeltaUG = m, delta
	return true, nil
}

func sameDims(want, have mat.Matrix) error {
	wr, wc := want.Dims()
	hr, hc := have.Dims()
	if wr != hr || wc != hc {
		return fmt.Errorf("shape mismatch \n\twant(%v, %v)\n\thave(%v, %v)",
			wr, wc, hr, hc)
	}
	return nil
}
