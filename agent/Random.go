package agent

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/mega/buffer/rollout"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Random implements a uniform random policy over a discrete action
// space. Its values are always zero and it does not learn.
type Random struct {
	numActions int
	dist       distuv.Categorical
}

// NewRandom returns a new uniform Random policy
func NewRandom(numActions int, seed uint64) (*Random, error) {
	if numActions < 1 {
		return nil, fmt.Errorf("newRandom: number of actions must be "+
			"positive \n\twant(>=1)\n\thave(%v)", numActions)
	}
	weights := make([]float64, numActions)
	for i := range weights {
		weights[i] = 1.0
	}
	source := rand.NewSource(seed)
	return &Random{
		numActions: numActions,
		dist:       distuv.NewCategorical(weights, source),
	}, nil
}

// Sample samples n actions uniformly at random
func (r *Random) Sample(n int) []int {
	actions := make([]int, n)
	for i := range actions {
		actions[i] = int(r.dist.Rand())
	}
	return actions
}

// Act implements the Policy interface
func (r *Random) Act(obs, _ *mat.Dense, _ *mat.VecDense) (Act, error) {
	n, _ := obs.Dims()
	logProbs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		logProbs.SetVec(i, -math.Log(float64(r.numActions)))
	}
	return Act{
		Values:   mat.NewVecDense(n, nil),
		Actions:  r.Sample(n),
		LogProbs: logProbs,
	}, nil
}

// ActDeterministic implements the Deterministic interface. All actions
// are equally likely, so ties are broken towards action 0.
func (r *Random) ActDeterministic(obs, hidden *mat.Dense,
	masks *mat.VecDense) (Act, error) {
	act, err := r.Act(obs, hidden, masks)
	if err != nil {
		return Act{}, err
	}
	for i := range act.Actions {
		act.Actions[i] = 0
	}
	return act, nil
}

// Value implements the Policy interface
func (r *Random) Value(obs, _ *mat.Dense, _ *mat.VecDense) (*mat.VecDense,
	error) {
	n, _ := obs.Dims()
	return mat.NewVecDense(n, nil), nil
}

// HiddenSize implements the Policy interface
func (r *Random) HiddenSize() int { return 0 }

// Update implements the Updater interface. A Random policy does not
// learn, so Update only reports the mean return of the rollout.
func (r *Random) Update(b *rollout.Buffer) (map[string]float64, error) {
	var total float64
	for t := 0; t < b.NumSteps(); t++ {
		total += mat.Sum(b.Returns(t))
	}
	return map[string]float64{
		"mean_return": total / float64(b.NumSteps()*b.NumEnvs()),
	}, nil
}
