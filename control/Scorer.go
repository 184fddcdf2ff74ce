package control

import "gonum.org/v1/gonum/mat"

// Scorer maps a batch of (state, next frame, action) triples to a
// control map over the grid. last is N x (stack*height*width), now is
// N x (height*width), and onehot is N x actions. The returned matrix
// is N x cells.
//
// Scorers used during rollout collection must not record gradient
// information.
type Scorer interface {
	Score(last, now, onehot *mat.Dense) (*mat.Dense, error)
}

// ScorerFunc adapts an ordinary function to a Scorer
type ScorerFunc func(last, now, onehot *mat.Dense) (*mat.Dense, error)

// Score implements the Scorer interface
func (f ScorerFunc) Score(last, now, onehot *mat.Dense) (*mat.Dense, error) {
	return f(last, now, onehot)
}
