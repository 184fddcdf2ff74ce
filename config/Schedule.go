package config

// Schedule determines which components are active given the number of
// frames trained on so far
type Schedule struct {
	// Intrinsic is whether the run trains on intrinsic rewards. The
	// random-action warm-up only applies to such runs.
	Intrinsic bool

	RandomAct    int
	NoNormBinary int
	NoNormReward int
	NormReward   bool
}

// IsExploring returns whether actions are taken uniformly at random
func (s Schedule) IsExploring(frames int) bool {
	return s.Intrinsic && frames < s.RandomAct
}

// IsLearning returns whether the agent is updated
func (s Schedule) IsLearning(frames int) bool {
	return !s.IsExploring(frames)
}

// IsStackingCounts returns whether the count-based bonus records the
// control maps it scores
func (s Schedule) IsStackingCounts(frames int) bool {
	return frames > s.RandomAct
}

// IsNormalizingBinary returns whether binarized control maps update
// the running bit frequencies
func (s Schedule) IsNormalizingBinary(frames int) bool {
	return frames > s.NoNormBinary
}

// IsNormalizingReward returns whether intrinsic rewards are normalized
// by the running reward statistics
func (s Schedule) IsNormalizingReward(frames int) bool {
	return s.NormReward && frames > s.NoNormReward
}
