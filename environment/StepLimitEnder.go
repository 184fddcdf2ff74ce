package environment

// StepLimit ends episodes once they reach a specific number of steps
type StepLimit struct {
	episodeSteps int
}

// NewStepLimit creates and returns a new step limit. A limit that is
// not positive never ends an episode.
func NewStepLimit(episodeSteps int) StepLimit {
	return StepLimit{episodeSteps}
}

// End determines whether or not an episode which has taken steps steps
// should be ended
func (s StepLimit) End(steps int) bool {
	return s.episodeSteps > 0 && steps >= s.episodeSteps
}
