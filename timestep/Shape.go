package timestep

import "fmt"

// Shape describes a stacked-frame observation of a single environment.
// Observations are flattened in row-major order as
// [stack][height][width].
type Shape struct {
	Stack  int
	Height int
	Width  int
}

// FrameSize returns the number of elements in a single frame
func (s Shape) FrameSize() int {
	return s.Height * s.Width
}

// Size returns the number of elements in a full stacked observation
func (s Shape) Size() int {
	return s.Stack * s.FrameSize()
}

// Validate returns an error if any dimension of the Shape is not
// positive
func (s Shape) Validate() error {
	if s.Stack < 1 || s.Height < 1 || s.Width < 1 {
		return fmt.Errorf("validate: shape dimensions must be positive: %v",
			s)
	}
	return nil
}

// LastFrame returns the last frame of a flattened stacked observation.
// The returned slice shares its backing data with obs.
func (s Shape) LastFrame(obs []float64) []float64 {
	size := s.FrameSize()
	return obs[(s.Stack-1)*size : s.Stack*size]
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Stack, s.Height, s.Width)
}
