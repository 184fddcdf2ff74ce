package intrinsic

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"
)

// Mode selects which reward the agent is trained with
type Mode string

const (
	// Extrinsic trains with the environment reward only. The
	// intrinsic reward pipeline is bypassed.
	Extrinsic Mode = "ex"

	// Intrinsic trains with the intrinsic reward only
	Intrinsic Mode = "in"

	// Both trains with the sum of extrinsic and intrinsic rewards
	Both Mode = "ex_in"
)

// ParseMode parses and validates a reward mode
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("parseMode: %v", err)
	}
	return m, nil
}

// Validate returns an error if m is not a known mode
func (m Mode) Validate() error {
	switch m {
	case Extrinsic, Intrinsic, Both:
		return nil
	}
	return fmt.Errorf("unknown reward mode %q \n\twant(%v, %v, or %v)", m,
		Extrinsic, Intrinsic, Both)
}

// UsesIntrinsic returns whether intrinsic rewards must be generated
func (m Mode) UsesIntrinsic() bool {
	return m == Intrinsic || m == Both
}

// Warn logs known risks of a mode. Summing extrinsic rewards with the
// placeholder intrinsic reward of off-cadence steps skews reward
// magnitudes when extrinsic rewards can be negative.
func (m Mode) Warn(logger *slog.Logger, emptyValue float64) {
	if m != Both {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("summing extrinsic and intrinsic rewards: the empty "+
		"intrinsic reward of off-cadence steps is only comparable in "+
		"scale if extrinsic rewards are non-negative",
		"mode", string(m), "empty_value", emptyValue)
}

// Combine returns the reward used for training
func (m Mode) Combine(extrinsic, intrinsic *mat.VecDense) (*mat.VecDense,
	error) {
	switch m {
	case Extrinsic:
		return mat.VecDenseCopyOf(extrinsic), nil
	case Intrinsic:
		if intrinsic == nil {
			return nil, fmt.Errorf("combine: missing intrinsic reward")
		}
		return mat.VecDenseCopyOf(intrinsic), nil
	case Both:
		if intrinsic == nil || intrinsic.Len() != extrinsic.Len() {
			return nil, fmt.Errorf("combine: intrinsic reward must match "+
				"extrinsic reward of length %v", extrinsic.Len())
		}
		out := mat.NewVecDense(extrinsic.Len(), nil)
		out.AddVec(extrinsic, intrinsic)
		return out, nil
	}
	return nil, m.Validate()
}
