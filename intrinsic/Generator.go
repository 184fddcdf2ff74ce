package intrinsic

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/samuelfneumann/mega/control"
	"github.com/samuelfneumann/mega/countbonus"
	"github.com/samuelfneumann/mega/normalize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Config configures a Generator
type Config struct {
	Descriptor Descriptor

	// ClipIR bounds the magnitude of intrinsic rewards. No clipping is
	// performed if it is not positive.
	ClipIR float64

	// EmptyValue is the intrinsic reward of off-cadence steps
	EmptyValue float64
}

// Input holds what a Generator needs on an on-cadence step
type Input struct {
	Control *control.State

	// RecordCounts determines whether the count-based bonus records
	// the maps it scores
	RecordCounts bool

	// StackBinary determines whether binarized maps update the running
	// bit frequencies
	StackBinary bool
}

// Result is the output of a Generator
type Result struct {
	// Reward holds one intrinsic reward per environment
	Reward *mat.VecDense

	// Map is the control map the rewards were computed from, after
	// post-processing
	Map *mat.Dense

	// Bonus holds the count-based bonus of each environment, or nil
	Bonus *mat.VecDense
}

// Generator converts control maps into intrinsic rewards. The reward
// of an environment is the sum of its selected control map, optionally
// binarized and normalized, scaled by a count-based bonus of the map
// if configured, and clipped if configured.
type Generator struct {
	config Config
	bonus  countbonus.Estimator
	binary *normalize.RunningBinaryNorm
	logger *slog.Logger
}

// NewGenerator returns a new Generator. The bonus estimator must be
// non-nil if and only if the descriptor requests a count-based bonus,
// and binary must be non-nil if and only if it requests binary
// post-processing.
func NewGenerator(c Config, bonus countbonus.Estimator,
	binary *normalize.RunningBinaryNorm, logger *slog.Logger) (*Generator,
	error) {
	if err := c.Descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("newGenerator: %v", err)
	}
	if (c.Descriptor.Bonus == HashCountBonus) != (bonus != nil) {
		return nil, fmt.Errorf("newGenerator: descriptor %v requires a "+
			"count bonus estimator iff its bonus is %v", c.Descriptor,
			HashCountBonus)
	}
	if (c.Descriptor.Post == Binary) != (binary != nil) {
		return nil, fmt.Errorf("newGenerator: descriptor %v requires a "+
			"binary normalizer iff its post-processing is %v", c.Descriptor,
			Binary)
	}
	if math.IsNaN(c.EmptyValue) || math.IsNaN(c.ClipIR) {
		return nil, fmt.Errorf("newGenerator: NaN in configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Generator{config: c, bonus: bonus, binary: binary,
		logger: logger}, nil
}

// Descriptor returns the reward type descriptor of the Generator
func (g *Generator) Descriptor() Descriptor { return g.config.Descriptor }

// Generate computes the intrinsic reward of each environment
func (g *Generator) Generate(in Input) (Result, error) {
	if in.Control == nil || !in.Control.Ready() {
		return Result{}, fmt.Errorf("generate: control maps not yet " +
			"computed")
	}

	var selected *mat.Dense
	switch g.config.Descriptor.Source {
	case Direct:
		selected = in.Control.M
	case Latent:
		selected = in.Control.G
	}
	processed := mat.DenseCopyOf(selected)

	if g.config.Descriptor.Post == Binary {
		processed.Apply(binarize(processed), processed)
		if in.StackBinary {
			if err := g.binary.Stack(processed); err != nil {
				return Result{}, fmt.Errorf("generate: %v", err)
			}
		}
		var err error
		if processed, err = g.binary.Normalize(processed); err != nil {
			return Result{}, fmt.Errorf("generate: %v", err)
		}
	}

	rows, _ := processed.Dims()
	reward := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		reward.SetVec(i, floats.Sum(processed.RawRowView(i)))
	}

	var bonus *mat.VecDense
	if g.config.Descriptor.Bonus == HashCountBonus {
		var err error
		if in.RecordCounts {
			bonus, err = g.bonus.Observe(selected)
		} else {
			bonus, err = g.bonus.Peek(selected)
		}
		if err != nil {
			return Result{}, fmt.Errorf("generate: %v", err)
		}
		reward.MulElemVec(reward, bonus)
	}

	if clip := g.config.ClipIR; clip > 0 {
		for i := 0; i < rows; i++ {
			reward.SetVec(i, math.Max(-clip, math.Min(clip, reward.AtVec(i))))
		}
	}

	g.logger.Debug("generated intrinsic reward",
		"descriptor", g.config.Descriptor.String(),
		"mean", stat.Mean(reward.RawVector().Data, nil))

	return Result{Reward: reward, Map: processed, Bonus: bonus}, nil
}

// GenerateEmpty returns the placeholder intrinsic reward of
// off-cadence steps, EmptyValue for every environment of extrinsic
func (g *Generator) GenerateEmpty(extrinsic *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(extrinsic.Len(), nil)
	for i := 0; i < out.Len(); i++ {
		out.SetVec(i, g.config.EmptyValue)
	}
	return out
}

// binarize returns a function for mat.Dense.Apply which sets each
// element to one if it is above the mean of its row and zero otherwise
func binarize(m *mat.Dense) func(i, j int, v float64) float64 {
	rows, _ := m.Dims()
	means := make([]float64, rows)
	for i := range means {
		means[i] = stat.Mean(m.RawRowView(i), nil)
	}
	return func(i, _ int, v float64) float64 {
		if v > means[i] {
			return 1.0
		}
		return 0.0
	}
}
