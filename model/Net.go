package model

import (
	"fmt"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"github.com/samuelfneumann/mega/initwfn"
	"github.com/samuelfneumann/mega/network"
	"github.com/samuelfneumann/mega/solver"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Config configures the network of a control scoring model
type Config struct {
	Hidden     []int
	Activation network.ActivationType

	// Solver describes the optimizer of the training graph. Each model
	// creates its own optimizer from the description.
	Solver *solver.Solver

	// BatchSize is the number of transitions in a training mini-batch
	BatchSize int

	// Init initializes the weights. Glorot uniform initialization is
	// used if nil.
	Init *initwfn.InitWFn
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be positive "+
			"\n\twant(>=1)\n\thave(%v)", c.BatchSize)
	}
	for _, h := range c.Hidden {
		if h < 1 {
			return fmt.Errorf("validate: hidden layer sizes must be "+
				"positive: %v", c.Hidden)
		}
	}
	if _, err := network.NewActivation(c.Activation); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Solver == nil || c.Solver.Config == nil {
		return fmt.Errorf("validate: no solver configured")
	}
	return nil
}

// net holds two copies of the same MLP. The inference copy takes one
// input per environment and has no gradient bookkeeping. The training
// copy takes a mini-batch, computes the mean squared error against a
// target node and is stepped by a solver. Weights are copied from the
// training copy to the inference copy after each update.
type net struct {
	feat featurizer

	infer   *network.MLP
	inferVM G.VM
	inputs  []float64

	train     *network.MLP
	trainVM   G.VM
	target    *G.Node
	loss      *G.Node
	lossVal   G.Value
	solver    G.Solver
	batchSize int
	batch     []float64
}

func newNet(feat featurizer, numEnvs int, c Config) (*net, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if numEnvs < 1 {
		return nil, fmt.Errorf("newNet: number of environments must be "+
			"positive \n\twant(>=1)\n\thave(%v)", numEnvs)
	}

	acts := make([]*network.Activation, len(c.Hidden))
	for i := range acts {
		acts[i], _ = network.NewActivation(c.Activation)
	}
	outputs := feat.grid.Cells()
	init := G.GlorotU(1.0)
	if c.Init != nil {
		init = c.Init.InitWFn()
	}

	train, err := network.NewMLP(feat.size(), c.BatchSize, outputs,
		G.NewGraph(), c.Hidden, acts, network.Sigmoid(), init)
	if err != nil {
		return nil, fmt.Errorf("newNet: could not create training "+
			"network: %v", err)
	}

	target := G.NewMatrix(train.Graph(), tensor.Float64,
		G.WithShape(c.BatchSize, outputs), G.WithName("target"),
		G.WithInit(G.Zeroes()))
	errs := G.Must(G.Sub(train.Prediction(), target))
	loss := G.Must(G.Mean(G.Must(G.Square(errs))))

	n := &net{
		feat:      feat,
		train:     train,
		target:    target,
		loss:      loss,
		solver:    c.Solver.Config.Create(),
		batchSize: c.BatchSize,
		batch:     make([]float64, c.BatchSize*feat.size()),
		inputs:    make([]float64, numEnvs*feat.size()),
	}
	G.Read(n.loss, &n.lossVal)

	if _, err := G.Grad(loss, train.Learnables()...); err != nil {
		return nil, fmt.Errorf("newNet: could not compute gradient: %v", err)
	}
	n.trainVM = G.NewTapeMachine(train.Graph(),
		G.BindDualValues(train.Learnables()...))

	if n.infer, err = train.CloneWithBatch(numEnvs); err != nil {
		return nil, fmt.Errorf("newNet: could not create inference "+
			"network: %v", err)
	}
	n.inferVM = G.NewTapeMachine(n.infer.Graph())

	return n, nil
}

// predict runs the inference network on a batch of one input per
// environment
func (n *net) predict(last, now, onehot *mat.Dense) (*mat.Dense, error) {
	rows, _ := last.Dims()
	if rows != n.infer.BatchSize() {
		return nil, fmt.Errorf("predict: invalid batch size \n\twant(%v)"+
			"\n\thave(%v)", n.infer.BatchSize(), rows)
	}
	if err := n.feat.inputs(last, now, onehot, n.inputs); err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}
	if err := n.infer.SetInput(n.inputs); err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}
	if err := n.inferVM.RunAll(); err != nil {
		return nil, fmt.Errorf("predict: %v", err)
	}
	out := append([]float64(nil), n.infer.Output()...)
	n.inferVM.Reset()

	return mat.NewDense(rows, n.infer.Outputs(), out), nil
}

// update performs one solver step towards target, an
// (batch * cells) row-major slice, and returns the loss before the
// step
func (n *net) update(last, now, onehot *mat.Dense,
	target []float64) (float64, error) {
	rows, _ := last.Dims()
	if rows != n.batchSize {
		return 0, fmt.Errorf("update: invalid batch size \n\twant(%v)"+
			"\n\thave(%v)", n.batchSize, rows)
	}
	if err := n.feat.inputs(last, now, onehot, n.batch); err != nil {
		return 0, fmt.Errorf("update: %v", err)
	}
	if err := n.train.SetInput(n.batch); err != nil {
		return 0, fmt.Errorf("update: %v", err)
	}
	targetTensor := tensor.New(
		tensor.WithShape(n.target.Shape()...),
		tensor.WithBacking(target),
	)
	if err := G.Let(n.target, targetTensor); err != nil {
		return 0, fmt.Errorf("update: %v", err)
	}

	if err := n.trainVM.RunAll(); err != nil {
		return 0, fmt.Errorf("update: %v", err)
	}
	if err := n.solver.Step(n.train.Model()); err != nil {
		return 0, fmt.Errorf("update: could not step solver: %v", err)
	}
	loss := n.lossVal.Data().(float64)
	n.trainVM.Reset()

	if err := n.infer.Set(n.train); err != nil {
		return 0, fmt.Errorf("update: could not sync inference network: %v",
			err)
	}
	return loss, nil
}

// snapshot is the gob-encoded form of a net's weights
type snapshot struct {
	Features int
	Outputs  int
	Weights  [][]float64
}

func (n *net) store(path string) error {
	return checkpointer.StoreGob(path, snapshot{
		Features: n.train.Features(),
		Outputs:  n.train.Outputs(),
		Weights:  n.train.Weights(),
	})
}

func (n *net) restore(path string) error {
	var s snapshot
	if err := checkpointer.RestoreGob(path, &s); err != nil {
		return err
	}
	if s.Features != n.train.Features() || s.Outputs != n.train.Outputs() {
		return fmt.Errorf("restore: stored network shape (%v, %v) differs "+
			"from (%v, %v)", s.Features, s.Outputs, n.train.Features(),
			n.train.Outputs())
	}
	if err := n.train.SetWeights(s.Weights); err != nil {
		return fmt.Errorf("restore: %v", err)
	}
	return n.infer.Set(n.train)
}
