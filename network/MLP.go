// Package network implements feed forward neural networks on
// Gorgonia computational graphs
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// MLP implements a multi-layered perceptron with a fixed batch size.
//
// An MLP always has a final layer with outputs units. Hidden layer i
// has hiddenSizes[i] units and activation activations[i]. All layers
// have bias units.
type MLP struct {
	g      *G.ExprGraph
	layers []*fcLayer
	input  *G.Node

	features    int
	outputs     int
	batchSize   int
	hiddenSizes []int
	activations []*Activation
	outputAct   *Activation

	learnables G.Nodes
	prediction *G.Node
	predVal    G.Value
}

// NewMLP creates a new MLP on graph g with an input node of shape
// (batch, features). The parameter init determines the weight
// initialization scheme.
func NewMLP(features, batch, outputs int, g *G.ExprGraph,
	hiddenSizes []int, activations []*Activation, outputAct *Activation,
	init G.InitWFn) (*MLP, error) {
	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newMLP: invalid number of activations\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if features < 1 || batch < 1 || outputs < 1 {
		return nil, fmt.Errorf("newMLP: features, batch and outputs must "+
			"be positive: have(%v, %v, %v)", features, batch, outputs)
	}
	if outputAct == nil {
		outputAct = Identity()
	}

	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	layers := make([]*fcLayer, 0, len(hiddenSizes)+1)
	in := features
	for i, size := range hiddenSizes {
		name := fmt.Sprintf("L%d", i)
		layers = append(layers, newFCLayer(g, in, size, activations[i],
			init, name))
		in = size
	}
	layers = append(layers, newFCLayer(g, in, outputs, outputAct, init,
		"Out"))

	net := &MLP{
		g:           g,
		layers:      layers,
		input:       input,
		features:    features,
		outputs:     outputs,
		batchSize:   batch,
		hiddenSizes: hiddenSizes,
		activations: activations,
		outputAct:   outputAct,
	}

	pred := input
	var err error
	for i, l := range layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "newMLP: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}
	net.prediction = pred
	G.Read(net.prediction, &net.predVal)

	return net, nil
}

// CloneWithBatch returns a new MLP on a new graph with the same
// architecture and weights but a different batch size
func (m *MLP) CloneWithBatch(batch int) (*MLP, error) {
	clone, err := NewMLP(m.features, batch, m.outputs, G.NewGraph(),
		m.hiddenSizes, m.activations, m.outputAct, G.Zeroes())
	if err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	if err := clone.Set(m); err != nil {
		return nil, fmt.Errorf("cloneWithBatch: %v", err)
	}
	return clone, nil
}

// Graph returns the computational graph of the MLP
func (m *MLP) Graph() *G.ExprGraph { return m.g }

// BatchSize returns the batch size of inputs to the MLP
func (m *MLP) BatchSize() int { return m.batchSize }

// Features returns the number of features of a single input
func (m *MLP) Features() int { return m.features }

// Outputs returns the number of outputs per input
func (m *MLP) Outputs() int { return m.outputs }

// SetInput sets the value of the input node before running the forward
// pass
func (m *MLP) SetInput(input []float64) error {
	if len(input) != m.features*m.batchSize {
		return fmt.Errorf("setInput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", m.features*m.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(m.input.Shape()...),
	)
	return G.Let(m.input, inputTensor)
}

// Learnables returns the learnable nodes of the MLP
func (m *MLP) Learnables() G.Nodes {
	if m.learnables == nil {
		learnables := make(G.Nodes, 0, 2*len(m.layers))
		for _, l := range m.layers {
			learnables = append(learnables, l.weights, l.bias)
		}
		m.learnables = learnables
	}
	return m.learnables
}

// Model returns the learnable nodes with their gradients
func (m *MLP) Model() []G.ValueGrad {
	return G.NodesToValueGrads(m.Learnables())
}

// Prediction returns the output node of the MLP
func (m *MLP) Prediction() *G.Node { return m.prediction }

// Output returns the predictions of the last forward pass as a
// (batch x outputs) row-major slice. The slice is only valid until the
// next forward pass.
func (m *MLP) Output() []float64 {
	if m.predVal == nil {
		return nil
	}
	return m.predVal.Data().([]float64)
}

// Weights returns a copy of the weights of each learnable node
func (m *MLP) Weights() [][]float64 {
	learnables := m.Learnables()
	weights := make([][]float64, len(learnables))
	for i, node := range learnables {
		weights[i] = append([]float64(nil),
			node.Value().Data().([]float64)...)
	}
	return weights
}

// SetWeights copies weights, as returned by Weights, into the
// learnable nodes. Values are copied in place so that machines bound
// to the nodes see the new weights.
func (m *MLP) SetWeights(weights [][]float64) error {
	learnables := m.Learnables()
	if len(weights) != len(learnables) {
		return fmt.Errorf("setWeights: invalid number of weight tensors "+
			"\n\twant(%v)\n\thave(%v)", len(learnables), len(weights))
	}
	for i, node := range learnables {
		dest := node.Value().Data().([]float64)
		if len(dest) != len(weights[i]) {
			return fmt.Errorf("setWeights: invalid size of tensor %v "+
				"\n\twant(%v)\n\thave(%v)", i, len(dest), len(weights[i]))
		}
		copy(dest, weights[i])
	}
	return nil
}

// Set sets the weights of m to be equal to the weights of source
func (m *MLP) Set(source *MLP) error {
	return m.SetWeights(source.Weights())
}
