package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// ActivationType names an activation function so that it can be set
// in configuration files
type ActivationType string

const (
	ReLUType     ActivationType = "relu"
	IdentityType ActivationType = "identity"
	TanHType     ActivationType = "tanh"
	SigmoidType  ActivationType = "sigmoid"
)

// Activation represents an activation function of a layer
type Activation struct {
	ActivationType
	f func(x *G.Node) (*G.Node, error)
}

// NewActivation returns the Activation of the given type
func NewActivation(t ActivationType) (*Activation, error) {
	switch t {
	case ReLUType:
		return ReLU(), nil
	case IdentityType:
		return Identity(), nil
	case TanHType:
		return TanH(), nil
	case SigmoidType:
		return Sigmoid(), nil
	}
	return nil, fmt.Errorf("newActivation: unknown activation %q", t)
}

// fwd performs the forward pass of an Activation
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// String implements the Stringer interface
func (a *Activation) String() string {
	return string(a.ActivationType)
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		ActivationType: IdentityType,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{ActivationType: ReLUType, f: G.Rectify}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{ActivationType: TanHType, f: G.Tanh}
}

// Sigmoid returns a sigmoid *Activation
func Sigmoid() *Activation {
	return &Activation{ActivationType: SigmoidType, f: G.Sigmoid}
}
