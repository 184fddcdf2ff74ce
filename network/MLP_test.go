package network

import (
	"testing"

	G "gorgonia.org/gorgonia"
)

func run(t *testing.T, net *MLP, input []float64) []float64 {
	t.Helper()
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()

	if err := net.SetInput(input); err != nil {
		t.Fatal(err)
	}
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	return append([]float64(nil), net.Output()...)
}

func TestMLPCloneWithBatch(t *testing.T) {
	net, err := NewMLP(3, 2, 2, G.NewGraph(), []int{4}, []*Activation{TanH()},
		Sigmoid(), G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}
	input := []float64{0.1, 0.2, 0.3, -1, 0, 1}
	out := run(t, net, input)
	if len(out) != 4 {
		t.Fatalf("output: \n\twant(4)\n\thave(%v)", len(out))
	}
	for _, v := range out {
		if v <= 0 || v >= 1 {
			t.Errorf("output: sigmoid out of range: %v", v)
		}
	}

	clone, err := net.CloneWithBatch(1)
	if err != nil {
		t.Fatal(err)
	}
	single := run(t, clone, input[3:])
	for i := range single {
		if single[i] != out[2+i] {
			t.Errorf("clone: \n\twant(%v)\n\thave(%v)", out[2:], single)
			break
		}
	}
}

func TestMLPSetWeights(t *testing.T) {
	net, err := NewMLP(2, 1, 1, G.NewGraph(), nil, nil, nil, G.Zeroes())
	if err != nil {
		t.Fatal(err)
	}
	if err := net.SetWeights([][]float64{{2, 3}, {1}}); err != nil {
		t.Fatal(err)
	}
	if out := run(t, net, []float64{1, 1}); out[0] != 6 {
		t.Errorf("output: \n\twant(6)\n\thave(%v)", out[0])
	}

	if err := net.SetWeights([][]float64{{1}}); err == nil {
		t.Error("setWeights: expected error on wrong number of tensors")
	}
	if _, err := NewMLP(2, 1, 1, G.NewGraph(), []int{3}, nil, nil,
		G.Zeroes()); err == nil {
		t.Error("newMLP: expected error on missing activation")
	}
}

func TestNewActivation(t *testing.T) {
	for _, name := range []ActivationType{ReLUType, IdentityType, TanHType,
		SigmoidType} {
		a, err := NewActivation(name)
		if err != nil || a.ActivationType != name {
			t.Errorf("newActivation(%v): %v", name, err)
		}
	}
	if _, err := NewActivation("softplus"); err == nil {
		t.Error("newActivation: expected error on unknown activation")
	}
}
