package intrinsic

import (
	"testing"

	"github.com/samuelfneumann/mega/control"
	"github.com/samuelfneumann/mega/countbonus"
	"github.com/samuelfneumann/mega/normalize"
	"gonum.org/v1/gonum/mat"
)

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor("direct__none__x__none")
	if err != nil {
		t.Fatal(err)
	}
	want := Descriptor{Source: Direct, Post: NoPost, Reserved: "x",
		Bonus: NoBonus}
	if d != want {
		t.Errorf("parseDescriptor: \n\twant(%v)\n\thave(%v)", want, d)
	}
	if d.String() != "direct__none__x__none" {
		t.Errorf("string: round trip failed: %v", d)
	}

	for _, bad := range []string{
		"",
		"direct__none__x",
		"direct__none__x__none__extra",
		"sideways__none__x__none",
		"latent__ternary__x__none",
		"latent__binary____hcb",
		"latent__binary__x__ucb",
		"direct_none_x_none",
	} {
		if _, err := ParseDescriptor(bad); err == nil {
			t.Errorf("parseDescriptor(%q): expected error", bad)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"ex", "in", "ex_in"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("parseMode(%q): %v", s, err)
		}
	}
	if _, err := ParseMode("in_ex"); err == nil {
		t.Error("parseMode: expected error on unknown mode")
	}
}

func TestModeCombine(t *testing.T) {
	ex := mat.NewVecDense(2, []float64{1, -1})
	in := mat.NewVecDense(2, []float64{0.5, 0.5})

	for mode, want := range map[Mode][]float64{
		Extrinsic: {1, -1},
		Intrinsic: {0.5, 0.5},
		Both:      {1.5, -0.5},
	} {
		have, err := mode.Combine(ex, in)
		if err != nil {
			t.Fatal(err)
		}
		if !mat.Equal(have, mat.NewVecDense(2, want)) {
			t.Errorf("%v: \n\twant(%v)\n\thave(%v)", mode, want,
				have.RawVector().Data)
		}
	}
	if _, err := Mode("none").Combine(ex, in); err == nil {
		t.Error("combine: expected error on unknown mode")
	}
}

func testState() *control.State {
	return &control.State{
		M: mat.NewDense(2, 4, []float64{
			0.1, 0.2, 0.3, 0.4,
			0, 0, 0, 1,
		}),
		G: mat.NewDense(2, 4, []float64{
			5, 5, 5, 5,
			5, 5, 5, 5,
		}),
		DeltaUG: mat.NewDense(2, 4, nil),
	}
}

func TestGenerateDirectNoBonus(t *testing.T) {
	d, _ := ParseDescriptor("direct__none__x__none")
	g, err := NewGenerator(Config{Descriptor: d}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := g.Generate(Input{Control: testState(), RecordCounts: true,
		StackBinary: true})
	if err != nil {
		t.Fatal(err)
	}
	want := mat.NewVecDense(2, []float64{0.1 + 0.2 + 0.3 + 0.4, 1})
	if !mat.EqualApprox(res.Reward, want, 1e-12) {
		t.Errorf("generate: \n\twant(%v)\n\thave(%v)", want.RawVector().Data,
			res.Reward.RawVector().Data)
	}
	if res.Bonus != nil {
		t.Error("generate: no bonus should be applied")
	}
	if !mat.Equal(res.Map, testState().M) {
		t.Error("generate: map should be the unprocessed direct map")
	}
}

func TestGenerateEmpty(t *testing.T) {
	d, _ := ParseDescriptor("direct__none__x__none")
	g, _ := NewGenerator(Config{Descriptor: d, EmptyValue: -0.25}, nil, nil,
		nil)

	empty := g.GenerateEmpty(mat.NewVecDense(4, []float64{1, 2, 3, 4}))
	if empty.Len() != 4 {
		t.Fatalf("generateEmpty: length \n\twant(4)\n\thave(%v)", empty.Len())
	}
	for i := 0; i < 4; i++ {
		if empty.AtVec(i) != -0.25 {
			t.Errorf("generateEmpty: \n\twant(-0.25)\n\thave(%v)",
				empty.AtVec(i))
		}
	}
}

func TestGenerateLatentBinaryBonusClip(t *testing.T) {
	d, _ := ParseDescriptor("latent__binary__x__hcb")
	bonus, _ := countbonus.New(countbonus.Index, countbonus.Params{NumGrid: 2},
		2, 0)
	binary := normalize.NewRunningBinaryNorm()
	g, err := NewGenerator(Config{Descriptor: d, ClipIR: 0.5}, bonus, binary,
		nil)
	if err != nil {
		t.Fatal(err)
	}

	s := testState()
	s.G = mat.NewDense(2, 4, []float64{
		0, 0, 2, 2,
		3, 0, 0, 0,
	})
	res, err := g.Generate(Input{Control: s, RecordCounts: false,
		StackBinary: true})
	if err != nil {
		t.Fatal(err)
	}

	// Rows binarize to [0 0 1 1] and [1 0 0 0]. After stacking, the bits
	// of the first environment have frequency 1/2
	wantMap := mat.NewDense(2, 4, []float64{
		0, 0, 0.5, 0.5,
		0.5, 0, 0, 0,
	})
	if !mat.Equal(res.Map, wantMap) {
		t.Errorf("map: \n\twant(%v)\n\thave(%v)", wantMap, res.Map)
	}

	// Unrecorded counts give a bonus of one, then rewards 1 and 0.5 are
	// clipped to 0.5
	want := mat.NewVecDense(2, []float64{0.5, 0.5})
	if !mat.Equal(res.Reward, want) {
		t.Errorf("reward: \n\twant(%v)\n\thave(%v)", want.RawVector().Data,
			res.Reward.RawVector().Data)
	}
	if bonus.Count(s.G.RawRowView(0)) != 0 {
		t.Error("generate: counts recorded while not requested")
	}
}

func TestNewGeneratorRequiresCollaborators(t *testing.T) {
	d, _ := ParseDescriptor("direct__none__x__hcb")
	if _, err := NewGenerator(Config{Descriptor: d}, nil, nil, nil); err == nil {
		t.Error("newGenerator: expected error on missing bonus estimator")
	}
	d, _ = ParseDescriptor("direct__binary__x__none")
	if _, err := NewGenerator(Config{Descriptor: d}, nil, nil, nil); err == nil {
		t.Error("newGenerator: expected error on missing binary normalizer")
	}

	g, _ := NewGenerator(Config{Descriptor: Descriptor{Direct, NoPost, "x",
		NoBonus}}, nil, nil, nil)
	if _, err := g.Generate(Input{Control: &control.State{}}); err == nil {
		t.Error("generate: expected error before maps are computed")
	}
}
