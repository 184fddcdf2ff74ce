package replay

import (
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// batch returns a push of n transitions whose states hold the values
// start, start+1, ..., start+n-1
func batch(start, n int, masks []float64) map[string]*mat.Dense {
	states := mat.NewDense(n, 2, nil)
	actions := mat.NewDense(n, 3, nil)
	next := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		states.Set(i, 0, float64(start+i))
		states.Set(i, 1, float64(start+i))
		actions.Set(i, (start+i)%3, 1)
		next.Set(i, 0, float64(start+i+1))
	}
	b := map[string]*mat.Dense{
		States:     states,
		Actions:    actions,
		NextStates: next,
	}
	if masks != nil {
		b[NextStateMasks] = mat.NewDense(n, 1, masks)
	}
	return b
}

func newBuffer(t *testing.T, size int, mode Mode, remove bool) *Buffer {
	t.Helper()
	b, err := New(Config{
		Size:               size,
		Mode:               mode,
		Keys:               Keys(remove, 1),
		RemoveInterEpisode: remove,
		Seed:               1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestConstrainBufferSizeFifo(t *testing.T) {
	b := newBuffer(t, 25, Fifo, false)
	for i := 0; i < 3; i++ {
		if err := b.Push(batch(10*i, 10, nil)); err != nil {
			t.Fatal(err)
		}
	}
	if b.Len() != 30 {
		t.Fatalf("len: \n\twant(30)\n\thave(%v)", b.Len())
	}

	b.ConstrainBufferSize()
	if b.Len() != 25 {
		t.Fatalf("len: \n\twant(25)\n\thave(%v)", b.Len())
	}
	for i := 0; i < b.Len(); i++ {
		if have := b.At(i).State[0]; have != float64(i+5) {
			t.Errorf("at(%v): \n\twant(%v)\n\thave(%v)", i, i+5, have)
		}
	}
}

func TestConstrainBufferSizeIdempotent(t *testing.T) {
	for _, mode := range []Mode{Fifo, Random} {
		b := newBuffer(t, 7, mode, false)
		b.Push(batch(0, 10, nil))
		b.ConstrainBufferSize()

		before := make([]float64, b.Len())
		for i := range before {
			before[i] = b.At(i).State[0]
		}

		b.ConstrainBufferSize()
		if b.Len() != len(before) {
			t.Fatalf("%v: len changed \n\twant(%v)\n\thave(%v)", mode,
				len(before), b.Len())
		}
		for i := range before {
			if b.At(i).State[0] != before[i] {
				t.Errorf("%v: buffer changed on second call", mode)
			}
		}
	}
}

func TestRandomEvictionKeepsOrder(t *testing.T) {
	b := newBuffer(t, 5, Random, false)
	b.Push(batch(0, 12, nil))
	b.ConstrainBufferSize()
	if b.Len() != 5 {
		t.Fatalf("len: \n\twant(5)\n\thave(%v)", b.Len())
	}
	for i := 1; i < b.Len(); i++ {
		if b.At(i).State[0] <= b.At(i-1).State[0] {
			t.Errorf("at: insertion order not preserved")
		}
	}
}

func TestPushMismatch(t *testing.T) {
	b := newBuffer(t, 10, Fifo, false)

	bad := batch(0, 4, nil)
	bad[NextStates] = mat.NewDense(3, 1, nil)
	if err := b.Push(bad); !IsMismatch(err) {
		t.Errorf("push: expected length mismatch, have %v", err)
	}

	extra := batch(0, 4, []float64{1, 1, 1, 1})
	if err := b.Push(extra); !IsMismatch(err) {
		t.Errorf("push: expected key mismatch, have %v", err)
	}

	missing := batch(0, 4, nil)
	delete(missing, Actions)
	if err := b.Push(missing); !IsMismatch(err) {
		t.Errorf("push: expected key mismatch, have %v", err)
	}

	if b.Len() != 0 {
		t.Errorf("push: rejected pushes must not be stored, have %v", b.Len())
	}
}

func TestPushRemovesInterEpisode(t *testing.T) {
	b := newBuffer(t, 10, Fifo, true)
	if err := b.Push(batch(0, 4, []float64{1, 0, 1, 0})); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 2 {
		t.Fatalf("len: \n\twant(2)\n\thave(%v)", b.Len())
	}
	if b.At(1).State[0] != 2 || b.At(1).Mask != 1 {
		t.Errorf("at(1): unexpected transition %v", b.At(1))
	}
}

func TestSample(t *testing.T) {
	b := newBuffer(t, 10, Fifo, false)
	if _, err := b.Sample(1); !IsEmptyBuffer(err) {
		t.Errorf("sample: expected empty buffer error, have %v", err)
	}

	b.Push(batch(0, 6, nil))
	if _, err := b.Sample(7); !IsInsufficientSamples(err) {
		t.Errorf("sample: expected insufficient samples, have %v", err)
	}

	s, err := b.Sample(4)
	if err != nil {
		t.Fatal(err)
	}
	if r, c := s[States].Dims(); r != 4 || c != 2 {
		t.Errorf("sample: states dims \n\twant(4, 2)\n\thave(%v, %v)", r, c)
	}
	for i := 0; i < 4; i++ {
		v := s[States].At(i, 0)
		if s[NextStates].At(i, 0) != v+1 {
			t.Errorf("sample: rows of a transition not aligned")
		}
	}

	for i := 0; i < b.Len(); i++ {
		if b.At(i).State[0] != float64(i) {
			t.Errorf("sample: buffer order mutated")
		}
	}
}

func TestBufferRestore(t *testing.T) {
	b := newBuffer(t, 10, Fifo, false)
	b.Push(batch(0, 3, nil))

	path := filepath.Join(t.TempDir(), "replay")
	if err := b.Store(path); err != nil {
		t.Fatal(err)
	}
	restored := newBuffer(t, 10, Fifo, false)
	if err := restored.Restore(path); err != nil {
		t.Fatal(err)
	}
	if restored.Len() != 3 || restored.At(2).Action != 2 {
		t.Errorf("restore: unexpected contents, len %v", restored.Len())
	}
}

func TestConfigValidate(t *testing.T) {
	if _, err := New(Config{Size: 1, Mode: "priority",
		Keys: Keys(false, 1)}); err == nil {
		t.Error("new: expected error on unknown mode")
	}
	if _, err := New(Config{Size: 1, Mode: Fifo, Keys: Keys(false, 1),
		RemoveInterEpisode: true}); err == nil {
		t.Error("new: expected error when masks key is missing")
	}
}
