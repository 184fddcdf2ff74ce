package replay

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Mode determines which transitions are evicted when a buffer
// exceeds its capacity
type Mode string

const (
	// Fifo evicts the oldest transitions first
	Fifo Mode = "fifo"

	// Random evicts uniformly chosen transitions
	Random Mode = "random"
)

// Validate returns an error if m is not a known eviction mode
func (m Mode) Validate() error {
	switch m {
	case Fifo, Random:
		return nil
	}
	return fmt.Errorf("validate: unknown replay mode %q \n\twant(%v or %v)",
		m, Fifo, Random)
}

// remover selects the positions, in insertion order, of n transitions
// to evict from a buffer holding size transitions. Positions are
// returned in increasing order.
type remover interface {
	choose(n, size int) []int
}

type fifoRemover struct{}

func (fifoRemover) choose(n, _ int) []int {
	selected := make([]int, n)
	for i := range selected {
		selected[i] = i
	}
	return selected
}

type uniformRemover struct {
	rng *rand.Rand
}

func (u *uniformRemover) choose(n, size int) []int {
	perm := u.rng.Perm(size)[:n]
	marked := make([]bool, size)
	for _, i := range perm {
		marked[i] = true
	}

	selected := make([]int, 0, n)
	for i, m := range marked {
		if m {
			selected = append(selected, i)
		}
	}
	return selected
}

func newRemover(m Mode, seed uint64) remover {
	if m == Random {
		return &uniformRemover{rng: rand.New(rand.NewSource(seed))}
	}
	return fifoRemover{}
}

// uniformSampler draws positions uniformly with replacement
type uniformSampler struct {
	rng *rand.Rand
}

func newUniformSampler(seed uint64) *uniformSampler {
	return &uniformSampler{rng: rand.New(rand.NewSource(seed))}
}

func (u *uniformSampler) choose(n, size int) []int {
	selected := make([]int, n)
	for i := range selected {
		selected[i] = u.rng.Intn(size)
	}
	return selected
}
