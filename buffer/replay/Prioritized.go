// Package replay implements a bounded off-policy buffer of transitions
// used to train control scoring models
package replay

import (
	"fmt"
	"sort"

	"github.com/samuelfneumann/mega/experiment/checkpointer"
	"github.com/samuelfneumann/mega/timestep"
	"gonum.org/v1/gonum/mat"
)

// Names of the sequences that may be pushed to a Buffer
const (
	States            = "states"
	Actions           = "actions"
	NextStates        = "next_states"
	NextStateMasks    = "next_state_masks"
	SkippedNextStates = "skipped_next_states"
)

// Keys returns the sequence names a Buffer stores given whether
// transitions across episode boundaries are removed and the decision
// cadence used to collect them
func Keys(removeInterEpisode bool, skip int) []string {
	keys := []string{States, Actions, NextStates}
	if removeInterEpisode {
		keys = append(keys, NextStateMasks)
	}
	if skip > 1 {
		keys = append(keys, SkippedNextStates)
	}
	return keys
}

// Config describes a Buffer
type Config struct {
	Size               int
	Mode               Mode
	Keys               []string
	RemoveInterEpisode bool
	Seed               uint64
}

// Validate returns an error if the Config is invalid
func (c Config) Validate() error {
	if c.Size < 1 {
		return fmt.Errorf("validate: size must be positive \n\twant(>=1)"+
			"\n\thave(%v)", c.Size)
	}
	if err := c.Mode.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Keys))
	for _, k := range c.Keys {
		switch k {
		case States, Actions, NextStates, NextStateMasks, SkippedNextStates:
		default:
			return fmt.Errorf("validate: unknown key %q", k)
		}
		if seen[k] {
			return fmt.Errorf("validate: duplicate key %q", k)
		}
		seen[k] = true
	}
	for _, k := range []string{States, Actions, NextStates} {
		if !seen[k] {
			return fmt.Errorf("validate: missing required key %q", k)
		}
	}
	if c.RemoveInterEpisode && !seen[NextStateMasks] {
		return fmt.Errorf("validate: removing inter-episode transitions "+
			"requires key %q", NextStateMasks)
	}
	return nil
}

// Buffer is a bounded collection of aligned named sequences ordered by
// insertion. Capacity is not enforced on Push; ConstrainBufferSize
// must be called to evict transitions once a push is complete.
//
// Sampling never changes the order of stored transitions.
type Buffer struct {
	config  Config
	keys    []string
	widths  map[string]int
	data    map[string][][]float64
	remover remover
	sampler *uniformSampler
}

// New returns a new, empty Buffer
func New(c Config) (*Buffer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	keys := append([]string(nil), c.Keys...)
	sort.Strings(keys)

	data := make(map[string][][]float64, len(keys))
	for _, k := range keys {
		data[k] = nil
	}

	return &Buffer{
		config:  c,
		keys:    keys,
		widths:  make(map[string]int, len(keys)),
		data:    data,
		remover: newRemover(c.Mode, c.Seed),
		sampler: newUniformSampler(c.Seed + 1),
	}, nil
}

// Keys returns the sorted names of the stored sequences
func (b *Buffer) Keys() []string {
	return append([]string(nil), b.keys...)
}

// Has returns whether the buffer stores the named sequence
func (b *Buffer) Has(key string) bool {
	_, ok := b.data[key]
	return ok
}

// Len returns the number of stored transitions
func (b *Buffer) Len() int {
	return len(b.data[States])
}

// Size returns the capacity of the buffer
func (b *Buffer) Size() int {
	return b.config.Size
}

// Push appends a batch of aligned named sequences, one transition per
// row. The names must equal the buffer's keys, and all matrices must
// have the same number of rows. If inter-episode transitions are
// removed, rows whose next state mask is zero are dropped.
//
// Push validates the whole batch before storing any of it.
func (b *Buffer) Push(batch map[string]*mat.Dense) error {
	if len(batch) != len(b.keys) {
		return &Error{Op: "push", Err: fmt.Errorf("%w \n\twant(%v)"+
			"\n\thave(%v)", errKeyMismatch, b.keys, sortedKeys(batch))}
	}

	rows := -1
	for _, k := range b.keys {
		m, ok := batch[k]
		if !ok || m == nil {
			return &Error{Op: "push", Err: fmt.Errorf("%w: missing %q",
				errKeyMismatch, k)}
		}
		r, c := m.Dims()
		if rows == -1 {
			rows = r
		} else if r != rows {
			return &Error{Op: "push", Err: fmt.Errorf("%w: %q "+
				"\n\twant(%v)\n\thave(%v)", errLengthMismatch, k, rows, r)}
		}
		if w, ok := b.widths[k]; ok && w != c {
			return &Error{Op: "push", Err: fmt.Errorf("%w: width of %q "+
				"\n\twant(%v)\n\thave(%v)", errLengthMismatch, k, w, c)}
		}
	}

	if b.config.RemoveInterEpisode {
		if _, c := batch[NextStateMasks].Dims(); c != 1 {
			return &Error{Op: "push", Err: fmt.Errorf("%w: %q must have "+
				"one column", errLengthMismatch, NextStateMasks)}
		}
	}

	for _, k := range b.keys {
		_, c := batch[k].Dims()
		b.widths[k] = c
	}

	for i := 0; i < rows; i++ {
		if b.config.RemoveInterEpisode && batch[NextStateMasks].At(i, 0) == 0 {
			continue
		}
		for _, k := range b.keys {
			row := append([]float64(nil), batch[k].RawRowView(i)...)
			b.data[k] = append(b.data[k], row)
		}
	}
	return nil
}

// ConstrainBufferSize evicts transitions until the buffer holds at
// most Size transitions. Calling it on a buffer within capacity does
// nothing.
func (b *Buffer) ConstrainBufferSize() {
	excess := b.Len() - b.config.Size
	if excess <= 0 {
		return
	}

	remove := b.remover.choose(excess, b.Len())
	for _, k := range b.keys {
		b.data[k] = without(b.data[k], remove)
	}
}

// without returns rows with the sorted positions in remove deleted.
// A new backing array is used so that evicted rows can be collected.
func without(rows [][]float64, remove []int) [][]float64 {
	kept := make([][]float64, 0, len(rows)-len(remove))
	next := 0
	for i, row := range rows {
		if next < len(remove) && remove[next] == i {
			next++
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// Sample draws batch transitions uniformly with replacement and
// returns them as one matrix per key
func (b *Buffer) Sample(batch int) (map[string]*mat.Dense, error) {
	if b.Len() == 0 {
		return nil, &Error{Op: "sample", Err: errEmptyBuffer}
	}
	if batch < 1 || batch > b.Len() {
		return nil, &Error{Op: "sample", Err: fmt.Errorf("%w \n\twant(<=%v)"+
			"\n\thave(%v)", errInsufficientSamples, b.Len(), batch)}
	}

	indices := b.sampler.choose(batch, b.Len())
	out := make(map[string]*mat.Dense, len(b.keys))
	for _, k := range b.keys {
		m := mat.NewDense(batch, b.widths[k], nil)
		for i, index := range indices {
			m.SetRow(i, b.data[k][index])
		}
		out[k] = m
	}
	return out, nil
}

// At returns the transition at position i in insertion order
func (b *Buffer) At(i int) timestep.Transition {
	oneHot := b.data[Actions][i]
	t := timestep.Transition{
		State:     b.data[States][i],
		Action:    timestep.ArgMax(mat.NewDense(1, len(oneHot), oneHot))[0],
		OneHot:    oneHot,
		NextState: b.data[NextStates][i],
		Mask:      1.0,
	}
	if b.Has(NextStateMasks) {
		t.Mask = b.data[NextStateMasks][i][0]
	}
	if b.Has(SkippedNextStates) {
		t.SkippedNextState = b.data[SkippedNextStates][i]
	}
	return t
}

// Store implements the checkpointer.Persistable interface. The states
// of the selectors are not stored.
func (b *Buffer) Store(path string) error {
	return checkpointer.StoreGob(path, b.widths, b.data)
}

// Restore implements the checkpointer.Persistable interface
func (b *Buffer) Restore(path string) error {
	var widths map[string]int
	var data map[string][][]float64
	if err := checkpointer.RestoreGob(path, &widths, &data); err != nil {
		return err
	}

	length := -1
	for _, k := range b.keys {
		rows, ok := data[k]
		if !ok && len(data) > 0 {
			return fmt.Errorf("restore: missing sequence %q in %v", k, path)
		}
		if length == -1 {
			length = len(rows)
		} else if len(rows) != length {
			return fmt.Errorf("restore: sequence %q has %v transitions, "+
				"expected %v", k, len(rows), length)
		}
	}

	for _, k := range b.keys {
		b.data[k] = data[k]
	}
	if widths == nil {
		widths = make(map[string]int, len(b.keys))
	}
	b.widths = widths
	return nil
}

func sortedKeys(batch map[string]*mat.Dense) []string {
	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
